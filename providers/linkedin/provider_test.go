package linkedin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers"
	"github.com/goliatone/go-socialengine/providers/devkit"
)

func TestNew_Conformance(t *testing.T) {
	module, err := New(Config{ClientID: "client"})
	if err != nil {
		t.Fatalf("new linkedin module: %v", err)
	}
	if err := devkit.ValidateModuleConformance(context.Background(), module); err != nil {
		t.Fatalf("conformance: %v", err)
	}
	if module.ID() != ProviderID {
		t.Fatalf("expected linkedin id, got %q", module.ID())
	}
}

func TestBuildProfileURL_SelectsRequestedFields(t *testing.T) {
	got := BuildProfileURL(ProfileURL, core.NewFieldSet(core.FieldEmail, core.FieldName), SupportedFields())
	want := ProfileURL + ":(email-address,formatted-name)?format=json"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	all := BuildProfileURL(ProfileURL, core.FieldSet{}, SupportedFields())
	if !strings.Contains(all, "public-profile-url") || !strings.Contains(all, "location") {
		t.Fatalf("expected empty request to select every field, got %q", all)
	}
}

func TestNew_ScopeMapping(t *testing.T) {
	module, err := New(Config{ClientID: "client", RedirectURL: "https://app.example/cb"})
	if err != nil {
		t.Fatalf("new linkedin module: %v", err)
	}
	cases := map[core.Scope]string{
		core.ScopeDefault:     "r_basicprofile",
		core.ScopeFullProfile: "r_basicprofile r_fullprofile",
		core.ScopeEmail:       "r_basicprofile r_emailaddress",
	}
	for scope, want := range cases {
		handoff, err := module.Authorize(context.Background(), core.AuthorizeRequest{
			AttemptID: "att_" + string(scope),
			Config:    core.ProviderConfig{Scope: scope},
			Reporter:  nopReporter{},
		})
		if err != nil {
			t.Fatalf("authorize %s: %v", scope, err)
		}
		parsed, _ := url.Parse(handoff.URL)
		if parsed.Host != "www.linkedin.com" {
			t.Fatalf("expected linkedin host, got %q", parsed.Host)
		}
		if got := parsed.Query().Get("scope"); got != want {
			t.Fatalf("scope %s: expected %q, got %q", scope, want, got)
		}
	}
}

func TestLinkedIn_EmailScopeEndToEnd(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/oauth/v2/accessToken":
			_, _ = w.Write([]byte(`{"access_token":"li_token","expires_in":5184000}`))
		case strings.HasPrefix(r.URL.Path, "/v1/people/"):
			_, _ = w.Write([]byte(`{"formattedName":"A"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	module, err := New(Config{
		ClientID:   "client",
		AuthURL:    server.URL + "/oauth/v2/authorization",
		TokenURL:   server.URL + "/oauth/v2/accessToken",
		ProfileURL: server.URL + "/v1/people/~",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("new linkedin module: %v", err)
	}
	orchestrator, err := core.NewOrchestrator(core.Config{}, core.WithModules(module))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(context.Background())

	ctx := context.Background()
	if err := orchestrator.Configure(ctx, ProviderID, core.ProviderConfig{
		Scope:           core.ScopeEmail,
		RequestedFields: core.NewFieldSet(core.FieldName, core.FieldEmail),
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	ticket, err := orchestrator.Begin(ctx, ProviderID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := module.HandleCallback(ctx, providers.Callback{State: ticket.Handoff().State, Code: "auth-code"}); err != nil {
		t.Fatalf("callback: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	result, err := ticket.Wait(waitCtx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.Outcome != core.OutcomeLoggedIn {
		t.Fatalf("expected logged in, got %q (%v)", result.Outcome, result.Err)
	}
	if len(result.Profile) != 1 || result.Profile[core.FieldName] != "A" {
		t.Fatalf("expected profile {name:A} with email absent, got %#v", result.Profile)
	}
	if result.Metadata["login_type"] != "logined" {
		t.Fatalf("expected login type metadata, got %#v", result.Metadata)
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, path := range paths {
		if strings.Contains(path, ":(email-address,formatted-name)") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected field selector request, got %v", paths)
	}
}

func TestLinkedIn_UserCancelResolvesCanceled(t *testing.T) {
	module, err := New(Config{ClientID: "client"})
	if err != nil {
		t.Fatalf("new linkedin module: %v", err)
	}
	orchestrator, err := core.NewOrchestrator(core.Config{}, core.WithModules(module))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(context.Background())
	ctx := context.Background()
	if err := orchestrator.Configure(ctx, ProviderID, core.ProviderConfig{}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	ticket, err := orchestrator.Begin(ctx, ProviderID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := module.HandleCallback(ctx, providers.Callback{State: ticket.Handoff().State, Error: "user_cancelled_authorize"}); err != nil {
		t.Fatalf("callback: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	result, err := ticket.Wait(waitCtx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if result.Outcome != core.OutcomeCanceled || result.Metadata["login_type"] != "canceled" {
		t.Fatalf("expected canceled result, got %#v", result)
	}
}

type nopReporter struct{}

func (nopReporter) AttemptID() string                             { return "" }
func (nopReporter) Succeed(context.Context, map[string]any) error { return nil }
func (nopReporter) Cancel(context.Context) error                  { return nil }
func (nopReporter) Fail(context.Context, error) error             { return nil }
