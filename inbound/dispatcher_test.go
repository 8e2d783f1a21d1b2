package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers"
)

type stubCallbackHandler struct {
	id  string
	err error

	mu    sync.Mutex
	calls []providers.Callback
}

func (h *stubCallbackHandler) ID() string { return h.id }

func (h *stubCallbackHandler) HandleCallback(_ context.Context, cb providers.Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, cb)
	return h.err
}

func (h *stubCallbackHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func newTestDispatcher(t *testing.T, verifier Verifier, store ClaimStore, handlers ...CallbackHandler) *Dispatcher {
	t.Helper()
	dispatcher := NewDispatcher(verifier, store)
	for _, handler := range handlers {
		if err := dispatcher.Register(handler); err != nil {
			t.Fatalf("register handler: %v", err)
		}
	}
	return dispatcher
}

func TestDispatcher_RoutesByProviderAndDedupesState(t *testing.T) {
	handler := &stubCallbackHandler{id: "linkedin"}
	dispatcher := newTestDispatcher(t, nil, NewInMemoryClaimStore(), handler)

	req := CallbackRequest{
		ProviderID: "LinkedIn",
		Callback:   providers.Callback{State: "state-1", Code: "code-1"},
	}
	first, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch first callback: %v", err)
	}
	if !first.Accepted || first.StatusCode != http.StatusOK {
		t.Fatalf("expected first callback accepted, got %#v", first)
	}

	second, err := dispatcher.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch repeated callback: %v", err)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped marker on repeated state")
	}
	if handler.callCount() != 1 {
		t.Fatalf("expected handler to run once, got %d", handler.callCount())
	}
}

func TestDispatcher_FailedCallbackReleasesClaim(t *testing.T) {
	handler := &stubCallbackHandler{id: "github", err: core.NewProviderError("github", "token_exchange", nil)}
	store := NewInMemoryClaimStore()
	dispatcher := newTestDispatcher(t, nil, store, handler)

	req := CallbackRequest{ProviderID: "github", Callback: providers.Callback{State: "s", Code: "c"}}
	_, err := dispatcher.Dispatch(context.Background(), req)
	if err == nil {
		t.Fatalf("expected handler error")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.SocialErrorProvider || rich.Code != http.StatusBadGateway {
		t.Fatalf("expected provider error envelope, got %q/%d", rich.TextCode, rich.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("expected failed claim to be released")
	}

	if _, err := dispatcher.Dispatch(context.Background(), req); err == nil {
		t.Fatalf("expected retried callback to reach the handler again")
	}
	if handler.callCount() != 2 {
		t.Fatalf("expected two handler calls, got %d", handler.callCount())
	}
}

func TestDispatcher_RejectsUnknownProviderAndMissingState(t *testing.T) {
	dispatcher := newTestDispatcher(t, nil, nil, &stubCallbackHandler{id: "linkedin"})

	cases := []struct {
		name     string
		req      CallbackRequest
		textCode string
		status   int
	}{
		{"missing provider", CallbackRequest{Callback: providers.Callback{State: "s"}}, core.SocialErrorBadInput, http.StatusBadRequest},
		{"missing state", CallbackRequest{ProviderID: "linkedin"}, core.SocialErrorOAuthStateInvalid, http.StatusBadRequest},
		{"unknown provider", CallbackRequest{ProviderID: "orkut", Callback: providers.Callback{State: "s"}}, core.SocialErrorProviderNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		_, err := dispatcher.Dispatch(context.Background(), tc.req)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %v", tc.name, err)
		}
		if rich.TextCode != tc.textCode || rich.Code != tc.status {
			t.Fatalf("%s: expected %q/%d, got %q/%d", tc.name, tc.textCode, tc.status, rich.TextCode, rich.Code)
		}
	}
}

func TestDispatcher_VerifierRejection(t *testing.T) {
	handler := &stubCallbackHandler{id: "linkedin"}
	verifier := VerifierFunc(func(_ context.Context, req CallbackRequest) error {
		if req.Headers.Get("X-Forwarded-Host") != "app.example" {
			return errors.New("unexpected host")
		}
		return nil
	})
	dispatcher := newTestDispatcher(t, verifier, nil, handler)

	result, err := dispatcher.Dispatch(context.Background(), CallbackRequest{
		ProviderID: "linkedin",
		Callback:   providers.Callback{State: "s"},
		Headers:    http.Header{},
	})
	if err == nil || result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected verification failure, got %#v %v", result, err)
	}
	if handler.callCount() != 0 {
		t.Fatalf("expected handler not to run for rejected callback")
	}
}

func TestDispatcher_DuplicateRegistration(t *testing.T) {
	dispatcher := newTestDispatcher(t, nil, nil, &stubCallbackHandler{id: "google"})
	if err := dispatcher.Register(&stubCallbackHandler{id: " Google "}); err == nil {
		t.Fatalf("expected duplicate provider registration error")
	}
	if err := dispatcher.Register(nil); err == nil {
		t.Fatalf("expected nil handler to be rejected")
	}
	if ids := dispatcher.Providers(); len(ids) != 1 || ids[0] != "google" {
		t.Fatalf("unexpected providers %v", ids)
	}
}

func TestDispatcher_ServeHTTP(t *testing.T) {
	handler := &stubCallbackHandler{id: "linkedin"}
	dispatcher := newTestDispatcher(t, nil, NewInMemoryClaimStore(), handler)
	mux := http.NewServeMux()
	mux.Handle("/auth/{provider}/callback", dispatcher)

	ok := httptest.NewRecorder()
	mux.ServeHTTP(ok, httptest.NewRequest(http.MethodGet, "/auth/linkedin/callback?state=s1&code=c1", nil))
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", ok.Code, ok.Body.String())
	}
	if handler.callCount() != 1 || handler.calls[0].Code != "c1" {
		t.Fatalf("expected callback with code c1, got %#v", handler.calls)
	}

	unknown := httptest.NewRecorder()
	mux.ServeHTTP(unknown, httptest.NewRequest(http.MethodGet, "/auth/orkut/callback?state=s1", nil))
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", unknown.Code)
	}

	wrongMethod := httptest.NewRecorder()
	mux.ServeHTTP(wrongMethod, httptest.NewRequest(http.MethodDelete, "/auth/linkedin/callback", nil))
	if wrongMethod.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", wrongMethod.Code)
	}
}

func TestInMemoryClaimStore_ExpiresEntries(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryClaimStore()
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	claimID, accepted, err := store.Claim(ctx, "linkedin:s", time.Minute)
	if err != nil || !accepted {
		t.Fatalf("expected first claim accepted, err=%v", err)
	}
	if err := store.Complete(ctx, claimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, accepted, _ := store.Claim(ctx, "linkedin:s", time.Minute); accepted {
		t.Fatalf("expected completed key to be held within ttl")
	}

	now = now.Add(2 * time.Minute)
	if _, accepted, _ := store.Claim(ctx, "linkedin:s", time.Minute); !accepted {
		t.Fatalf("expected key to be claimable after ttl")
	}
	if _, _, err := store.Claim(ctx, " ", time.Minute); err == nil {
		t.Fatalf("expected blank key to be rejected")
	}
}

func TestInMemoryClaimStore_ConcurrentClaimsAcceptOne(t *testing.T) {
	store := NewInMemoryClaimStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.Claim(context.Background(), "github:state", time.Minute)
			if err != nil {
				panic(fmt.Sprintf("claim: %v", err))
			}
			if ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted claim, got %d", accepted)
	}
}
