package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers/devkit"
)

type stubSessionService struct {
	configureFn func(ctx context.Context, providerID string, cfg core.ProviderConfig) error
	cancelFn    func(ctx context.Context, providerID string) error
	logoutFn    func(ctx context.Context, providerID string) error
}

func (s stubSessionService) Configure(ctx context.Context, providerID string, cfg core.ProviderConfig) error {
	if s.configureFn != nil {
		return s.configureFn(ctx, providerID, cfg)
	}
	return nil
}

func (stubSessionService) Begin(context.Context, string) (*core.Ticket, error) {
	return nil, errors.New("not implemented")
}

func (s stubSessionService) Cancel(ctx context.Context, providerID string) error {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, providerID)
	}
	return nil
}

func (s stubSessionService) Logout(ctx context.Context, providerID string) error {
	if s.logoutFn != nil {
		return s.logoutFn(ctx, providerID)
	}
	return nil
}

func (stubSessionService) Report(context.Context, string, core.Signal) (core.AuthResult, error) {
	return core.AuthResult{}, core.ErrAttemptNotPending
}

func newOrchestrator(t *testing.T, module core.ProviderModule) *core.Orchestrator {
	t.Helper()
	orchestrator, err := core.NewOrchestrator(core.Config{}, core.WithModules(module))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() { _ = orchestrator.Close(context.Background()) })
	return orchestrator
}

func TestBeginAuthenticationCommand_StoresHandoff(t *testing.T) {
	module := devkit.NewFakeModule("linkedin", devkit.WithScripts(devkit.ModuleScript{Behavior: devkit.BehaviorHang}))
	orchestrator := newOrchestrator(t, module)
	ctx := context.Background()

	if err := NewConfigureProviderCommand(orchestrator).Execute(ctx, ConfigureProviderMessage{
		ProviderID: "linkedin",
		Config:     core.ProviderConfig{Scope: core.ScopeEmail},
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	collector := gocmd.NewResult[BeginAuthenticationResult]()
	if err := NewBeginAuthenticationCommand(orchestrator).Execute(gocmd.ContextWithResult(ctx, collector), BeginAuthenticationMessage{ProviderID: "linkedin"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected begin result to be stored")
	}
	if result.AttemptID == "" || result.ProviderID != "linkedin" || result.Handoff.URL == "" {
		t.Fatalf("unexpected begin result %#v", result)
	}

	err := NewBeginAuthenticationCommand(orchestrator).Execute(ctx, BeginAuthenticationMessage{ProviderID: "linkedin"})
	if !errors.Is(err, core.ErrAlreadyInProgress) {
		t.Fatalf("expected already in progress, got %v", err)
	}

	if err := NewCancelAuthenticationCommand(orchestrator).Execute(ctx, CancelAuthenticationMessage{ProviderID: "linkedin"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	final, err := result.Ticket.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Outcome != core.OutcomeCanceled {
		t.Fatalf("expected canceled, got %q", final.Outcome)
	}
}

func TestReportSignalCommand_StoresResult(t *testing.T) {
	module := devkit.NewFakeModule("linkedin", devkit.WithScripts(devkit.ModuleScript{Behavior: devkit.BehaviorHang}))
	orchestrator := newOrchestrator(t, module)
	ctx := context.Background()
	if err := orchestrator.Configure(ctx, "linkedin", core.ProviderConfig{}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	ticket, err := orchestrator.Begin(ctx, "linkedin")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	collector := gocmd.NewResult[core.AuthResult]()
	err = NewReportSignalCommand(orchestrator).Execute(gocmd.ContextWithResult(ctx, collector), ReportSignalMessage{
		AttemptID: ticket.AttemptID(),
		Signal:    core.SuccessSignal(map[string]any{"name": "Ada"}),
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Outcome != core.OutcomeLoggedIn || result.Profile[core.FieldName] != "Ada" {
		t.Fatalf("unexpected stored result %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("logout", func(t *testing.T) {
		called := false
		svc := stubSessionService{logoutFn: func(_ context.Context, providerID string) error {
			called = providerID == "github"
			return nil
		}}
		if err := NewLogoutCommand(svc).Execute(context.Background(), LogoutMessage{ProviderID: "github"}); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if !called {
			t.Fatalf("expected logout delegation")
		}
	})

	t.Run("configure error", func(t *testing.T) {
		svc := stubSessionService{configureFn: func(context.Context, string, core.ProviderConfig) error {
			return core.ErrProviderNotFound
		}}
		err := NewConfigureProviderCommand(svc).Execute(context.Background(), ConfigureProviderMessage{ProviderID: "orkut"})
		if !errors.Is(err, core.ErrProviderNotFound) {
			t.Fatalf("expected service error to propagate, got %v", err)
		}
	})
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := map[string]interface{ Validate() error }{
		"configure":  ConfigureProviderMessage{},
		"begin":      BeginAuthenticationMessage{ProviderID: " "},
		"cancel":     CancelAuthenticationMessage{},
		"logout":     LogoutMessage{},
		"report":     ReportSignalMessage{},
		"bad signal": ReportSignalMessage{AttemptID: "att_1", Signal: core.Signal{Kind: core.SignalError}},
		"bad scope":  ConfigureProviderMessage{ProviderID: "linkedin", Config: core.ProviderConfig{Scope: "root"}},
	}
	for name, msg := range cases {
		err := msg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.TextCode != core.SocialErrorBadInput {
			t.Fatalf("%s: expected %q text code, got %q", name, core.SocialErrorBadInput, rich.TextCode)
		}
	}
	if err := (ConfigureProviderMessage{ProviderID: "linkedin"}).Validate(); err != nil {
		t.Fatalf("expected valid configure message: %v", err)
	}
}

func TestCommands_NilServiceReturnsRichError(t *testing.T) {
	var cmd *BeginAuthenticationCommand
	err := cmd.Execute(context.Background(), BeginAuthenticationMessage{ProviderID: "linkedin"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal go-errors envelope, got %v", err)
	}
}
