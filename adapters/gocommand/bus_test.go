package gocommand

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	"github.com/goliatone/go-socialengine/command"
	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers/devkit"
	"github.com/goliatone/go-socialengine/query"
)

type pingMessage struct {
	ID string
}

func (pingMessage) Type() string { return "social.command.test.ping" }

type untypedMessage struct{}

func (untypedMessage) Type() string { return "" }

type foreignMessage struct{}

func (foreignMessage) Type() string { return "billing.charge" }

type rejectedMessage struct{}

func (rejectedMessage) Type() string { return "social.command.test.rejected" }

func (rejectedMessage) Validate() error { return errors.New("invalid payload") }

type queueMessage struct{}

func (queueMessage) Type() string { return "social.command.test.queue" }

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage(pingMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessage(untypedMessage{}); err == nil {
		t.Fatalf("expected empty type to fail")
	}
	if err := ValidateMessage(foreignMessage{}); err == nil {
		t.Fatalf("expected message outside the social namespace to fail")
	}
	if err := ValidateMessage(rejectedMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessage(struct{}{}); err == nil {
		t.Fatalf("expected non-message to fail")
	}
}

func TestBus_RegisterDispatchAndClose(t *testing.T) {
	bus := NewBus(nil)
	executed := 0
	resolverCalls := 0

	cmd := gocmd.CommandFunc[pingMessage](func(context.Context, pingMessage) error {
		executed++
		return nil
	})
	if err := RegisterCommand[pingMessage](bus, cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if bus.Len() != 1 {
		t.Fatalf("expected one tracked subscription, got %d", bus.Len())
	}
	if err := bus.AddResolver("custom", func(any, gocmd.CommandMeta, *gocmd.Registry) error {
		resolverCalls++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if resolverCalls == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), pingMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected one execution, got %d", executed)
	}
	if err := Dispatch(context.Background(), foreignMessage{}); err == nil {
		t.Fatalf("expected foreign message to be rejected before dispatch")
	}

	bus.Close()
	if bus.Len() != 0 {
		t.Fatalf("expected close to release subscriptions")
	}
}

func TestBus_RejectsForeignHandlers(t *testing.T) {
	bus := NewBus(gocmd.NewRegistry())
	cmd := gocmd.CommandFunc[foreignMessage](func(context.Context, foreignMessage) error { return nil })
	if err := RegisterCommand[foreignMessage](bus, cmd); err == nil {
		t.Fatalf("expected foreign message type to be rejected")
	}
	if bus.Len() != 0 {
		t.Fatalf("expected no subscription for rejected handler")
	}
}

func TestBus_MirrorToQueue(t *testing.T) {
	bus := NewBus(gocmd.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	defer bus.Close()

	if err := bus.MirrorToQueue(queueRegistry); err != nil {
		t.Fatalf("mirror to queue: %v", err)
	}
	if err := bus.MirrorToQueue(nil); err == nil {
		t.Fatalf("expected nil queue registry to be rejected")
	}
	cmd := gocmd.CommandFunc[queueMessage](func(context.Context, queueMessage) error { return nil })
	if err := RegisterCommand[queueMessage](bus, cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, ok := queueRegistry.Get("social.command.test.queue"); !ok {
		t.Fatalf("expected command mirrored into queue registry")
	}
}

func TestRegisterSocialHandlers_DispatchesCommandsAndQueries(t *testing.T) {
	ctx := context.Background()
	module := devkit.NewFakeModule("linkedin", devkit.WithScripts(devkit.ModuleScript{Behavior: devkit.BehaviorHang}))
	orchestrator, err := core.NewOrchestrator(core.Config{}, core.WithModules(module))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(ctx)

	bus := NewBus(gocmd.NewRegistry())
	if err := RegisterSocialHandlers(bus, Handlers{
		Sessions: orchestrator,
		Pending:  orchestrator,
		History:  orchestrator.AttemptStore(),
	}); err != nil {
		t.Fatalf("register social handlers: %v", err)
	}
	defer bus.Close()
	if bus.Len() != 9 {
		t.Fatalf("expected nine subscriptions, got %d", bus.Len())
	}

	if err := Dispatch(ctx, command.ConfigureProviderMessage{
		ProviderID: "linkedin",
		Config:     core.ProviderConfig{Scope: core.ScopeDefault},
	}); err != nil {
		t.Fatalf("dispatch configure: %v", err)
	}

	collector := gocmd.NewResult[command.BeginAuthenticationResult]()
	if err := Dispatch(gocmd.ContextWithResult(ctx, collector), command.BeginAuthenticationMessage{ProviderID: "linkedin"}); err != nil {
		t.Fatalf("dispatch begin: %v", err)
	}
	begun, ok := collector.Load()
	if !ok || begun.AttemptID == "" {
		t.Fatalf("expected begin result, got %#v", begun)
	}

	pending, err := Query[query.GetPendingAttemptMessage, query.PendingAttempt](ctx, query.GetPendingAttemptMessage{ProviderID: "linkedin"})
	if err != nil {
		t.Fatalf("query pending: %v", err)
	}
	if !pending.Found || pending.Attempt.ID != begun.AttemptID {
		t.Fatalf("expected pending attempt %q, got %#v", begun.AttemptID, pending)
	}

	if err := Dispatch(ctx, command.CancelAuthenticationMessage{ProviderID: "linkedin"}); err != nil {
		t.Fatalf("dispatch cancel: %v", err)
	}
	final, err := begun.Ticket.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Outcome != core.OutcomeCanceled {
		t.Fatalf("expected canceled outcome, got %q", final.Outcome)
	}

	record, err := Query[query.GetAttemptRecordMessage, core.AttemptRecord](ctx, query.GetAttemptRecordMessage{AttemptID: begun.AttemptID})
	if err != nil {
		t.Fatalf("query attempt record: %v", err)
	}
	if record.Outcome != core.OutcomeCanceled {
		t.Fatalf("expected canceled record, got %q", record.Outcome)
	}
}

func TestRegisterSocialHandlers_WithoutHistory(t *testing.T) {
	orchestrator, err := core.NewOrchestrator(core.Config{}, core.WithModules(devkit.NewFakeModule("github")))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(context.Background())

	bus := NewBus(gocmd.NewRegistry())
	defer bus.Close()
	if err := RegisterSocialHandlers(bus, Handlers{Sessions: orchestrator, Pending: orchestrator}); err != nil {
		t.Fatalf("register social handlers: %v", err)
	}
	if bus.Len() != 7 {
		t.Fatalf("expected seven subscriptions, got %d", bus.Len())
	}
}

func TestRegisterSocialHandlers_RequiresDependencies(t *testing.T) {
	bus := NewBus(gocmd.NewRegistry())
	if err := RegisterSocialHandlers(bus, Handlers{}); err == nil {
		t.Fatalf("expected missing session service to fail")
	}
	if err := RegisterSocialHandlers(nil, Handlers{}); err == nil {
		t.Fatalf("expected nil bus to fail")
	}
}
