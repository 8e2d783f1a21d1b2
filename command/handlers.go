package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-socialengine/core"
)

// SessionService is the mutating surface of the orchestrator.
type SessionService interface {
	Configure(ctx context.Context, providerID string, cfg core.ProviderConfig) error
	Begin(ctx context.Context, providerID string) (*core.Ticket, error)
	Cancel(ctx context.Context, providerID string) error
	Logout(ctx context.Context, providerID string) error
	Report(ctx context.Context, attemptID string, signal core.Signal) (core.AuthResult, error)
}

type ConfigureProviderCommand struct {
	service SessionService
}

func NewConfigureProviderCommand(service SessionService) *ConfigureProviderCommand {
	return &ConfigureProviderCommand{service: service}
}

func (c *ConfigureProviderCommand) Execute(ctx context.Context, msg ConfigureProviderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: configure service is required")
	}
	return c.service.Configure(ctx, msg.ProviderID, msg.Config)
}

type BeginAuthenticationCommand struct {
	service SessionService
}

func NewBeginAuthenticationCommand(service SessionService) *BeginAuthenticationCommand {
	return &BeginAuthenticationCommand{service: service}
}

func (c *BeginAuthenticationCommand) Execute(ctx context.Context, msg BeginAuthenticationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: begin service is required")
	}
	ticket, err := c.service.Begin(ctx, msg.ProviderID)
	if err != nil {
		return err
	}
	storeResult(ctx, BeginAuthenticationResult{
		AttemptID:  ticket.AttemptID(),
		ProviderID: ticket.ProviderID(),
		Handoff:    ticket.Handoff(),
		Ticket:     ticket,
	})
	return nil
}

type CancelAuthenticationCommand struct {
	service SessionService
}

func NewCancelAuthenticationCommand(service SessionService) *CancelAuthenticationCommand {
	return &CancelAuthenticationCommand{service: service}
}

func (c *CancelAuthenticationCommand) Execute(ctx context.Context, msg CancelAuthenticationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancel service is required")
	}
	return c.service.Cancel(ctx, msg.ProviderID)
}

type LogoutCommand struct {
	service SessionService
}

func NewLogoutCommand(service SessionService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, msg LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: logout service is required")
	}
	return c.service.Logout(ctx, msg.ProviderID)
}

type ReportSignalCommand struct {
	service SessionService
}

func NewReportSignalCommand(service SessionService) *ReportSignalCommand {
	return &ReportSignalCommand{service: service}
}

func (c *ReportSignalCommand) Execute(ctx context.Context, msg ReportSignalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: report service is required")
	}
	result, err := c.service.Report(ctx, msg.AttemptID, msg.Signal)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
