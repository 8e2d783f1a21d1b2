package gocommand

import (
	"fmt"

	"github.com/goliatone/go-command/runner"

	"github.com/goliatone/go-socialengine/command"
	"github.com/goliatone/go-socialengine/query"
)

// Handlers are the dependencies the social commands and queries run against.
// History may be nil when attempt history is disabled.
type Handlers struct {
	Sessions command.SessionService
	Pending  query.PendingAttemptReader
	History  query.AttemptHistoryReader
}

// RegisterSocialHandlers registers and subscribes every social command and
// query on bus. On failure the subscriptions made by this call are released.
func RegisterSocialHandlers(bus *Bus, handlers Handlers, runnerOpts ...runner.Option) (err error) {
	if bus == nil {
		return fmt.Errorf("gocommand: bus is required")
	}
	if handlers.Sessions == nil {
		return fmt.Errorf("gocommand: session service is required")
	}
	if handlers.Pending == nil {
		return fmt.Errorf("gocommand: pending attempt reader is required")
	}
	mark := bus.Len()
	defer func() {
		if err != nil {
			bus.releaseFrom(mark)
		}
	}()

	steps := []func() error{
		func() error {
			return RegisterCommand(bus, command.NewConfigureProviderCommand(handlers.Sessions), runnerOpts...)
		},
		func() error {
			return RegisterCommand(bus, command.NewBeginAuthenticationCommand(handlers.Sessions), runnerOpts...)
		},
		func() error {
			return RegisterCommand(bus, command.NewCancelAuthenticationCommand(handlers.Sessions), runnerOpts...)
		},
		func() error { return RegisterCommand(bus, command.NewLogoutCommand(handlers.Sessions), runnerOpts...) },
		func() error { return RegisterCommand(bus, command.NewReportSignalCommand(handlers.Sessions), runnerOpts...) },
		func() error {
			return RegisterQuery(bus, query.NewGetPendingAttemptQuery(handlers.Pending), runnerOpts...)
		},
		func() error {
			return RegisterQuery(bus, query.NewListPendingAttemptsQuery(handlers.Pending), runnerOpts...)
		},
	}
	if handlers.History != nil {
		steps = append(steps,
			func() error {
				return RegisterQuery(bus, query.NewGetAttemptRecordQuery(handlers.History), runnerOpts...)
			},
			func() error {
				return RegisterQuery(bus, query.NewListAttemptHistoryQuery(handlers.History), runnerOpts...)
			},
		)
	}
	for _, step := range steps {
		if err = step(); err != nil {
			return err
		}
	}
	return nil
}
