package command

import (
	"strings"

	"github.com/goliatone/go-socialengine/core"
)

const (
	TypeConfigureProvider    = "social.command.provider.configure"
	TypeBeginAuthentication  = "social.command.authentication.begin"
	TypeCancelAuthentication = "social.command.authentication.cancel"
	TypeLogout               = "social.command.logout"
	TypeReportSignal         = "social.command.signal.report"
)

type ConfigureProviderMessage struct {
	ProviderID string
	Config     core.ProviderConfig
}

func (ConfigureProviderMessage) Type() string { return TypeConfigureProvider }

func (m ConfigureProviderMessage) Validate() error {
	if err := requireProviderID(m.ProviderID); err != nil {
		return err
	}
	return commandWrapValidation(m.Config.Normalize().Validate(), "command: invalid provider config")
}

type BeginAuthenticationMessage struct {
	ProviderID string
}

func (BeginAuthenticationMessage) Type() string { return TypeBeginAuthentication }

func (m BeginAuthenticationMessage) Validate() error {
	return requireProviderID(m.ProviderID)
}

type CancelAuthenticationMessage struct {
	ProviderID string
}

func (CancelAuthenticationMessage) Type() string { return TypeCancelAuthentication }

func (m CancelAuthenticationMessage) Validate() error {
	return requireProviderID(m.ProviderID)
}

type LogoutMessage struct {
	ProviderID string
}

func (LogoutMessage) Type() string { return TypeLogout }

func (m LogoutMessage) Validate() error {
	return requireProviderID(m.ProviderID)
}

// ReportSignalMessage delivers a provider callback that arrived outside the
// module, for example through a job or an out-of-process redirect handler.
type ReportSignalMessage struct {
	AttemptID string
	Signal    core.Signal
}

func (ReportSignalMessage) Type() string { return TypeReportSignal }

func (m ReportSignalMessage) Validate() error {
	if strings.TrimSpace(m.AttemptID) == "" {
		return commandValidationError("attempt_id", "attempt id is required")
	}
	return commandWrapValidation(m.Signal.Validate(), "command: invalid signal")
}

// BeginAuthenticationResult is stored for BeginAuthenticationMessage.
type BeginAuthenticationResult struct {
	AttemptID  string
	ProviderID string
	Handoff    core.Handoff
	Ticket     *core.Ticket
}

func requireProviderID(providerID string) error {
	if strings.TrimSpace(providerID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	return nil
}
