package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-socialengine/core"
)

var (
	_ gocmd.Commander[ConfigureProviderMessage]    = (*ConfigureProviderCommand)(nil)
	_ gocmd.Commander[BeginAuthenticationMessage]  = (*BeginAuthenticationCommand)(nil)
	_ gocmd.Commander[CancelAuthenticationMessage] = (*CancelAuthenticationCommand)(nil)
	_ gocmd.Commander[LogoutMessage]               = (*LogoutCommand)(nil)
	_ gocmd.Commander[ReportSignalMessage]         = (*ReportSignalCommand)(nil)

	_ SessionService = (*core.Orchestrator)(nil)
)
