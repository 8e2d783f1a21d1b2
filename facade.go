package socialengine

import (
	"fmt"

	socialcommand "github.com/goliatone/go-socialengine/command"
	"github.com/goliatone/go-socialengine/core"
	socialquery "github.com/goliatone/go-socialengine/query"
)

// CommandQueryService is the orchestrator surface the facade needs.
type CommandQueryService interface {
	socialcommand.SessionService
	socialquery.PendingAttemptReader
}

type Commands struct {
	ConfigureProvider    *socialcommand.ConfigureProviderCommand
	BeginAuthentication  *socialcommand.BeginAuthenticationCommand
	CancelAuthentication *socialcommand.CancelAuthenticationCommand
	Logout               *socialcommand.LogoutCommand
	ReportSignal         *socialcommand.ReportSignalCommand
}

// Queries holds the query handlers. History queries are nil when no
// history reader could be resolved.
type Queries struct {
	GetPendingAttempt   *socialquery.GetPendingAttemptQuery
	ListPendingAttempts *socialquery.ListPendingAttemptsQuery
	GetAttemptRecord    *socialquery.GetAttemptRecordQuery
	ListAttemptHistory  *socialquery.ListAttemptHistoryQuery
}

type Facade struct {
	service  CommandQueryService
	history  socialquery.AttemptHistoryReader
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	historyReader socialquery.AttemptHistoryReader
}

func WithHistoryReader(reader socialquery.AttemptHistoryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.historyReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("socialengine: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.historyReader
	if reader == nil {
		reader = resolveHistoryReader(service)
	}

	facade := &Facade{service: service, history: reader}
	facade.commands = Commands{
		ConfigureProvider:    socialcommand.NewConfigureProviderCommand(service),
		BeginAuthentication:  socialcommand.NewBeginAuthenticationCommand(service),
		CancelAuthentication: socialcommand.NewCancelAuthenticationCommand(service),
		Logout:               socialcommand.NewLogoutCommand(service),
		ReportSignal:         socialcommand.NewReportSignalCommand(service),
	}
	facade.queries = Queries{
		GetPendingAttempt:   socialquery.NewGetPendingAttemptQuery(service),
		ListPendingAttempts: socialquery.NewListPendingAttemptsQuery(service),
	}
	if reader != nil {
		facade.queries.GetAttemptRecord = socialquery.NewGetAttemptRecordQuery(reader)
		facade.queries.ListAttemptHistory = socialquery.NewListAttemptHistoryQuery(reader)
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// HistoryReader returns the reader behind the history queries, or nil.
func (f *Facade) HistoryReader() socialquery.AttemptHistoryReader {
	if f == nil {
		return nil
	}
	return f.history
}

func resolveHistoryReader(service CommandQueryService) socialquery.AttemptHistoryReader {
	if reader, ok := service.(socialquery.AttemptHistoryReader); ok {
		return reader
	}
	provider, ok := service.(interface{ AttemptStore() core.AttemptStore })
	if !ok {
		return nil
	}
	store := provider.AttemptStore()
	if store == nil {
		return nil
	}
	return store
}
