package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ProviderModule is the capability surface every social provider exposes
// to the orchestrator. Authorize hands control to the provider's external
// flow and returns immediately; the terminal outcome arrives later through
// the AttemptReporter carried by the request.
type ProviderModule interface {
	ID() string
	SupportedScopes() []Scope
	SupportedFields() FieldSet
	Configure(ctx context.Context, cfg ProviderConfig) error
	Authorize(ctx context.Context, req AuthorizeRequest) (Handoff, error)
	Cancel(ctx context.Context, attemptID string) error
	Logout(ctx context.Context) error
}

// FieldPath is a dotted path into a provider payload. Alternatives are
// separated by "|" and tried in order.
type FieldPath string

// FieldMapper is implemented by modules whose payload keys differ from
// the field flag names.
type FieldMapper interface {
	FieldMapping() map[FieldFlag]FieldPath
}

type AuthorizeRequest struct {
	AttemptID string
	Config    ProviderConfig
	Reporter  AttemptReporter
	Metadata  map[string]any
}

// AttemptReporter routes provider callbacks to a single attempt. Reports
// after the attempt reached a terminal state return ErrAttemptNotPending.
type AttemptReporter interface {
	AttemptID() string
	Succeed(ctx context.Context, payload map[string]any) error
	Cancel(ctx context.Context) error
	Fail(ctx context.Context, err error) error
}

// SignalReporter is implemented by reporters that accept a full signal,
// including result metadata.
type SignalReporter interface {
	Signal(ctx context.Context, signal Signal) error
}

type ModuleRegistry interface {
	Register(module ProviderModule) error
	Get(providerID string) (ProviderModule, bool)
	List() []ProviderModule
}

// ResultListener receives every terminal result in completion order from
// the orchestrator's dispatcher goroutine. OnResult must return promptly
// and must not wait on another Ticket (Authenticate, Ticket.Wait): the
// result it waits for is delivered by the same goroutine, so the wait
// only ends with its context and every provider's results stall behind it. Start new
// attempts from a separate goroutine.
type ResultListener interface {
	OnResult(ctx context.Context, result AuthResult)
}

type ResultListenerFunc func(ctx context.Context, result AuthResult)

func (f ResultListenerFunc) OnResult(ctx context.Context, result AuthResult) {
	if f != nil {
		f(ctx, result)
	}
}

type AttemptRecord struct {
	AttemptID   string
	ProviderID  string
	Scope       Scope
	Fields      []string
	Status      AttemptStatus
	Outcome     Outcome
	ErrorKind   ErrorKind
	Error       string
	Profile     map[string]any
	StartedAt   time.Time
	CompletedAt time.Time
}

type AttemptFilter struct {
	ProviderID string
	Status     AttemptStatus
	Page       int
	PerPage    int
}

type AttemptPage struct {
	Items   []AttemptRecord
	Total   int
	Page    int
	PerPage int
}

// AttemptStore keeps the history of terminal attempts.
type AttemptStore interface {
	Record(ctx context.Context, record AttemptRecord) error
	Get(ctx context.Context, attemptID string) (AttemptRecord, error)
	List(ctx context.Context, filter AttemptFilter) (AttemptPage, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
