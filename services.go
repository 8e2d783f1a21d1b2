package socialengine

import "github.com/goliatone/go-socialengine/core"

type Config = core.Config

type AttemptConfig = core.AttemptConfig

type ProviderSettings = core.ProviderSettings

type Option = core.Option

type Orchestrator = core.Orchestrator

type ProviderSession = core.ProviderSession

type ProviderModule = core.ProviderModule
type ModuleRegistry = core.ModuleRegistry
type AttemptReporter = core.AttemptReporter
type ResultListener = core.ResultListener
type ResultListenerFunc = core.ResultListenerFunc
type AttemptStore = core.AttemptStore
type MetricsRecorder = core.MetricsRecorder
type OAuthStateStore = core.OAuthStateStore

type Scope = core.Scope
type FieldFlag = core.FieldFlag
type FieldSet = core.FieldSet
type ProviderConfig = core.ProviderConfig

type AuthAttempt = core.AuthAttempt
type AuthResult = core.AuthResult
type AttemptRecord = core.AttemptRecord
type AttemptFilter = core.AttemptFilter
type Profile = core.Profile
type Outcome = core.Outcome
type ErrorKind = core.ErrorKind
type Signal = core.Signal
type Ticket = core.Ticket
type Handoff = core.Handoff

const (
	ScopeDefault     = core.ScopeDefault
	ScopeFullProfile = core.ScopeFullProfile
	ScopeEmail       = core.ScopeEmail

	OutcomeLoggedIn = core.OutcomeLoggedIn
	OutcomeCanceled = core.OutcomeCanceled
	OutcomeError    = core.OutcomeError

	DefaultAttemptTimeout = core.DefaultAttemptTimeout
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithRegistry           = core.WithRegistry
	WithModules            = core.WithModules
	WithAttemptStore       = core.WithAttemptStore
	WithResultListener     = core.WithResultListener
	WithClock              = core.WithClock
	WithAttemptIDGenerator = core.WithAttemptIDGenerator
)

var (
	NewFieldSet       = core.NewFieldSet
	ParseFieldSet     = core.ParseFieldSet
	ParseScope        = core.ParseScope
	NewModuleRegistry = core.NewModuleRegistry
	SuccessSignal     = core.SuccessSignal
	CancelSignal      = core.CancelSignal
	ErrorSignal       = core.ErrorSignal
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// New builds an orchestrator. A zero Config is filled from DefaultConfig
// and any configured ConfigProvider.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	return core.NewOrchestrator(cfg, opts...)
}
