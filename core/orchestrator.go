package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ErrCancelDeferred is returned by ProviderModule.Cancel when the module
// will acknowledge the cancellation later through its AttemptReporter.
var ErrCancelDeferred = errors.New("core: cancel acknowledgement deferred")

type attemptEntry struct {
	attempt AuthAttempt
	module  ProviderModule
	timer   *time.Timer
	ticket  *Ticket
}

// Orchestrator owns the attempt table. It is the only writer of attempt
// status and keeps at most one pending attempt per provider.
type Orchestrator struct {
	config      Config
	registry    ModuleRegistry
	reporter    *ResultReporter
	store       AttemptStore
	errorMapper ErrorMapper
	telemetry   telemetry
	logger      Logger
	now         func() time.Time
	newID       func() string
	listeners   []ResultListener
	dispatcher  *resultDispatcher

	mu       sync.Mutex
	configs  map[string]ProviderConfig
	attempts map[string]*attemptEntry
	byID     map[string]string
	closed   bool
}

func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	builder := defaultOrchestratorBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultLoggerName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("socialengine.orchestrator"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewModuleRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}
	if builder.newAttemptID == nil {
		builder.newAttemptID = defaultOrchestratorBuilder(cfg).newAttemptID
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	for _, module := range builder.modules {
		if err := builder.registry.Register(module); err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	store := builder.attemptStore
	if store == nil && finalConfig.Attempt.HistoryEnabled {
		store = NewMemoryAttemptStore()
	}

	o := &Orchestrator{
		config:      finalConfig,
		registry:    builder.registry,
		reporter:    NewResultReporter(builder.now),
		store:       store,
		errorMapper: builder.errorMapper,
		telemetry:   telemetry{logger: logger, metrics: builder.metricsRecorder, now: builder.now},
		logger:      logger,
		now:         builder.now,
		newID:       builder.newAttemptID,
		listeners:   append([]ResultListener(nil), builder.listeners...),
		configs:     map[string]ProviderConfig{},
		attempts:    map[string]*attemptEntry{},
		byID:        map[string]string{},
	}
	o.dispatcher = newResultDispatcher(finalConfig.dispatchBuffer(), o.deliver)
	return o, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (o *Orchestrator) Config() Config {
	if o == nil {
		return Config{}
	}
	return o.config
}

func (o *Orchestrator) Registry() ModuleRegistry {
	if o == nil {
		return nil
	}
	return o.registry
}

func (o *Orchestrator) AttemptStore() AttemptStore {
	if o == nil {
		return nil
	}
	return o.store
}

// MapError converts err into the social error envelope using the
// orchestrator's mapper.
func (o *Orchestrator) MapError(err error) error {
	if o == nil {
		return err
	}
	return mapBuildError(o.errorMapper, err)
}

// AddResultListener registers listener for results completed from now on.
func (o *Orchestrator) AddResultListener(listener ResultListener) {
	if o == nil || listener == nil {
		return
	}
	o.mu.Lock()
	o.listeners = append(o.listeners, listener)
	o.mu.Unlock()
}

// Configure validates cfg against the provider module and stores it for
// subsequent attempts. Pending attempts keep the snapshot they started with.
func (o *Orchestrator) Configure(ctx context.Context, providerID string, cfg ProviderConfig) (err error) {
	startedAt := o.now()
	id := normalizeProviderID(providerID)
	fields := map[string]any{"provider_id": id, "scope": string(cfg.Scope)}
	defer func() {
		o.telemetry.observe(ctx, startedAt, "configure", err, fields)
	}()

	module, err := o.module(id)
	if err != nil {
		return err
	}
	cfg = cfg.Normalize()
	fields["scope"] = string(cfg.Scope)
	fields["fields"] = cfg.RequestedFields.String()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if supported := module.SupportedScopes(); len(supported) > 0 && !slices.Contains(supported, cfg.Scope) {
		return fmt.Errorf("core: scope %q is not supported by provider %s", cfg.Scope, id)
	}
	if supported := module.SupportedFields(); !supported.IsEmpty() {
		if unsupported := cfg.RequestedFields.Difference(supported); !unsupported.IsEmpty() {
			return fmt.Errorf("core: field(s) %s not supported by provider %s", unsupported, id)
		}
	}
	if err := module.Configure(ctx, cfg.Clone()); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOrchestratorClosed
	}
	o.configs[id] = cfg.Clone()
	return nil
}

// ConfigureFromConfig applies every provider listed in the resolved
// configuration. Providers without a registered module are skipped.
func (o *Orchestrator) ConfigureFromConfig(ctx context.Context) error {
	if o == nil {
		return fmt.Errorf("core: orchestrator is nil")
	}
	for _, id := range o.config.ProviderIDs() {
		cfg, ok, err := o.config.ProviderConfig(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, registered := o.registry.Get(id); !registered {
			o.telemetry.log(ctx, "warn", "configured provider has no module", map[string]any{"provider_id": id})
			continue
		}
		if err := o.Configure(ctx, id, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) ProviderConfig(providerID string) (ProviderConfig, bool) {
	if o == nil {
		return ProviderConfig{}, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	cfg, ok := o.configs[normalizeProviderID(providerID)]
	return cfg.Clone(), ok
}

// Begin starts an attempt and hands control to the provider. Only lookup,
// configuration and concurrency violations fail the call; provider failures
// resolve the returned ticket instead.
func (o *Orchestrator) Begin(ctx context.Context, providerID string) (ticket *Ticket, err error) {
	if o == nil {
		return nil, fmt.Errorf("core: orchestrator is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := o.now()
	id := normalizeProviderID(providerID)
	fields := map[string]any{"provider_id": id}
	defer func() {
		if ticket != nil {
			fields["attempt_id"] = ticket.AttemptID()
		}
		o.telemetry.observe(ctx, startedAt, "begin", err, fields)
	}()

	module, err := o.module(id)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrOrchestratorClosed
	}
	cfg, configured := o.configs[id]
	if !configured {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, id)
	}
	if existing, pending := o.attempts[id]; pending {
		o.mu.Unlock()
		fields["pending_attempt_id"] = existing.attempt.ID
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInProgress, id)
	}

	timeout := o.timeoutFor(cfg)
	attempt := AuthAttempt{
		ID:         o.newID(),
		ProviderID: id,
		Config:     cfg.Clone(),
		Status:     AttemptStatusPending,
		StartedAt:  startedAt,
		Deadline:   startedAt.Add(timeout),
	}
	entry := &attemptEntry{attempt: attempt, module: module}
	entry.ticket = newTicket(attempt)
	attemptID := attempt.ID
	entry.timer = time.AfterFunc(timeout, func() { o.expire(attemptID) })
	o.attempts[id] = entry
	o.byID[attemptID] = id
	o.mu.Unlock()

	ticket = entry.ticket
	handoff, authErr := module.Authorize(ctx, AuthorizeRequest{
		AttemptID: attemptID,
		Config:    attempt.Config.Clone(),
		Reporter:  &attemptReporter{orchestrator: o, attemptID: attemptID},
	})
	if authErr != nil {
		fields["authorize_error"] = authErr.Error()
		if _, reportErr := o.Report(ctx, attemptID, ErrorSignal(authErr)); reportErr != nil && !errors.Is(reportErr, ErrAttemptNotPending) {
			return ticket, reportErr
		}
		return ticket, nil
	}

	ticket.attempt.Handoff = handoff.Clone()
	o.mu.Lock()
	if current, ok := o.attempts[id]; ok && current.attempt.ID == attemptID {
		current.attempt.Handoff = handoff.Clone()
	}
	o.mu.Unlock()
	return ticket, nil
}

// Authenticate begins an attempt and waits for its terminal result. When
// ctx ends first the attempt is canceled and its canceled result returned.
func (o *Orchestrator) Authenticate(ctx context.Context, providerID string) (AuthResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ticket, err := o.Begin(ctx, providerID)
	if err != nil {
		return AuthResult{}, err
	}
	select {
	case <-ticket.Done():
	case <-ctx.Done():
		_ = o.cancelAttempt(context.WithoutCancel(ctx), ticket.ProviderID(), ticket.AttemptID())
		<-ticket.Done()
	}
	result, _ := ticket.Result()
	return result, nil
}

// Report routes a provider signal to the pending attempt identified by
// attemptID. Signals for unknown or already terminal attempts fail with
// ErrAttemptNotPending.
func (o *Orchestrator) Report(ctx context.Context, attemptID string, signal Signal) (AuthResult, error) {
	if o == nil {
		return AuthResult{}, fmt.Errorf("core: orchestrator is nil")
	}
	if err := signal.Validate(); err != nil {
		return AuthResult{}, err
	}
	return o.finalize(ctx, strings.TrimSpace(attemptID), "report", func(attempt AuthAttempt, module ProviderModule) AuthResult {
		return o.reporter.Report(attempt, signal, module)
	})
}

// Cancel requests cancellation of the pending attempt for providerID. It
// is a no-op when nothing is pending.
func (o *Orchestrator) Cancel(ctx context.Context, providerID string) error {
	if o == nil {
		return fmt.Errorf("core: orchestrator is nil")
	}
	id := normalizeProviderID(providerID)
	if _, err := o.module(id); err != nil {
		return err
	}
	o.mu.Lock()
	entry, ok := o.attempts[id]
	attemptID := ""
	if ok {
		attemptID = entry.attempt.ID
	}
	o.mu.Unlock()
	if !ok {
		return nil
	}
	return o.cancelAttempt(ctx, id, attemptID)
}

func (o *Orchestrator) cancelAttempt(ctx context.Context, providerID string, attemptID string) (err error) {
	startedAt := o.now()
	fields := map[string]any{"provider_id": providerID, "attempt_id": attemptID}
	defer func() {
		o.telemetry.observe(ctx, startedAt, "cancel", err, fields)
	}()

	o.mu.Lock()
	entry, ok := o.attempts[providerID]
	if !ok || entry.attempt.ID != attemptID {
		o.mu.Unlock()
		return nil
	}
	entry.attempt.CancelRequested = true
	module := entry.module
	o.mu.Unlock()

	cancelErr := module.Cancel(ctx, attemptID)
	switch {
	case cancelErr == nil:
		fields["acknowledged"] = true
		if _, err := o.finalize(ctx, attemptID, "cancel", func(attempt AuthAttempt, _ ProviderModule) AuthResult {
			return o.reporter.Canceled(attempt)
		}); err != nil && !errors.Is(err, ErrAttemptNotPending) {
			return err
		}
		return nil
	case errors.Is(cancelErr, ErrCancelDeferred):
		fields["acknowledged"] = false
		return nil
	default:
		return cancelErr
	}
}

// Logout cancels any pending attempt and clears the provider session.
func (o *Orchestrator) Logout(ctx context.Context, providerID string) (err error) {
	if o == nil {
		return fmt.Errorf("core: orchestrator is nil")
	}
	startedAt := o.now()
	id := normalizeProviderID(providerID)
	fields := map[string]any{"provider_id": id}
	defer func() {
		o.telemetry.observe(ctx, startedAt, "logout", err, fields)
	}()

	module, err := o.module(id)
	if err != nil {
		return err
	}
	if err := o.Cancel(ctx, id); err != nil {
		fields["cancel_error"] = err.Error()
	}
	return module.Logout(ctx)
}

func (o *Orchestrator) Attempt(providerID string) (AuthAttempt, bool) {
	if o == nil {
		return AuthAttempt{}, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.attempts[normalizeProviderID(providerID)]
	if !ok {
		return AuthAttempt{}, false
	}
	return entry.attempt.Clone(), true
}

func (o *Orchestrator) Pending() []AuthAttempt {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	out := make([]AuthAttempt, 0, len(o.attempts))
	for _, entry := range o.attempts {
		out = append(out, entry.attempt.Clone())
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// Close cancels every pending attempt, waits for their results to be
// delivered and stops the dispatcher.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	type pendingRef struct {
		attemptID string
		module    ProviderModule
	}
	pending := make([]pendingRef, 0, len(o.attempts))
	for _, entry := range o.attempts {
		entry.attempt.CancelRequested = true
		pending = append(pending, pendingRef{attemptID: entry.attempt.ID, module: entry.module})
	}
	o.mu.Unlock()

	for _, ref := range pending {
		if err := ref.module.Cancel(ctx, ref.attemptID); err != nil && !errors.Is(err, ErrCancelDeferred) {
			o.telemetry.log(ctx, "warn", "provider cancel failed during close", map[string]any{
				"attempt_id": ref.attemptID,
				"error":      err.Error(),
			})
		}
		_, _ = o.finalize(ctx, ref.attemptID, "close", func(attempt AuthAttempt, _ ProviderModule) AuthResult {
			return o.reporter.Canceled(attempt)
		})
	}
	return o.dispatcher.stop(ctx)
}

// Session returns the per-provider facade.
func (o *Orchestrator) Session(providerID string) *ProviderSession {
	return &ProviderSession{orchestrator: o, providerID: normalizeProviderID(providerID)}
}

// expire resolves a timed-out attempt and then tells the module to drop
// it, so a late provider redirect cannot complete it.
func (o *Orchestrator) expire(attemptID string) {
	ctx := context.Background()
	var module ProviderModule
	if _, err := o.finalize(ctx, attemptID, "timeout", func(attempt AuthAttempt, m ProviderModule) AuthResult {
		module = m
		return o.reporter.Timeout(attempt)
	}); err != nil || module == nil {
		return
	}
	if err := module.Cancel(ctx, attemptID); err != nil && !errors.Is(err, ErrCancelDeferred) {
		o.telemetry.log(ctx, "warn", "provider cancel failed after timeout", map[string]any{
			"attempt_id": attemptID,
			"error":      err.Error(),
		})
	}
}

// finalize performs the single terminal transition of an attempt and
// schedules delivery of its result.
func (o *Orchestrator) finalize(
	ctx context.Context,
	attemptID string,
	trigger string,
	build func(AuthAttempt, ProviderModule) AuthResult,
) (AuthResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	providerID, ok := o.byID[attemptID]
	if !ok {
		o.mu.Unlock()
		return AuthResult{}, fmt.Errorf("%w: %s", ErrAttemptNotPending, attemptID)
	}
	entry := o.attempts[providerID]
	if entry == nil || entry.attempt.ID != attemptID {
		delete(o.byID, attemptID)
		o.mu.Unlock()
		return AuthResult{}, fmt.Errorf("%w: %s", ErrAttemptNotPending, attemptID)
	}
	result := build(entry.attempt.Clone(), entry.module)
	entry.attempt.Status = result.Status()
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(o.attempts, providerID)
	delete(o.byID, attemptID)
	attempt := entry.attempt.Clone()
	ticket := entry.ticket
	o.mu.Unlock()

	if err := o.dispatcher.enqueue(delivery{attempt: attempt, result: result, ticket: ticket}); err != nil {
		ticket.resolve(result)
	}

	fields := map[string]any{
		"provider_id": providerID,
		"attempt_id":  attemptID,
		"trigger":     trigger,
		"outcome":     string(result.Outcome),
	}
	if result.ErrorKind != ErrorKindNone {
		fields["error_kind"] = string(result.ErrorKind)
	}
	o.telemetry.observe(ctx, attempt.StartedAt, "attempt", result.Err, fields)
	return result.Clone(), nil
}

// deliver runs on the dispatcher goroutine.
func (o *Orchestrator) deliver(ctx context.Context, item delivery) {
	if o.store != nil {
		if err := o.store.Record(ctx, NewAttemptRecord(item.attempt, item.result)); err != nil {
			o.telemetry.log(ctx, "error", "attempt history record failed", map[string]any{
				"attempt_id":  item.result.AttemptID,
				"provider_id": item.result.ProviderID,
				"error":       err.Error(),
			})
		}
	}
	if item.ticket != nil {
		item.ticket.resolve(item.result)
	}

	o.mu.Lock()
	listeners := append([]ResultListener(nil), o.listeners...)
	o.mu.Unlock()
	for _, listener := range listeners {
		o.notify(ctx, listener, item.result)
	}
}

func (o *Orchestrator) notify(ctx context.Context, listener ResultListener, result AuthResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			o.telemetry.log(ctx, "error", "result listener panicked", map[string]any{
				"attempt_id": result.AttemptID,
				"panic":      fmt.Sprint(recovered),
			})
		}
	}()
	listener.OnResult(ctx, result.Clone())
}

func (o *Orchestrator) module(providerID string) (ProviderModule, error) {
	if providerID == "" {
		return nil, fmt.Errorf("core: provider id is required")
	}
	module, ok := o.registry.Get(providerID)
	if !ok || module == nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	return module, nil
}

func (o *Orchestrator) timeoutFor(cfg ProviderConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return o.config.attemptTimeout()
}

type attemptReporter struct {
	orchestrator *Orchestrator
	attemptID    string
}

func (r *attemptReporter) AttemptID() string { return r.attemptID }

func (r *attemptReporter) Succeed(ctx context.Context, payload map[string]any) error {
	_, err := r.orchestrator.Report(ctx, r.attemptID, SuccessSignal(payload))
	return err
}

func (r *attemptReporter) Cancel(ctx context.Context) error {
	_, err := r.orchestrator.Report(ctx, r.attemptID, CancelSignal())
	return err
}

func (r *attemptReporter) Fail(ctx context.Context, err error) error {
	if err == nil {
		err = NewProviderError("", "", nil)
	}
	_, reportErr := r.orchestrator.Report(ctx, r.attemptID, ErrorSignal(err))
	return reportErr
}

func (r *attemptReporter) Signal(ctx context.Context, signal Signal) error {
	_, err := r.orchestrator.Report(ctx, r.attemptID, signal)
	return err
}

// ProviderSession binds the orchestrator to one provider id.
type ProviderSession struct {
	orchestrator *Orchestrator
	providerID   string
}

func (s *ProviderSession) ProviderID() string { return s.providerID }

func (s *ProviderSession) Configure(ctx context.Context, cfg ProviderConfig) error {
	return s.orchestrator.Configure(ctx, s.providerID, cfg)
}

func (s *ProviderSession) Begin(ctx context.Context) (*Ticket, error) {
	return s.orchestrator.Begin(ctx, s.providerID)
}

func (s *ProviderSession) Authenticate(ctx context.Context) (AuthResult, error) {
	return s.orchestrator.Authenticate(ctx, s.providerID)
}

func (s *ProviderSession) Cancel(ctx context.Context) error {
	return s.orchestrator.Cancel(ctx, s.providerID)
}

func (s *ProviderSession) Logout(ctx context.Context) error {
	return s.orchestrator.Logout(ctx, s.providerID)
}

func (s *ProviderSession) Attempt() (AuthAttempt, bool) {
	return s.orchestrator.Attempt(s.providerID)
}

var (
	_ AttemptReporter = (*attemptReporter)(nil)
	_ SignalReporter  = (*attemptReporter)(nil)
)
