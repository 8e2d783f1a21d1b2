package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testWait = 2 * time.Second

type fakeModule struct {
	id        string
	scopes    []Scope
	fields    FieldSet
	mapping   map[FieldFlag]FieldPath
	authorize func(ctx context.Context, req AuthorizeRequest) (Handoff, error)
	cancelErr error

	mu           sync.Mutex
	requests     []AuthorizeRequest
	configured   []ProviderConfig
	canceled     []string
	logoutCalls  int
	configureErr error
}

func newFakeModule(id string) *fakeModule {
	return &fakeModule{
		id:     id,
		scopes: []Scope{ScopeDefault, ScopeFullProfile, ScopeEmail},
		fields: NewFieldSet(FieldID, FieldName, FieldEmail, FieldHeadline),
	}
}

func (m *fakeModule) ID() string { return m.id }

func (m *fakeModule) SupportedScopes() []Scope { return append([]Scope(nil), m.scopes...) }

func (m *fakeModule) SupportedFields() FieldSet { return m.fields }

func (m *fakeModule) FieldMapping() map[FieldFlag]FieldPath { return m.mapping }

func (m *fakeModule) Configure(_ context.Context, cfg ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.configureErr != nil {
		return m.configureErr
	}
	m.configured = append(m.configured, cfg)
	return nil
}

func (m *fakeModule) Authorize(ctx context.Context, req AuthorizeRequest) (Handoff, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	authorize := m.authorize
	m.mu.Unlock()
	if authorize != nil {
		return authorize(ctx, req)
	}
	return Handoff{URL: "https://provider.example/authorize?state=" + req.AttemptID, State: req.AttemptID}, nil
}

func (m *fakeModule) Cancel(_ context.Context, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled = append(m.canceled, attemptID)
	return m.cancelErr
}

func (m *fakeModule) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutCalls++
	return nil
}

func (m *fakeModule) lastReporter(t *testing.T) AttemptReporter {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		t.Fatalf("expected module %s to receive an authorize request", m.id)
	}
	return m.requests[len(m.requests)-1].Reporter
}

func (m *fakeModule) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *fakeModule) cancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.canceled)
}

type countingListener struct {
	mu      sync.Mutex
	results []AuthResult
	calls   atomic.Int64
}

func (l *countingListener) OnResult(_ context.Context, result AuthResult) {
	l.calls.Add(1)
	l.mu.Lock()
	l.results = append(l.results, result)
	l.mu.Unlock()
}

func (l *countingListener) snapshot() []AuthResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuthResult(nil), l.results...)
}

func newTestOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	sequence := atomic.Int64{}
	base := []Option{
		WithAttemptIDGenerator(func() string {
			return fmt.Sprintf("att_%d", sequence.Add(1))
		}),
	}
	orchestrator, err := NewOrchestrator(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testWait)
		defer cancel()
		_ = orchestrator.Close(ctx)
	})
	return orchestrator
}

func configureModule(t *testing.T, orchestrator *Orchestrator, id string, cfg ProviderConfig) {
	t.Helper()
	if err := orchestrator.Configure(context.Background(), id, cfg); err != nil {
		t.Fatalf("configure %s: %v", id, err)
	}
}

func waitResult(t *testing.T, ticket *Ticket) AuthResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	defer cancel()
	result, err := ticket.Wait(ctx)
	if err != nil {
		t.Fatalf("wait for attempt %s: %v", ticket.AttemptID(), err)
	}
	return result
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(testWait)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", message)
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}
