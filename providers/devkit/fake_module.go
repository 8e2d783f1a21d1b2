package devkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-socialengine/core"
)

type Behavior string

const (
	BehaviorSucceed Behavior = "succeed"
	BehaviorCancel  Behavior = "cancel"
	BehaviorFail    Behavior = "fail"
	// BehaviorHang leaves the attempt pending until the test drives it.
	BehaviorHang Behavior = "hang"
)

// ModuleScript scripts one Authorize call. Scripts are consumed in order;
// the last one repeats.
type ModuleScript struct {
	Behavior     Behavior
	Payload      map[string]any
	Err          error
	AuthorizeErr error
}

type FakeModule struct {
	id      string
	scopes  []core.Scope
	fields  core.FieldSet
	mapping map[core.FieldFlag]core.FieldPath

	mu          sync.Mutex
	scripts     []ModuleScript
	requests    []core.AuthorizeRequest
	pending     map[string]core.AttemptReporter
	configured  []core.ProviderConfig
	canceled    []string
	logouts     int
	deferCancel bool
}

type FakeModuleOption func(*FakeModule)

func WithScopes(scopes ...core.Scope) FakeModuleOption {
	return func(m *FakeModule) {
		m.scopes = append([]core.Scope(nil), scopes...)
	}
}

func WithFields(fields ...core.FieldFlag) FakeModuleOption {
	return func(m *FakeModule) {
		m.fields = core.NewFieldSet(fields...)
	}
}

func WithFieldMapping(mapping map[core.FieldFlag]core.FieldPath) FakeModuleOption {
	return func(m *FakeModule) {
		m.mapping = mapping
	}
}

func WithScripts(scripts ...ModuleScript) FakeModuleOption {
	return func(m *FakeModule) {
		m.scripts = append([]ModuleScript(nil), scripts...)
	}
}

// WithDeferredCancel makes Cancel return core.ErrCancelDeferred, as a
// provider that cannot abort its flow would.
func WithDeferredCancel() FakeModuleOption {
	return func(m *FakeModule) {
		m.deferCancel = true
	}
}

func NewFakeModule(id string, opts ...FakeModuleOption) *FakeModule {
	module := &FakeModule{
		id:      strings.TrimSpace(strings.ToLower(id)),
		scopes:  []core.Scope{core.ScopeDefault, core.ScopeFullProfile, core.ScopeEmail},
		fields:  core.NewFieldSet(core.FieldID, core.FieldName, core.FieldEmail),
		pending: map[string]core.AttemptReporter{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(module)
		}
	}
	return module
}

func (m *FakeModule) ID() string {
	if m == nil {
		return ""
	}
	return m.id
}

func (m *FakeModule) SupportedScopes() []core.Scope {
	if m == nil {
		return []core.Scope{}
	}
	return append([]core.Scope(nil), m.scopes...)
}

func (m *FakeModule) SupportedFields() core.FieldSet {
	if m == nil {
		return core.FieldSet{}
	}
	return m.fields
}

func (m *FakeModule) FieldMapping() map[core.FieldFlag]core.FieldPath {
	if m == nil {
		return nil
	}
	return m.mapping
}

func (m *FakeModule) Configure(_ context.Context, cfg core.ProviderConfig) error {
	if m == nil {
		return fmt.Errorf("devkit: fake module is nil")
	}
	if unsupported := cfg.RequestedFields.Difference(m.fields); !unsupported.IsEmpty() {
		return fmt.Errorf("devkit: field %s not supported", unsupported)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = append(m.configured, cfg.Clone())
	return nil
}

func (m *FakeModule) Authorize(_ context.Context, req core.AuthorizeRequest) (core.Handoff, error) {
	if m == nil {
		return core.Handoff{}, fmt.Errorf("devkit: fake module is nil")
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	script := m.nextScriptLocked()
	if script.AuthorizeErr != nil {
		m.mu.Unlock()
		return core.Handoff{}, script.AuthorizeErr
	}
	m.pending[req.AttemptID] = req.Reporter
	m.mu.Unlock()

	if script.Behavior != BehaviorHang {
		go m.resolve(req.AttemptID, script)
	}
	return core.Handoff{
		URL:   "https://" + m.id + ".devkit.test/authorize?state=" + req.AttemptID,
		State: req.AttemptID,
	}, nil
}

func (m *FakeModule) Cancel(_ context.Context, attemptID string) error {
	if m == nil {
		return fmt.Errorf("devkit: fake module is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[attemptID]; !ok {
		return nil
	}
	m.canceled = append(m.canceled, attemptID)
	if m.deferCancel {
		return core.ErrCancelDeferred
	}
	delete(m.pending, attemptID)
	return nil
}

func (m *FakeModule) Logout(context.Context) error {
	if m == nil {
		return fmt.Errorf("devkit: fake module is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	return nil
}

// Succeed reports a success for a pending attempt.
func (m *FakeModule) Succeed(ctx context.Context, attemptID string, payload map[string]any) error {
	reporter, err := m.take(attemptID)
	if err != nil {
		return err
	}
	return reporter.Succeed(ctx, payload)
}

func (m *FakeModule) CancelAttempt(ctx context.Context, attemptID string) error {
	reporter, err := m.take(attemptID)
	if err != nil {
		return err
	}
	return reporter.Cancel(ctx)
}

func (m *FakeModule) Fail(ctx context.Context, attemptID string, cause error) error {
	reporter, err := m.take(attemptID)
	if err != nil {
		return err
	}
	return reporter.Fail(ctx, cause)
}

func (m *FakeModule) Requests() []core.AuthorizeRequest {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.AuthorizeRequest(nil), m.requests...)
}

func (m *FakeModule) PendingAttempts() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *FakeModule) Configured() []core.ProviderConfig {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ProviderConfig(nil), m.configured...)
}

func (m *FakeModule) Canceled() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.canceled...)
}

func (m *FakeModule) Logouts() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logouts
}

func (m *FakeModule) nextScriptLocked() ModuleScript {
	index := len(m.requests) - 1
	switch {
	case index < len(m.scripts):
		return m.scripts[index]
	case len(m.scripts) > 0:
		return m.scripts[len(m.scripts)-1]
	default:
		return ModuleScript{Behavior: BehaviorSucceed, Payload: map[string]any{"id": "devkit-user"}}
	}
}

func (m *FakeModule) resolve(attemptID string, script ModuleScript) {
	ctx := context.Background()
	switch script.Behavior {
	case BehaviorCancel:
		_ = m.CancelAttempt(ctx, attemptID)
	case BehaviorFail:
		cause := script.Err
		if cause == nil {
			cause = core.NewProviderError(m.id, "devkit_failure", nil)
		}
		_ = m.Fail(ctx, attemptID, cause)
	default:
		_ = m.Succeed(ctx, attemptID, script.Payload)
	}
}

func (m *FakeModule) take(attemptID string) (core.AttemptReporter, error) {
	if m == nil {
		return nil, fmt.Errorf("devkit: fake module is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	reporter, ok := m.pending[attemptID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAttemptNotPending, attemptID)
	}
	delete(m.pending, attemptID)
	return reporter, nil
}

var (
	_ core.ProviderModule = (*FakeModule)(nil)
	_ core.FieldMapper    = (*FakeModule)(nil)
)
