package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Scope string

const (
	ScopeDefault     Scope = "default"
	ScopeFullProfile Scope = "full_profile"
	ScopeEmail       Scope = "email"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopeDefault, ScopeFullProfile, ScopeEmail:
		return true
	default:
		return false
	}
}

func ParseScope(value string) (Scope, error) {
	normalized := strings.TrimSpace(strings.ToLower(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "" {
		return ScopeDefault, nil
	}
	scope := Scope(normalized)
	if !scope.IsValid() {
		return "", fmt.Errorf("core: invalid scope %q", value)
	}
	return scope, nil
}

// FieldFlag names one profile attribute a caller may request. Flags are
// opaque identifiers; providers decide which ones they can resolve.
type FieldFlag string

const (
	FieldID         FieldFlag = "id"
	FieldName       FieldFlag = "name"
	FieldFirstName  FieldFlag = "first_name"
	FieldLastName   FieldFlag = "last_name"
	FieldEmail      FieldFlag = "email"
	FieldHeadline   FieldFlag = "headline"
	FieldPictureURL FieldFlag = "picture_url"
	FieldProfileURL FieldFlag = "profile_url"
	FieldLocation   FieldFlag = "location"
	FieldIndustry   FieldFlag = "industry"
	FieldSummary    FieldFlag = "summary"
	FieldUsername   FieldFlag = "username"
	FieldLocale     FieldFlag = "locale"
)

// FieldSet is an immutable, sorted set of field flags. The zero value is
// the empty set.
type FieldSet struct {
	flags []FieldFlag
}

func NewFieldSet(flags ...FieldFlag) FieldSet {
	if len(flags) == 0 {
		return FieldSet{}
	}
	seen := make(map[FieldFlag]struct{}, len(flags))
	out := make([]FieldFlag, 0, len(flags))
	for _, flag := range flags {
		flag = FieldFlag(strings.TrimSpace(strings.ToLower(string(flag))))
		if flag == "" {
			continue
		}
		if _, ok := seen[flag]; ok {
			continue
		}
		seen[flag] = struct{}{}
		out = append(out, flag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return FieldSet{flags: out}
}

func ParseFieldSet(values []string) FieldSet {
	flags := make([]FieldFlag, 0, len(values))
	for _, value := range values {
		flags = append(flags, FieldFlag(value))
	}
	return NewFieldSet(flags...)
}

func (s FieldSet) Has(flag FieldFlag) bool {
	flag = FieldFlag(strings.TrimSpace(strings.ToLower(string(flag))))
	index := sort.Search(len(s.flags), func(i int) bool { return s.flags[i] >= flag })
	return index < len(s.flags) && s.flags[index] == flag
}

func (s FieldSet) Len() int { return len(s.flags) }

func (s FieldSet) IsEmpty() bool { return len(s.flags) == 0 }

func (s FieldSet) Flags() []FieldFlag {
	return append([]FieldFlag(nil), s.flags...)
}

func (s FieldSet) Strings() []string {
	out := make([]string, 0, len(s.flags))
	for _, flag := range s.flags {
		out = append(out, string(flag))
	}
	return out
}

func (s FieldSet) Union(other FieldSet) FieldSet {
	return NewFieldSet(append(s.Flags(), other.flags...)...)
}

// Intersect keeps the flags present in both sets.
func (s FieldSet) Intersect(other FieldSet) FieldSet {
	out := make([]FieldFlag, 0, len(s.flags))
	for _, flag := range s.flags {
		if other.Has(flag) {
			out = append(out, flag)
		}
	}
	return FieldSet{flags: out}
}

// Difference returns the flags of s that are not in other.
func (s FieldSet) Difference(other FieldSet) FieldSet {
	out := make([]FieldFlag, 0, len(s.flags))
	for _, flag := range s.flags {
		if !other.Has(flag) {
			out = append(out, flag)
		}
	}
	return FieldSet{flags: out}
}

func (s FieldSet) String() string {
	return strings.Join(s.Strings(), ",")
}

// ProviderConfig holds the per-provider settings applied to the next
// authentication attempt. An empty RequestedFields resolves to every field
// the provider supports.
type ProviderConfig struct {
	Scope           Scope
	RequestedFields FieldSet
	Timeout         time.Duration
}

func (c ProviderConfig) Normalize() ProviderConfig {
	out := c
	if strings.TrimSpace(string(out.Scope)) == "" {
		out.Scope = ScopeDefault
	}
	out.RequestedFields = NewFieldSet(c.RequestedFields.flags...)
	if out.Timeout < 0 {
		out.Timeout = 0
	}
	return out
}

func (c ProviderConfig) Validate() error {
	if !c.Scope.IsValid() {
		return fmt.Errorf("core: invalid scope %q", c.Scope)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("core: timeout must be >= 0")
	}
	return nil
}

func (c ProviderConfig) Clone() ProviderConfig {
	out := c
	out.RequestedFields = FieldSet{flags: c.RequestedFields.Flags()}
	return out
}

type AttemptStatus string

const (
	AttemptStatusPending   AttemptStatus = "pending"
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusCanceled  AttemptStatus = "canceled"
	AttemptStatusFailed    AttemptStatus = "failed"
)

func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusSucceeded, AttemptStatusCanceled, AttemptStatusFailed:
		return true
	default:
		return false
	}
}

type Outcome string

const (
	OutcomeLoggedIn Outcome = "logged_in"
	OutcomeCanceled Outcome = "canceled"
	OutcomeError    Outcome = "error"
)

type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindAlreadyInProgress ErrorKind = "already_in_progress"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindProvider          ErrorKind = "provider_error"
	ErrorKindNetwork           ErrorKind = "network_error"
	ErrorKindCanceled          ErrorKind = "canceled"
)

// AuthAttempt is one in-flight authentication transaction. Only the
// orchestrator creates and mutates attempts; callers receive copies.
type AuthAttempt struct {
	ID              string
	ProviderID      string
	Config          ProviderConfig
	Status          AttemptStatus
	StartedAt       time.Time
	Deadline        time.Time
	CancelRequested bool
	Handoff         Handoff
}

func (a AuthAttempt) Clone() AuthAttempt {
	out := a
	out.Config = a.Config.Clone()
	out.Handoff = a.Handoff.Clone()
	return out
}

// Profile maps requested fields to the values the provider returned.
// Fields the provider did not return are absent, never empty.
type Profile map[FieldFlag]any

func (p Profile) Get(flag FieldFlag) (any, bool) {
	if p == nil {
		return nil, false
	}
	value, ok := p[flag]
	return value, ok
}

func (p Profile) String(flag FieldFlag) (string, bool) {
	value, ok := p.Get(flag)
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}

func (p Profile) Fields() FieldSet {
	flags := make([]FieldFlag, 0, len(p))
	for flag := range p {
		flags = append(flags, flag)
	}
	return NewFieldSet(flags...)
}

func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	out := make(Profile, len(p))
	for key, value := range p {
		out[key] = value
	}
	return out
}

// AuthResult is the terminal, immutable outcome of one attempt.
type AuthResult struct {
	AttemptID   string
	ProviderID  string
	Outcome     Outcome
	ErrorKind   ErrorKind
	Err         error
	Profile     Profile
	Metadata    map[string]any
	StartedAt   time.Time
	CompletedAt time.Time
}

func (r AuthResult) Status() AttemptStatus {
	switch r.Outcome {
	case OutcomeLoggedIn:
		return AttemptStatusSucceeded
	case OutcomeCanceled:
		return AttemptStatusCanceled
	default:
		return AttemptStatusFailed
	}
}

func (r AuthResult) Clone() AuthResult {
	out := r
	out.Profile = r.Profile.Clone()
	if r.Metadata != nil {
		out.Metadata = copyAnyMap(r.Metadata)
	}
	return out
}

// Handoff is what a provider returns when it starts its external flow,
// typically the URL the user agent must visit.
type Handoff struct {
	URL      string
	State    string
	Metadata map[string]any
}

func (h Handoff) Clone() Handoff {
	out := h
	if h.Metadata != nil {
		out.Metadata = copyAnyMap(h.Metadata)
	}
	return out
}

type SignalKind string

const (
	SignalSuccess SignalKind = "success"
	SignalCancel  SignalKind = "cancel"
	SignalError   SignalKind = "error"
)

// Signal is the raw callback a provider module reports for an attempt.
type Signal struct {
	Kind     SignalKind
	Payload  map[string]any
	Err      error
	Metadata map[string]any
}

func SuccessSignal(payload map[string]any) Signal {
	return Signal{Kind: SignalSuccess, Payload: payload}
}

func CancelSignal() Signal {
	return Signal{Kind: SignalCancel}
}

func ErrorSignal(err error) Signal {
	return Signal{Kind: SignalError, Err: err}
}

func (s Signal) Validate() error {
	switch s.Kind {
	case SignalSuccess, SignalCancel:
		return nil
	case SignalError:
		if s.Err == nil {
			return fmt.Errorf("core: error signal requires an error")
		}
		return nil
	default:
		return fmt.Errorf("core: invalid signal kind %q", s.Kind)
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
