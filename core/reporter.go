package core

import (
	"reflect"
	"strings"
	"time"
)

// ResultReporter turns provider signals into AuthResults. Profiles only
// carry the fields that were requested and actually present in the
// provider payload.
type ResultReporter struct {
	now func() time.Time
}

func NewResultReporter(now func() time.Time) *ResultReporter {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ResultReporter{now: now}
}

// Report builds the terminal result for attempt from signal. A success
// signal on an attempt whose cancellation was requested resolves as
// canceled.
func (r *ResultReporter) Report(attempt AuthAttempt, signal Signal, module ProviderModule) AuthResult {
	result := r.base(attempt)
	result.Metadata = copyAnyMap(signal.Metadata)

	if attempt.CancelRequested {
		result.Outcome = OutcomeCanceled
		return result
	}

	switch signal.Kind {
	case SignalSuccess:
		result.Outcome = OutcomeLoggedIn
		result.Profile = r.NormalizeProfile(
			signal.Payload,
			effectiveFields(attempt.Config.RequestedFields, module),
			fieldMapping(module),
		)
	case SignalCancel:
		result.Outcome = OutcomeCanceled
	default:
		err := signal.Err
		if err == nil {
			err = NewProviderError(attempt.ProviderID, "", nil)
		}
		kind := ErrorKindOf(err)
		switch kind {
		case ErrorKindCanceled:
			result.Outcome = OutcomeCanceled
			return result
		case ErrorKindAlreadyInProgress, ErrorKindNone:
			kind = ErrorKindProvider
		}
		result.Outcome = OutcomeError
		result.ErrorKind = kind
		result.Err = err
	}
	return result
}

func (r *ResultReporter) Timeout(attempt AuthAttempt) AuthResult {
	result := r.base(attempt)
	if attempt.CancelRequested {
		result.Outcome = OutcomeCanceled
		return result
	}
	result.Outcome = OutcomeError
	result.ErrorKind = ErrorKindTimeout
	result.Err = ErrAttemptTimeout
	return result
}

func (r *ResultReporter) Canceled(attempt AuthAttempt) AuthResult {
	result := r.base(attempt)
	result.Outcome = OutcomeCanceled
	return result
}

// NormalizeProfile projects payload onto fields using mapping. Flags with
// no mapping are looked up by their own name.
func (r *ResultReporter) NormalizeProfile(
	payload map[string]any,
	fields FieldSet,
	mapping map[FieldFlag]FieldPath,
) Profile {
	if len(payload) == 0 {
		return nil
	}
	if fields.IsEmpty() {
		fields = mappedFields(mapping)
	}
	profile := Profile{}
	for _, flag := range fields.Flags() {
		path, ok := mapping[flag]
		if !ok || strings.TrimSpace(string(path)) == "" {
			path = FieldPath(flag)
		}
		value, found := lookupPath(payload, path)
		if !found {
			continue
		}
		profile[flag] = value
	}
	if len(profile) == 0 {
		return nil
	}
	return profile
}

func (r *ResultReporter) base(attempt AuthAttempt) AuthResult {
	return AuthResult{
		AttemptID:   attempt.ID,
		ProviderID:  attempt.ProviderID,
		StartedAt:   attempt.StartedAt,
		CompletedAt: r.now(),
	}
}

func effectiveFields(requested FieldSet, module ProviderModule) FieldSet {
	if !requested.IsEmpty() {
		return requested
	}
	if module == nil {
		return FieldSet{}
	}
	return module.SupportedFields()
}

func fieldMapping(module ProviderModule) map[FieldFlag]FieldPath {
	mapper, ok := module.(FieldMapper)
	if !ok || mapper == nil {
		return nil
	}
	return mapper.FieldMapping()
}

func mappedFields(mapping map[FieldFlag]FieldPath) FieldSet {
	flags := make([]FieldFlag, 0, len(mapping))
	for flag := range mapping {
		flags = append(flags, flag)
	}
	return NewFieldSet(flags...)
}

func lookupPath(payload map[string]any, path FieldPath) (any, bool) {
	for _, alternative := range strings.Split(string(path), "|") {
		alternative = strings.TrimSpace(alternative)
		if alternative == "" {
			continue
		}
		if value, ok := lookupDotted(payload, alternative); ok {
			return value, true
		}
	}
	return nil, false
}

func lookupDotted(payload map[string]any, path string) (any, bool) {
	var current any = payload
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return presentValue(current)
}

// presentValue reports whether value carries information. Nulls, blank
// strings and empty collections count as absent.
func presentValue(value any) (any, bool) {
	switch typed := value.(type) {
	case nil:
		return nil, false
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return nil, false
		}
		return trimmed, true
	case map[string]any:
		if len(typed) == 0 {
			return nil, false
		}
		return copyAnyMap(typed), true
	case []any:
		if len(typed) == 0 {
			return nil, false
		}
		return append([]any(nil), typed...), true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
	case reflect.Slice, reflect.Map:
		if rv.Len() == 0 {
			return nil, false
		}
	}
	return value, true
}
