package query

import (
	"strings"

	"github.com/goliatone/go-socialengine/core"
)

const (
	TypeGetPendingAttempt   = "social.query.attempt.pending"
	TypeListPendingAttempts = "social.query.attempt.pending.list"
	TypeGetAttemptRecord    = "social.query.attempt.record"
	TypeListAttemptHistory  = "social.query.attempt.history"
)

type GetPendingAttemptMessage struct {
	ProviderID string
}

func (GetPendingAttemptMessage) Type() string { return TypeGetPendingAttempt }

func (m GetPendingAttemptMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	return nil
}

type ListPendingAttemptsMessage struct{}

func (ListPendingAttemptsMessage) Type() string { return TypeListPendingAttempts }

func (ListPendingAttemptsMessage) Validate() error { return nil }

type GetAttemptRecordMessage struct {
	AttemptID string
}

func (GetAttemptRecordMessage) Type() string { return TypeGetAttemptRecord }

func (m GetAttemptRecordMessage) Validate() error {
	if strings.TrimSpace(m.AttemptID) == "" {
		return queryValidationError("attempt_id", "attempt id is required")
	}
	return nil
}

type ListAttemptHistoryMessage struct {
	Filter core.AttemptFilter
}

func (ListAttemptHistoryMessage) Type() string { return TypeListAttemptHistory }

func (m ListAttemptHistoryMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if status := m.Filter.Status; status != "" && !status.IsTerminal() {
		return queryValidationError("status", "history only holds terminal attempts")
	}
	return nil
}

// PendingAttempt is the result of GetPendingAttemptMessage. Found is false
// when the provider is idle.
type PendingAttempt struct {
	Attempt core.AuthAttempt
	Found   bool
}
