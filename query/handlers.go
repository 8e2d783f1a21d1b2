package query

import (
	"context"

	"github.com/goliatone/go-socialengine/core"
)

type PendingAttemptReader interface {
	Attempt(providerID string) (core.AuthAttempt, bool)
	Pending() []core.AuthAttempt
}

type AttemptHistoryReader interface {
	Get(ctx context.Context, attemptID string) (core.AttemptRecord, error)
	List(ctx context.Context, filter core.AttemptFilter) (core.AttemptPage, error)
}

type GetPendingAttemptQuery struct {
	reader PendingAttemptReader
}

func NewGetPendingAttemptQuery(reader PendingAttemptReader) *GetPendingAttemptQuery {
	return &GetPendingAttemptQuery{reader: reader}
}

func (q *GetPendingAttemptQuery) Query(_ context.Context, msg GetPendingAttemptMessage) (PendingAttempt, error) {
	if q == nil || q.reader == nil {
		return PendingAttempt{}, queryDependencyError("query: pending attempt reader is required")
	}
	attempt, ok := q.reader.Attempt(msg.ProviderID)
	return PendingAttempt{Attempt: attempt, Found: ok}, nil
}

type ListPendingAttemptsQuery struct {
	reader PendingAttemptReader
}

func NewListPendingAttemptsQuery(reader PendingAttemptReader) *ListPendingAttemptsQuery {
	return &ListPendingAttemptsQuery{reader: reader}
}

func (q *ListPendingAttemptsQuery) Query(context.Context, ListPendingAttemptsMessage) ([]core.AuthAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pending attempt reader is required")
	}
	return q.reader.Pending(), nil
}

type GetAttemptRecordQuery struct {
	reader AttemptHistoryReader
}

func NewGetAttemptRecordQuery(reader AttemptHistoryReader) *GetAttemptRecordQuery {
	return &GetAttemptRecordQuery{reader: reader}
}

func (q *GetAttemptRecordQuery) Query(ctx context.Context, msg GetAttemptRecordMessage) (core.AttemptRecord, error) {
	if q == nil || q.reader == nil {
		return core.AttemptRecord{}, queryDependencyError("query: attempt history reader is required")
	}
	return q.reader.Get(ctx, msg.AttemptID)
}

type ListAttemptHistoryQuery struct {
	reader AttemptHistoryReader
}

func NewListAttemptHistoryQuery(reader AttemptHistoryReader) *ListAttemptHistoryQuery {
	return &ListAttemptHistoryQuery{reader: reader}
}

func (q *ListAttemptHistoryQuery) Query(ctx context.Context, msg ListAttemptHistoryMessage) (core.AttemptPage, error) {
	if q == nil || q.reader == nil {
		return core.AttemptPage{}, queryDependencyError("query: attempt history reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
