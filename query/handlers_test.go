package query

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-socialengine/core"
)

type stubPendingReader struct {
	attempts map[string]core.AuthAttempt
}

func (r stubPendingReader) Attempt(providerID string) (core.AuthAttempt, bool) {
	attempt, ok := r.attempts[providerID]
	return attempt, ok
}

func (r stubPendingReader) Pending() []core.AuthAttempt {
	out := make([]core.AuthAttempt, 0, len(r.attempts))
	for _, attempt := range r.attempts {
		out = append(out, attempt)
	}
	return out
}

func seedHistory(t *testing.T) *core.MemoryAttemptStore {
	t.Helper()
	store := core.NewMemoryAttemptStore()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []core.AttemptRecord{
		{AttemptID: "att_1", ProviderID: "linkedin", Status: core.AttemptStatusSucceeded, Outcome: core.OutcomeLoggedIn, StartedAt: base, CompletedAt: base.Add(time.Second)},
		{AttemptID: "att_2", ProviderID: "linkedin", Status: core.AttemptStatusCanceled, Outcome: core.OutcomeCanceled, StartedAt: base.Add(time.Minute), CompletedAt: base.Add(time.Minute + time.Second)},
		{AttemptID: "att_3", ProviderID: "github", Status: core.AttemptStatusFailed, Outcome: core.OutcomeError, StartedAt: base.Add(2 * time.Minute), CompletedAt: base.Add(2*time.Minute + time.Second)},
	}
	for _, record := range records {
		if err := store.Record(context.Background(), record); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}
	return store
}

func TestGetPendingAttemptQuery(t *testing.T) {
	reader := stubPendingReader{attempts: map[string]core.AuthAttempt{
		"linkedin": {ID: "att_9", ProviderID: "linkedin", Status: core.AttemptStatusPending},
	}}
	q := NewGetPendingAttemptQuery(reader)

	found, err := q.Query(context.Background(), GetPendingAttemptMessage{ProviderID: "linkedin"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !found.Found || found.Attempt.ID != "att_9" {
		t.Fatalf("expected pending attempt att_9, got %#v", found)
	}

	idle, err := q.Query(context.Background(), GetPendingAttemptMessage{ProviderID: "github"})
	if err != nil {
		t.Fatalf("query idle: %v", err)
	}
	if idle.Found {
		t.Fatalf("expected idle provider to report no attempt")
	}
}

func TestListPendingAttemptsQuery(t *testing.T) {
	reader := stubPendingReader{attempts: map[string]core.AuthAttempt{
		"linkedin": {ID: "att_1", ProviderID: "linkedin"},
		"github":   {ID: "att_2", ProviderID: "github"},
	}}
	attempts, err := NewListPendingAttemptsQuery(reader).Query(context.Background(), ListPendingAttemptsMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected two pending attempts, got %d", len(attempts))
	}
}

func TestGetAttemptRecordQuery(t *testing.T) {
	q := NewGetAttemptRecordQuery(seedHistory(t))

	record, err := q.Query(context.Background(), GetAttemptRecordMessage{AttemptID: "att_2"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if record.Status != core.AttemptStatusCanceled {
		t.Fatalf("expected canceled record, got %q", record.Status)
	}
	if _, err := q.Query(context.Background(), GetAttemptRecordMessage{AttemptID: "att_missing"}); err == nil {
		t.Fatalf("expected missing record error")
	}
}

func TestListAttemptHistoryQuery_FiltersByProvider(t *testing.T) {
	q := NewListAttemptHistoryQuery(seedHistory(t))

	page, err := q.Query(context.Background(), ListAttemptHistoryMessage{Filter: core.AttemptFilter{ProviderID: "linkedin"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected two linkedin records, got %#v", page)
	}
	if page.Items[0].AttemptID != "att_2" {
		t.Fatalf("expected newest first, got %q", page.Items[0].AttemptID)
	}
}

func TestQueries_RequireDependencies(t *testing.T) {
	var rich *goerrors.Error

	_, err := NewGetPendingAttemptQuery(nil).Query(context.Background(), GetPendingAttemptMessage{ProviderID: "linkedin"})
	if !goerrors.As(err, &rich) || rich.TextCode != core.SocialErrorInternal {
		t.Fatalf("expected dependency error, got %v", err)
	}
	_, err = NewListAttemptHistoryQuery(nil).Query(context.Background(), ListAttemptHistoryMessage{})
	if !goerrors.As(err, &rich) || rich.TextCode != core.SocialErrorInternal {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := []struct {
		name string
		msg  interface{ Validate() error }
		ok   bool
	}{
		{name: "pending ok", msg: GetPendingAttemptMessage{ProviderID: "linkedin"}, ok: true},
		{name: "pending blank", msg: GetPendingAttemptMessage{ProviderID: " "}},
		{name: "record blank", msg: GetAttemptRecordMessage{}},
		{name: "history ok", msg: ListAttemptHistoryMessage{Filter: core.AttemptFilter{Status: core.AttemptStatusFailed}}, ok: true},
		{name: "history pending status", msg: ListAttemptHistoryMessage{Filter: core.AttemptFilter{Status: core.AttemptStatusPending}}},
		{name: "history negative page", msg: ListAttemptHistoryMessage{Filter: core.AttemptFilter{Page: -1}}},
	}
	for _, tc := range cases {
		err := tc.msg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.TextCode != core.SocialErrorBadInput {
				t.Fatalf("%s: expected bad input error, got %v", tc.name, err)
			}
		}
	}
}
