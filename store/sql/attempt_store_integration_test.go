package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"

	"github.com/goliatone/go-socialengine/core"
	"github.com/goliatone/go-socialengine/providers/devkit"
	sqlstore "github.com/goliatone/go-socialengine/store/sql"
)

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:socialengine-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	client, err := sqlstore.Open(context.Background(), sqlstore.Config{
		Driver:  "sqlite",
		DSN:     dsn,
		Migrate: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newAttemptStore(t *testing.T) *sqlstore.AttemptStore {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(newSQLiteClient(t))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory.SQLAttemptStore()
}

func terminalRecord(id string, provider string, status core.AttemptStatus, completed time.Time) core.AttemptRecord {
	outcome := core.OutcomeLoggedIn
	switch status {
	case core.AttemptStatusCanceled:
		outcome = core.OutcomeCanceled
	case core.AttemptStatusFailed:
		outcome = core.OutcomeError
	}
	return core.AttemptRecord{
		AttemptID:   id,
		ProviderID:  provider,
		Scope:       core.ScopeEmail,
		Fields:      []string{"email", "name"},
		Status:      status,
		Outcome:     outcome,
		StartedAt:   completed.Add(-time.Second),
		CompletedAt: completed,
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client := newSQLiteClient(t)

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"social_auth_attempts",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "social_auth_attempts" {
		t.Fatalf("expected social_auth_attempts table, got %q", tableName)
	}
}

func TestAttemptStore_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	store := newAttemptStore(t)
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record := terminalRecord("att_1", "linkedin", core.AttemptStatusSucceeded, completed)
	record.Profile = map[string]any{"name": "Ada", "email": "ada@example.com"}
	if err := store.Record(ctx, record); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := store.Get(ctx, "att_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ProviderID != "linkedin" || got.Status != core.AttemptStatusSucceeded || got.Scope != core.ScopeEmail {
		t.Fatalf("unexpected record %#v", got)
	}
	if len(got.Fields) != 2 || got.Fields[0] != "email" {
		t.Fatalf("expected fields to round trip, got %#v", got.Fields)
	}
	if got.Profile["name"] != "Ada" {
		t.Fatalf("expected profile to round trip, got %#v", got.Profile)
	}
	if !got.CompletedAt.Equal(completed) {
		t.Fatalf("expected completed_at %v, got %v", completed, got.CompletedAt)
	}
}

func TestAttemptStore_RejectsDuplicatesAndPending(t *testing.T) {
	ctx := context.Background()
	store := newAttemptStore(t)
	record := terminalRecord("att_dup", "github", core.AttemptStatusFailed, time.Now().UTC())

	if err := store.Record(ctx, record); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, record); !errors.Is(err, sqlstore.ErrAttemptAlreadyRecorded) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	pending := terminalRecord("att_pending", "github", core.AttemptStatusPending, time.Now().UTC())
	if err := store.Record(ctx, pending); err == nil {
		t.Fatalf("expected pending attempt to be rejected")
	}
	if _, err := store.Get(ctx, "att_missing"); !errors.Is(err, core.ErrAttemptRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAttemptStore_ListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	store := newAttemptStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []core.AttemptRecord{
		terminalRecord("att_1", "linkedin", core.AttemptStatusSucceeded, base),
		terminalRecord("att_2", "linkedin", core.AttemptStatusCanceled, base.Add(time.Minute)),
		terminalRecord("att_3", "linkedin", core.AttemptStatusFailed, base.Add(2*time.Minute)),
		terminalRecord("att_4", "github", core.AttemptStatusSucceeded, base.Add(3*time.Minute)),
	}
	for _, record := range seed {
		if err := store.Record(ctx, record); err != nil {
			t.Fatalf("seed %s: %v", record.AttemptID, err)
		}
	}

	page, err := store.List(ctx, core.AttemptFilter{ProviderID: "LinkedIn", PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 {
		t.Fatalf("expected 2 of 3 linkedin records, got %d of %d", len(page.Items), page.Total)
	}
	if page.Items[0].AttemptID != "att_3" || page.Items[1].AttemptID != "att_2" {
		t.Fatalf("expected newest first, got %s, %s", page.Items[0].AttemptID, page.Items[1].AttemptID)
	}

	second, err := store.List(ctx, core.AttemptFilter{ProviderID: "linkedin", Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Items) != 1 || second.Items[0].AttemptID != "att_1" {
		t.Fatalf("unexpected second page %#v", second.Items)
	}

	succeeded, err := store.List(ctx, core.AttemptFilter{Status: core.AttemptStatusSucceeded})
	if err != nil {
		t.Fatalf("list succeeded: %v", err)
	}
	if succeeded.Total != 2 {
		t.Fatalf("expected two succeeded records, got %d", succeeded.Total)
	}
}

func TestAttemptStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := newAttemptStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old_1", "old_2", "new_1"} {
		completed := base.Add(time.Duration(i) * 24 * time.Hour)
		if err := store.Record(ctx, terminalRecord(id, "linkedin", core.AttemptStatusSucceeded, completed)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	deleted, err := store.Prune(ctx, base.Add(36*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected two pruned rows, got %d", deleted)
	}
	if _, err := store.Get(ctx, "new_1"); err != nil {
		t.Fatalf("expected newest record to survive: %v", err)
	}
}

func TestOrchestrator_PersistsTerminalAttempts(t *testing.T) {
	ctx := context.Background()
	store := newAttemptStore(t)
	module := devkit.NewFakeModule("linkedin", devkit.WithScripts(devkit.ModuleScript{
		Behavior: devkit.BehaviorSucceed,
		Payload:  map[string]any{"name": "Ada"},
	}))
	orchestrator, err := core.NewOrchestrator(core.Config{}, core.WithModules(module), core.WithAttemptStore(store))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(ctx)

	if err := orchestrator.Configure(ctx, "linkedin", core.ProviderConfig{Scope: core.ScopeDefault}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	result, err := orchestrator.Authenticate(ctx, "linkedin")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	var record core.AttemptRecord
	deadline := time.Now().Add(2 * time.Second)
	for {
		record, err = store.Get(ctx, result.AttemptID)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("expected persisted attempt: %v", err)
	}
	if record.Outcome != core.OutcomeLoggedIn {
		t.Fatalf("expected logged in outcome, got %q", record.Outcome)
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "postgres"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}
