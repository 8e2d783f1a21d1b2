package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-socialengine/core"
)

// ErrAttemptAlreadyRecorded is returned when a terminal attempt is written
// twice.
var ErrAttemptAlreadyRecorded = errors.New("sqlstore: attempt already recorded")

const pqUniqueViolation = "23505"

type AttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*attemptRecord]
	now  func() time.Time
}

func NewAttemptStore(db *bun.DB) (*AttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*attemptRecord](db, attemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid attempt repository wiring: %w", err)
		}
	}
	return &AttemptStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AttemptStore) Record(ctx context.Context, in core.AttemptRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: attempt store is not configured")
	}
	if strings.TrimSpace(in.AttemptID) == "" {
		return fmt.Errorf("sqlstore: attempt id is required")
	}
	if !in.Status.IsTerminal() {
		return fmt.Errorf("sqlstore: only terminal attempts can be recorded")
	}

	exists, err := s.db.NewSelect().
		Model((*attemptRecord)(nil)).
		Where("?TableAlias.attempt_id = ?", strings.TrimSpace(in.AttemptID)).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAttemptAlreadyRecorded, in.AttemptID)
	}

	record := newAttemptRecord(uuid.NewString(), in, s.now())
	if _, err := s.repo.Create(ctx, record); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAttemptAlreadyRecorded, in.AttemptID)
		}
		return err
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (core.AttemptRecord, error) {
	if s == nil || s.db == nil {
		return core.AttemptRecord{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	record := &attemptRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.attempt_id = ?", strings.TrimSpace(attemptID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AttemptRecord{}, fmt.Errorf("%w: %q", core.ErrAttemptRecordNotFound, attemptID)
		}
		return core.AttemptRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *AttemptStore) List(ctx context.Context, filter core.AttemptFilter) (core.AttemptPage, error) {
	if s == nil || s.repo == nil {
		return core.AttemptPage{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	filter = core.NormalizeAttemptFilter(filter)
	offset := (filter.Page - 1) * filter.PerPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("completed_at DESC"),
		repository.OrderBy("attempt_id ASC"),
		repository.SelectPaginate(filter.PerPage, offset),
	}
	if filter.ProviderID != "" {
		selectors = append(selectors, repository.SelectBy("provider_id", "=", filter.ProviderID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.AttemptPage{}, err
	}
	items := make([]core.AttemptRecord, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.AttemptPage{
		Items:   items,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}, nil
}

// Prune deletes records completed before cutoff and reports how many rows
// were removed.
func (s *AttemptStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*attemptRecord)(nil)).
		Where("completed_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
