package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	defaultAttemptPageSize = 50
	maxAttemptPageSize     = 500
)

type MemoryAttemptStore struct {
	mu      sync.RWMutex
	records map[string]AttemptRecord
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{records: map[string]AttemptRecord{}}
}

func (s *MemoryAttemptStore) Record(_ context.Context, record AttemptRecord) error {
	if s == nil {
		return fmt.Errorf("core: attempt store is not configured")
	}
	if strings.TrimSpace(record.AttemptID) == "" {
		return fmt.Errorf("core: attempt id is required")
	}
	if !record.Status.IsTerminal() {
		return fmt.Errorf("core: only terminal attempts can be recorded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.AttemptID]; exists {
		return fmt.Errorf("core: attempt already recorded: %s", record.AttemptID)
	}
	s.records[record.AttemptID] = cloneAttemptRecord(record)
	return nil
}

func (s *MemoryAttemptStore) Get(_ context.Context, attemptID string) (AttemptRecord, error) {
	if s == nil {
		return AttemptRecord{}, fmt.Errorf("core: attempt store is not configured")
	}
	s.mu.RLock()
	record, ok := s.records[strings.TrimSpace(attemptID)]
	s.mu.RUnlock()
	if !ok {
		return AttemptRecord{}, fmt.Errorf("%w: %q", ErrAttemptRecordNotFound, attemptID)
	}
	return cloneAttemptRecord(record), nil
}

func (s *MemoryAttemptStore) List(_ context.Context, filter AttemptFilter) (AttemptPage, error) {
	if s == nil {
		return AttemptPage{}, fmt.Errorf("core: attempt store is not configured")
	}
	filter = NormalizeAttemptFilter(filter)

	s.mu.RLock()
	matched := make([]AttemptRecord, 0, len(s.records))
	for _, record := range s.records {
		if filter.ProviderID != "" && record.ProviderID != filter.ProviderID {
			continue
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneAttemptRecord(record))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CompletedAt.Equal(matched[j].CompletedAt) {
			return matched[i].AttemptID < matched[j].AttemptID
		}
		return matched[i].CompletedAt.After(matched[j].CompletedAt)
	})

	page := AttemptPage{Total: len(matched), Page: filter.Page, PerPage: filter.PerPage}
	start := (filter.Page - 1) * filter.PerPage
	if start >= len(matched) {
		page.Items = []AttemptRecord{}
		return page, nil
	}
	end := start + filter.PerPage
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = matched[start:end]
	return page, nil
}

func NormalizeAttemptFilter(filter AttemptFilter) AttemptFilter {
	filter.ProviderID = normalizeProviderID(filter.ProviderID)
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = defaultAttemptPageSize
	}
	if filter.PerPage > maxAttemptPageSize {
		filter.PerPage = maxAttemptPageSize
	}
	return filter
}

// NewAttemptRecord flattens a terminal result for persistence. Profile keys
// become plain strings.
func NewAttemptRecord(attempt AuthAttempt, result AuthResult) AttemptRecord {
	record := AttemptRecord{
		AttemptID:   result.AttemptID,
		ProviderID:  result.ProviderID,
		Scope:       attempt.Config.Scope,
		Fields:      attempt.Config.RequestedFields.Strings(),
		Status:      result.Status(),
		Outcome:     result.Outcome,
		ErrorKind:   result.ErrorKind,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
	}
	if result.Err != nil {
		record.Error = result.Err.Error()
	}
	if len(result.Profile) > 0 {
		record.Profile = make(map[string]any, len(result.Profile))
		for flag, value := range result.Profile {
			record.Profile[string(flag)] = value
		}
	}
	return record
}

func cloneAttemptRecord(record AttemptRecord) AttemptRecord {
	out := record
	out.Fields = append([]string(nil), record.Fields...)
	if record.Profile != nil {
		out.Profile = copyAnyMap(record.Profile)
	}
	return out
}

var _ AttemptStore = (*MemoryAttemptStore)(nil)
