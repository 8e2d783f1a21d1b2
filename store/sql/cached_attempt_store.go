package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-socialengine/core"
)

const attemptCacheKeyPrefix = "go-socialengine::attempt_record::v1"

// CachedAttemptStore serves Get from a cache in front of a base store.
// Terminal records never change, so entries are only evicted after a write
// for the same attempt id.
type CachedAttemptStore struct {
	base  core.AttemptStore
	cache repositorycache.CacheService
}

func NewCachedAttemptStore(base core.AttemptStore, cacheService repositorycache.CacheService) (*CachedAttemptStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base attempt store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: attempt cache service is required")
	}
	return &CachedAttemptStore{base: base, cache: cacheService}, nil
}

// AttemptCacheKey returns go-socialengine::attempt_record::v1::<attempt_id>
// with the id URL-path escaped.
func AttemptCacheKey(attemptID string) (string, error) {
	trimmed := strings.TrimSpace(attemptID)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: attempt id is required")
	}
	return attemptCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedAttemptStore) Record(ctx context.Context, record core.AttemptRecord) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached attempt store is not configured")
	}
	if err := s.base.Record(ctx, record); err != nil {
		return err
	}
	cacheKey, err := AttemptCacheKey(record.AttemptID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedAttemptStore) Get(ctx context.Context, attemptID string) (core.AttemptRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AttemptRecord{}, fmt.Errorf("sqlstore: cached attempt store is not configured")
	}
	cacheKey, err := AttemptCacheKey(attemptID)
	if err != nil {
		return core.AttemptRecord{}, err
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.AttemptRecord, error) {
		return s.base.Get(ctx, strings.TrimSpace(attemptID))
	})
	if err != nil {
		return core.AttemptRecord{}, err
	}
	return cloneRecord(record), nil
}

// List always reads through; pages shift as new attempts complete.
func (s *CachedAttemptStore) List(ctx context.Context, filter core.AttemptFilter) (core.AttemptPage, error) {
	if s == nil || s.base == nil {
		return core.AttemptPage{}, fmt.Errorf("sqlstore: cached attempt store is not configured")
	}
	return s.base.List(ctx, filter)
}

func cloneRecord(record core.AttemptRecord) core.AttemptRecord {
	out := record
	if record.Fields != nil {
		out.Fields = append([]string(nil), record.Fields...)
	}
	if record.Profile != nil {
		out.Profile = copyAnyMap(record.Profile)
	}
	return out
}
