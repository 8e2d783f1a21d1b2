package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-socialengine/core"
)

// RepositoryFactory builds the SQL-backed stores from a persistence client
// or a bare bun db.
type RepositoryFactory struct {
	db *bun.DB

	attemptStore *AttemptStore
	cache        repositorycache.CacheService
}

type FactoryOption func(*RepositoryFactory)

// WithAttemptCache puts cacheService in front of attempt lookups.
func WithAttemptCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.attemptStore != nil {
		return nil
	}
	store, err := NewAttemptStore(f.db)
	if err != nil {
		return err
	}
	f.attemptStore = store
	return nil
}

// AttemptStore returns the history store, cached when WithAttemptCache was
// given.
func (f *RepositoryFactory) AttemptStore() core.AttemptStore {
	if f == nil || f.attemptStore == nil {
		return nil
	}
	if f.cache == nil {
		return f.attemptStore
	}
	cached, err := NewCachedAttemptStore(f.attemptStore, f.cache)
	if err != nil {
		return f.attemptStore
	}
	return cached
}

func (f *RepositoryFactory) SQLAttemptStore() *AttemptStore {
	if f == nil {
		return nil
	}
	return f.attemptStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
