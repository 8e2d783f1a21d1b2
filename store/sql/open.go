package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-socialengine/migrations"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config describes the database holding attempt history. It satisfies the
// go-persistence-bun client config contract.
type Config struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
	// Migrate applies the embedded schema on Open.
	Migrate bool
}

func (c Config) GetDebug() bool { return c.Debug }

func (c Config) GetDriver() string { return c.driver() }

func (c Config) GetServer() string { return c.DSN }

func (c Config) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c Config) GetOtelIdentifier() string { return "go-socialengine" }

func (c Config) driver() string {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "postgres", "postgresql", "pg":
		return DriverPostgres
	case "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return strings.TrimSpace(c.Driver)
	}
}

func (c Config) migrationDialect() migrations.Dialect {
	if c.driver() == DriverPostgres {
		return migrations.DialectPostgres
	}
	return migrations.DialectSQLite
}

// Open connects to the configured database, registers the social migrations
// for its dialect and optionally applies them.
func Open(ctx context.Context, cfg Config) (*persistence.Client, error) {
	var dialect schema.Dialect
	switch cfg.driver() {
	case DriverPostgres:
		dialect = pgdialect.New()
	case DriverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}

	sqlDB, err := sql.Open(cfg.driver(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.driver(), err)
	}
	if cfg.driver() == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, func(_ context.Context, source migrations.Source, _ string) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	}, migrations.WithDialects(cfg.migrationDialect()))
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	if cfg.Migrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return client, nil
}
