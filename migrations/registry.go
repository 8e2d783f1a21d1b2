// Package migrations exposes the embedded attempt history schema per SQL
// dialect and registers it with a migration runner.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	socialengine "github.com/goliatone/go-socialengine"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"

	DefaultSourceLabel = "go-socialengine"

	rootPath = "data/sql/migrations"
)

// ParseDialect accepts driver names as well as dialect names.
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", value)
	}
}

// Source is one dialect's migration directory.
type Source struct {
	Dialect  Dialect
	Path     string
	FS       fs.FS
	Versions []string
}

// Sources splits root, or the embedded tree when root is nil, into the
// postgres directory and its sqlite subdirectory. Every up migration must
// have a matching down migration.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = socialengine.GetMigrationsFS()
	}
	base, basePath, err := locateRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite directory: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: joinPath(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range sources {
		versions, err := pairedVersions(sources[i])
		if err != nil {
			return nil, err
		}
		sources[i].Versions = versions
	}
	return sources, nil
}

// SourceFor returns the embedded migrations for dialect.
func SourceFor(dialect Dialect) (Source, error) {
	sources, err := Sources(nil)
	if err != nil {
		return Source{}, err
	}
	for _, source := range sources {
		if source.Dialect == dialect {
			return source, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: no migrations for dialect %q", dialect)
}

type RegisterFunc func(ctx context.Context, source Source, sourceLabel string) error

type registration struct {
	label    string
	dialects []Dialect
	root     fs.FS
}

type Option func(*registration)

func WithSourceLabel(label string) Option {
	return func(r *registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.label = trimmed
		}
	}
}

// WithDialects limits registration to the given dialects.
func WithDialects(dialects ...Dialect) Option {
	return func(r *registration) {
		r.dialects = nil
		for _, dialect := range dialects {
			if dialect != "" && !slices.Contains(r.dialects, dialect) {
				r.dialects = append(r.dialects, dialect)
			}
		}
	}
}

// WithRoot replaces the embedded tree, mostly for host applications that
// ship their own copy.
func WithRoot(root fs.FS) Option {
	return func(r *registration) {
		r.root = root
	}
}

// Register hands each selected source to registerFn, typically wrapping a
// persistence client's RegisterSQLMigrations. It returns the sources it
// registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	reg := registration{
		label:    DefaultSourceLabel,
		dialects: []Dialect{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if len(reg.dialects) == 0 {
		return nil, fmt.Errorf("migrations: at least one dialect is required")
	}

	sources, err := Sources(reg.root)
	if err != nil {
		return nil, err
	}
	registered := make([]Source, 0, len(reg.dialects))
	for _, source := range sources {
		if !slices.Contains(reg.dialects, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source, reg.label); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered = append(registered, source)
	}
	return registered, nil
}

func locateRoot(root fs.FS) (fs.FS, string, error) {
	if sub, err := fs.Sub(root, rootPath); err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, rootPath, nil
		}
	}
	matches, err := fs.Glob(root, "*.up.sql")
	if err == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", rootPath)
}

func pairedVersions(source Source) ([]string, error) {
	ups, err := fs.Glob(source.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s %s: %w", source.Dialect, source.Path, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s directory %q has no *.up.sql files", source.Dialect, source.Path)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(source.FS, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("migrations: %s migration %q has no down file", source.Dialect, version)
		}
		versions = append(versions, version)
	}
	slices.Sort(versions)
	return versions, nil
}

func joinPath(base, child string) string {
	if base == "" || base == "." {
		return child
	}
	return strings.TrimRight(base, "/") + "/" + child
}
