// Package migrations exposes the embedded record store schema per SQL
// dialect so persistence clients can register and apply it.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	gradspeech "github.com/goliatone/go-gradspeech"
	"github.com/goliatone/go-gradspeech/core"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-gradspeech"

	migrationsDir = "data/sql/migrations"
)

// Source is the migration directory for one dialect. Postgres files live at
// the root of the tree and sqlite files in its sqlite/ subdirectory.
type Source struct {
	Dialect string
	Dir     string
	FS      fs.FS
}

// RegisterFunc receives each selected dialect's migrations. Persistence
// clients usually forward fsys to RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type Option func(*Registration)

// WithDialects limits registration to the named dialects.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		selected := make([]string, 0, len(dialects))
		for _, dialect := range dialects {
			dialect = strings.ToLower(strings.TrimSpace(dialect))
			if dialect != "" && !contains(selected, dialect) {
				selected = append(selected, dialect)
			}
		}
		if len(selected) > 0 {
			r.Dialects = selected
		}
	}
}

// DialectForDriver maps a configured store driver to its migration dialect.
func DialectForDriver(driver string) string {
	if strings.TrimSpace(driver) == core.StoreDriverSQLite {
		return DialectSQLite
	}
	return DialectPostgres
}

// Sources lists the postgres and sqlite migration directories of root, or of
// the embedded tree when root is nil. Each must hold at least one up file.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = gradspeech.GetMigrationsFS()
	}
	postgres, err := fs.Sub(root, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s: %w", migrationsDir, err)
	}
	sqlite, err := fs.Sub(postgres, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s/sqlite: %w", migrationsDir, err)
	}
	sources := []Source{
		{Dialect: DialectPostgres, Dir: migrationsDir, FS: postgres},
		{Dialect: DialectSQLite, Dir: migrationsDir + "/sqlite", FS: sqlite},
	}
	for _, source := range sources {
		ups, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s: %w", source.Dir, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s has no up migrations", source.Dir)
		}
	}
	return sources, nil
}

// Register hands every selected dialect's migrations to registerFn. Both
// dialects are selected unless WithDialects narrows them.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: SourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if reg.Sources == nil {
		sources, err := Sources(nil)
		if err != nil {
			return reg, err
		}
		reg.Sources = sources
	}

	for _, dialect := range reg.Dialects {
		source, ok := findSource(reg.Sources, dialect)
		if !ok {
			return reg, fmt.Errorf("migrations: no migrations for dialect %q", dialect)
		}
		if err := registerFn(ctx, source.Dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
	}
	return reg, nil
}

func findSource(sources []Source, dialect string) (Source, bool) {
	for _, source := range sources {
		if source.Dialect == dialect {
			return source, true
		}
	}
	return Source{}, false
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
