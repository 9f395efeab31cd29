package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func gooseDialect(driver string) (goose.Dialect, error) {
	switch driver {
	case DriverSQLite, "":
		return goose.DialectSQLite3, nil
	case DriverPgx:
		return goose.DialectPostgres, nil
	case DriverMySQL:
		return goose.DialectMySQL, nil
	}
	return "", fmt.Errorf("no migration dialect for driver %q", driver)
}

func newProvider(sqdb *sql.DB, driver string) (*goose.Provider, error) {
	dialect, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, sqdb, sub)
}

// Migrate applies every pending embedded migration and returns the versions
// it applied.
func Migrate(ctx context.Context, sqdb *sql.DB, driver string) ([]int64, error) {
	p, err := newProvider(sqdb, driver)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

type MigrationState struct {
	Version int64
	Path    string
	Applied bool
}

func MigrationStatus(ctx context.Context, sqdb *sql.DB, driver string) ([]MigrationState, error) {
	p, err := newProvider(sqdb, driver)
	if err != nil {
		return nil, fmt.Errorf("migration provider: %w", err)
	}
	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationState, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationState{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
