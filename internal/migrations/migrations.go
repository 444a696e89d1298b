// Package migrations embeds the schema every tenant database carries, in
// one directory per SQL dialect.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect selects the SQL flavor of the migration set.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// BusinessTables are the tables whose rows mean a database is in use.
var BusinessTables = []string{"roles", "permissions", "companies", "users"}

// NewProvider returns a goose provider over the tenant migration set.
func NewProvider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	var gd goose.Dialect
	switch dialect {
	case Postgres:
		gd = goose.DialectPostgres
	case SQLite:
		gd = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	sub, err := fs.Sub(files, string(dialect))
	if err != nil {
		return nil, fmt.Errorf("opening %s migrations: %w", dialect, err)
	}
	return goose.NewProvider(gd, db, sub)
}

// Apply brings db up to the latest tenant schema. Versions already
// recorded in goose's table are skipped.
func Apply(ctx context.Context, db *sql.DB, dialect Dialect) error {
	provider, err := NewProvider(db, dialect)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying tenant migrations: %w", err)
	}
	return nil
}
