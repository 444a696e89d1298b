// Package postgres hosts tenant databases on a PostgreSQL server. The admin
// connects to a maintenance database (usually "postgres") for DDL and opens
// short-lived connections to individual tenant databases.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/neomorfeo/tenantprov/internal/domain"
	"github.com/neomorfeo/tenantprov/internal/migrations"
)

// SQLSTATE codes the admin maps to domain errors.
const (
	codeDuplicateDatabase = "42P04"
	codeInvalidCatalog    = "3D000"
)

// OpenDBFunc turns a connector into a database/sql handle. It lets callers
// substitute an instrumented opener such as otelsql.OpenDB.
type OpenDBFunc func(driver.Connector) *sql.DB

// Admin implements domain.DatabaseAdmin against a PostgreSQL server.
type Admin struct {
	pool   *pgxpool.Pool
	openDB OpenDBFunc
}

// Compile-time check: Admin implements domain.DatabaseAdmin.
var _ domain.DatabaseAdmin = (*Admin)(nil)

// NewAdmin wraps a pool on the maintenance database. A nil openDB uses
// sql.OpenDB.
func NewAdmin(pool *pgxpool.Pool, openDB OpenDBFunc) *Admin {
	if openDB == nil {
		openDB = sql.OpenDB
	}
	return &Admin{pool: pool, openDB: openDB}
}

// NewPool builds a pgx pool from dsn and verifies connectivity.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing pgx pool config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (a *Admin) Create(ctx context.Context, name string) error {
	_, err := a.pool.Exec(ctx, "CREATE DATABASE "+quote(name))
	if pgCode(err) == codeDuplicateDatabase {
		return domain.ErrDatabaseExists
	}
	if err != nil {
		return fmt.Errorf("creating database %q: %w", name, err)
	}
	return nil
}

// Rename fails while the source has open connections.
func (a *Admin) Rename(ctx context.Context, from, to string) error {
	_, err := a.pool.Exec(ctx, "ALTER DATABASE "+quote(from)+" RENAME TO "+quote(to))
	switch pgCode(err) {
	case "":
	case codeDuplicateDatabase:
		return domain.ErrDatabaseExists
	case codeInvalidCatalog:
		return domain.ErrDatabaseNotFound
	}
	if err != nil {
		return fmt.Errorf("renaming %q to %q: %w", from, to, err)
	}
	return nil
}

func (a *Admin) Drop(ctx context.Context, name string) error {
	if _, err := a.pool.Exec(ctx, "DROP DATABASE IF EXISTS "+quote(name)+" WITH (FORCE)"); err != nil {
		return fmt.Errorf("dropping %q: %w", name, err)
	}
	return nil
}

func (a *Admin) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := a.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("checking %q: %w", name, err)
	}
	return ok, nil
}

func (a *Admin) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT datname FROM pg_database
		 WHERE NOT datistemplate AND starts_with(datname, $1)
		 ORDER BY datname`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	return names, nil
}

func (a *Admin) TableCount(ctx context.Context, name string) (int, error) {
	var n int
	err := a.with(ctx, name, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`SELECT count(*) FROM information_schema.tables
			 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`,
		).Scan(&n)
	})
	return n, err
}

func (a *Admin) HasData(ctx context.Context, name string) (bool, error) {
	var found bool
	err := a.with(ctx, name, func(conn *pgx.Conn) error {
		for _, table := range migrations.BusinessTables {
			var present bool
			if err := conn.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&present); err != nil {
				return err
			}
			if !present {
				continue
			}
			if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+quote(table)+`)`).Scan(&found); err != nil {
				return err
			}
			if found {
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (a *Admin) Migrate(ctx context.Context, name string) error {
	cfg, err := a.configFor(ctx, name)
	if err != nil {
		return err
	}
	db := a.openDB(stdlib.GetConnector(*cfg))
	defer db.Close()
	return migrations.Apply(ctx, db, migrations.Postgres)
}

func (a *Admin) Connect(ctx context.Context, name string) (domain.TenantDB, error) {
	conn, err := a.connect(ctx, name)
	if err != nil {
		return nil, err
	}
	return &TenantDB{conn: conn, name: name}, nil
}

func (a *Admin) with(ctx context.Context, name string, fn func(*pgx.Conn) error) error {
	conn, err := a.connect(ctx, name)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	if err := fn(conn); err != nil {
		return fmt.Errorf("database %q: %w", name, err)
	}
	return nil
}

func (a *Admin) connect(ctx context.Context, name string) (*pgx.Conn, error) {
	cfg, err := a.configFor(ctx, name)
	if err != nil {
		return nil, err
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if pgCode(err) == codeInvalidCatalog {
		return nil, domain.ErrDatabaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", name, err)
	}
	return conn, nil
}

// configFor derives connection settings for a tenant database from the
// maintenance pool's. The database must exist.
func (a *Admin) configFor(ctx context.Context, name string) (*pgx.ConnConfig, error) {
	exists, err := a.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrDatabaseNotFound
	}
	cfg := a.pool.Config().ConnConfig.Copy()
	cfg.Database = name
	return cfg, nil
}
