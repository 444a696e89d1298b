package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/tenantprov/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the central database: the tenant registry and the pool claim
// ledger share one SQLite file with the job queue.
type Store struct {
	db *sql.DB
}

// Compile-time checks.
var (
	_ domain.TenantRepository = (*Store)(nil)
	_ domain.PoolLedger       = (*Store)(nil)
)

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(ctx context.Context, dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(ctx, db)
}

// NewFromDB wraps an existing connection (e.g. one instrumented with
// otelsql), runs migrations, and returns a ready store.
func NewFromDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate applies the central schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for the job queue.
func (s *Store) DB() *sql.DB {
	return s.db
}

const timeFormat = time.RFC3339Nano

const tenantColumns = `id, name, tax_id, status, database_name, payload, created_at, updated_at`

func (s *Store) Create(ctx context.Context, t domain.Tenant) (domain.Tenant, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("encoding payload: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO tenants (name, tax_id, status, database_name, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		t.Name, t.TaxID, string(t.Status), nullString(t.DatabaseName), string(payload),
		t.CreatedAt.UTC().Format(timeFormat),
		t.UpdatedAt.UTC().Format(timeFormat),
	).Scan(&t.ID)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("inserting tenant: %w", err)
	}
	return t, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (domain.Tenant, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, err
}

func (s *Store) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	return s.updateOne(ctx,
		`UPDATE tenants SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(timeFormat), id,
	)
}

func (s *Store) AssignDatabase(ctx context.Context, id int64, database string) error {
	return s.updateOne(ctx,
		`UPDATE tenants SET database_name = ?, updated_at = ? WHERE id = ?`,
		database, time.Now().UTC().Format(timeFormat), id,
	)
}

func (s *Store) updateOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

func (s *Store) ReferencedDatabases(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT database_name FROM tenants WHERE database_name IS NOT NULL ORDER BY database_name`)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (domain.Tenant, error) {
	var t domain.Tenant
	var status, payload, createdAt, updatedAt string
	var database sql.NullString

	if err := row.Scan(&t.ID, &t.Name, &t.TaxID, &status, &database, &payload, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Tenant{}, err
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Status = domain.Status(status)
	t.DatabaseName = database.String
	if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
		return domain.Tenant{}, fmt.Errorf("decoding payload of tenant %d: %w", t.ID, err)
	}
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	t.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
