// Package sqlitedb hosts tenant databases as SQLite files in one directory.
// A database's name is its file name without the .db extension.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/neomorfeo/tenantprov/internal/domain"
	"github.com/neomorfeo/tenantprov/internal/migrations"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

const ext = ".db"

// OpenFunc opens a database/sql handle. It lets callers substitute an
// instrumented opener such as otelsql.Open.
type OpenFunc func(driverName, dataSourceName string) (*sql.DB, error)

// Admin implements domain.DatabaseAdmin over a directory of SQLite files.
type Admin struct {
	dir  string
	open OpenFunc
}

// Compile-time check: Admin implements domain.DatabaseAdmin.
var _ domain.DatabaseAdmin = (*Admin)(nil)

// New creates the directory if needed and returns an admin rooted there.
// A nil open uses sql.Open.
func New(dir string, open OpenFunc) (*Admin, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	if open == nil {
		open = sql.Open
	}
	return &Admin{dir: dir, open: open}, nil
}

func (a *Admin) path(name string) (string, error) {
	if name == "" || strings.IndexFunc(name, invalidRune) >= 0 {
		return "", fmt.Errorf("invalid database name %q", name)
	}
	return filepath.Join(a.dir, name+ext), nil
}

func invalidRune(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
}

func (a *Admin) Create(_ context.Context, name string) error {
	p, err := a.path(name)
	if err != nil {
		return err
	}
	// O_EXCL makes creation atomic; an empty file is a valid empty database.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		return domain.ErrDatabaseExists
	}
	if err != nil {
		return fmt.Errorf("creating %q: %w", name, err)
	}
	return f.Close()
}

// Rename hard-links the file under the new name before unlinking the old
// one, so an existing target is never replaced.
func (a *Admin) Rename(_ context.Context, from, to string) error {
	src, err := a.path(from)
	if err != nil {
		return err
	}
	dst, err := a.path(to)
	if err != nil {
		return err
	}

	if err := os.Link(src, dst); err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return domain.ErrDatabaseNotFound
		case errors.Is(err, os.ErrExist):
			return domain.ErrDatabaseExists
		default:
			return fmt.Errorf("renaming %q to %q: %w", from, to, err)
		}
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("unlinking %q: %w", from, err)
	}
	return nil
}

func (a *Admin) Drop(_ context.Context, name string) error {
	p, err := a.path(name)
	if err != nil {
		return err
	}
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if err := os.Remove(p + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("dropping %q: %w", name, err)
		}
	}
	return nil
}

func (a *Admin) Exists(_ context.Context, name string) (bool, error) {
	p, err := a.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("checking %q: %w", name, err)
	}
}

func (a *Admin) List(_ context.Context, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(a.dir, prefix+"*"+ext))
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ext))
	}
	slices.Sort(names)
	return names, nil
}

func (a *Admin) TableCount(ctx context.Context, name string) (int, error) {
	var n int
	err := a.with(ctx, name, func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`,
		).Scan(&n)
	})
	return n, err
}

func (a *Admin) HasData(ctx context.Context, name string) (bool, error) {
	var found bool
	err := a.with(ctx, name, func(db *sql.DB) error {
		for _, table := range migrations.BusinessTables {
			var present bool
			if err := db.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`, table,
			).Scan(&present); err != nil {
				return err
			}
			if !present {
				continue
			}
			// Table names come from a fixed list.
			if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+`)`).Scan(&found); err != nil {
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
	return a.with(ctx, name, func(db *sql.DB) error {
		return migrations.Apply(ctx, db, migrations.SQLite)
	})
}

func (a *Admin) Connect(ctx context.Context, name string) (domain.TenantDB, error) {
	db, err := a.openExisting(ctx, name)
	if err != nil {
		return nil, err
	}
	return &TenantDB{db: db, name: name}, nil
}

func (a *Admin) with(ctx context.Context, name string, fn func(*sql.DB) error) error {
	db, err := a.openExisting(ctx, name)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := fn(db); err != nil {
		return fmt.Errorf("database %q: %w", name, err)
	}
	return nil
}

// openExisting opens name read-write without creating it.
func (a *Admin) openExisting(ctx context.Context, name string) (*sql.DB, error) {
	exists, err := a.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrDatabaseNotFound
	}
	p, _ := a.path(name)
	db, err := a.open("sqlite", "file:"+p+"?mode=rw&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", name, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
