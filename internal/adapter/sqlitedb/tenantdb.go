package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// TenantDB is an open handle on one tenant's SQLite file.
type TenantDB struct {
	db   *sql.DB
	name string
}

// Compile-time check: TenantDB implements domain.TenantDB.
var _ domain.TenantDB = (*TenantDB)(nil)

func (t *TenantDB) Database() string { return t.name }

func (t *TenantDB) UpsertRole(ctx context.Context, name, description string) (int64, error) {
	var id int64
	err := t.db.QueryRowContext(ctx,
		`INSERT INTO roles (name, description) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET description = excluded.description
		 RETURNING id`,
		name, description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting role: %w", err)
	}
	return id, nil
}

func (t *TenantDB) UpsertPermission(ctx context.Context, name string) (int64, error) {
	var id int64
	err := t.db.QueryRowContext(ctx,
		`INSERT INTO permissions (name) VALUES (?)
		 ON CONFLICT (name) DO UPDATE SET name = excluded.name
		 RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting permission: %w", err)
	}
	return id, nil
}

func (t *TenantDB) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		roleID, permissionID,
	)
	if err != nil {
		return fmt.Errorf("granting permission: %w", err)
	}
	return nil
}

func (t *TenantDB) EnsureCompany(ctx context.Context, c domain.CompanyInput) (int64, error) {
	var id int64
	err := t.db.QueryRowContext(ctx,
		`INSERT INTO companies (name, tax_id, email) VALUES (?, ?, ?)
		 ON CONFLICT (tax_id) DO UPDATE SET name = excluded.name
		 RETURNING id`,
		c.Name, c.TaxID, c.Email,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting company: %w", err)
	}
	return id, nil
}

func (t *TenantDB) EnsureUser(ctx context.Context, companyID int64, admin domain.AdminInput) (int64, bool, error) {
	var id int64
	err := t.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, admin.Email).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("looking up user: %w", err)
	}

	err = t.db.QueryRowContext(ctx,
		`INSERT INTO users (company_id, name, email, password_hash) VALUES (?, ?, ?, ?)
		 RETURNING id`,
		companyID, admin.Name, admin.Email, admin.PasswordHash,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("inserting user: %w", err)
	}
	return id, true, nil
}

func (t *TenantDB) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		userID, roleID,
	)
	if err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}
	return nil
}

func (t *TenantDB) Close() error {
	return t.db.Close()
}
