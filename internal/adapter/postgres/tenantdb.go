package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// TenantDB is a single connection to one tenant database.
type TenantDB struct {
	conn *pgx.Conn
	name string
}

// Compile-time check: TenantDB implements domain.TenantDB.
var _ domain.TenantDB = (*TenantDB)(nil)

func (t *TenantDB) Database() string { return t.name }

func (t *TenantDB) UpsertRole(ctx context.Context, name, description string) (int64, error) {
	var id int64
	err := t.conn.QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
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
	err := t.conn.QueryRow(ctx,
		`INSERT INTO permissions (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting permission: %w", err)
	}
	return id, nil
}

func (t *TenantDB) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	if _, err := t.conn.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		roleID, permissionID,
	); err != nil {
		return fmt.Errorf("granting permission: %w", err)
	}
	return nil
}

func (t *TenantDB) EnsureCompany(ctx context.Context, c domain.CompanyInput) (int64, error) {
	var id int64
	err := t.conn.QueryRow(ctx,
		`INSERT INTO companies (name, tax_id, email) VALUES ($1, $2, $3)
		 ON CONFLICT (tax_id) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		c.Name, c.TaxID, c.Email,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting company: %w", err)
	}
	return id, nil
}

// EnsureUser inserts the admin unless the email is taken. The conflict
// clause makes concurrent inserts safe; the follow-up select finds the
// existing row.
func (t *TenantDB) EnsureUser(ctx context.Context, companyID int64, admin domain.AdminInput) (int64, bool, error) {
	var id int64
	err := t.conn.QueryRow(ctx,
		`INSERT INTO users (company_id, name, email, password_hash) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id`,
		companyID, admin.Name, admin.Email, admin.PasswordHash,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("inserting user: %w", err)
	}

	if err := t.conn.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, admin.Email).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("looking up user: %w", err)
	}
	return id, false, nil
}

func (t *TenantDB) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := t.conn.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		userID, roleID,
	); err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}
	return nil
}

func (t *TenantDB) Close() error {
	return t.conn.Close(context.Background())
}
