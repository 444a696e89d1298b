package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Claim records tenantID as the owner of pool entry name. It returns false
// when the entry is already claimed or the tenant already holds another one;
// the insert is the compare-and-swap.
func (s *Store) Claim(ctx context.Context, name string, tenantID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO pool_claims (name, tenant_id, claimed_at) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		name, tenantID, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return false, fmt.Errorf("inserting claim: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// ClaimOf returns the entry tenantID holds, if any.
func (s *Store) ClaimOf(ctx context.Context, tenantID int64) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM pool_claims WHERE tenant_id = ?`, tenantID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading claim: %w", err)
	}
	return name, true, nil
}

// HolderOf returns the tenant that holds name, if any.
func (s *Store) HolderOf(ctx context.Context, name string) (int64, bool, error) {
	var tenantID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM pool_claims WHERE name = ?`, name,
	).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("loading claim holder: %w", err)
	}
	return tenantID, true, nil
}

// Claimed returns every claimed entry name.
func (s *Store) Claimed(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT name FROM pool_claims ORDER BY name`)
}

// Release removes the claim on name. Releasing an unclaimed name is a no-op.
func (s *Store) Release(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pool_claims WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting claim: %w", err)
	}
	return nil
}
