package app

import (
	"context"
	"fmt"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// RoleSeeder writes the baseline RBAC set into a tenant database. All writes
// are upserts, so seeding twice converges on the same rows.
type RoleSeeder struct {
	roles []domain.RoleDefinition
}

// NewRoleSeeder creates a seeder for roles, or domain.BaselineRoles when nil.
func NewRoleSeeder(roles []domain.RoleDefinition) *RoleSeeder {
	if roles == nil {
		roles = domain.BaselineRoles
	}
	return &RoleSeeder{roles: roles}
}

// Seed upserts every role and permission and returns role IDs by name.
func (s *RoleSeeder) Seed(ctx context.Context, db domain.TenantDB) (map[string]int64, error) {
	roleIDs := make(map[string]int64, len(s.roles))
	permIDs := make(map[string]int64)

	for _, role := range s.roles {
		roleID, err := db.UpsertRole(ctx, role.Name, role.Description)
		if err != nil {
			return nil, fmt.Errorf("seeding role %q in %s: %w", role.Name, db.Database(), err)
		}
		roleIDs[role.Name] = roleID

		for _, perm := range role.Permissions {
			permID, ok := permIDs[perm]
			if !ok {
				permID, err = db.UpsertPermission(ctx, perm)
				if err != nil {
					return nil, fmt.Errorf("seeding permission %q in %s: %w", perm, db.Database(), err)
				}
				permIDs[perm] = permID
			}
			if err := db.GrantPermission(ctx, roleID, permID); err != nil {
				return nil, fmt.Errorf("granting %q to %q: %w", perm, role.Name, err)
			}
		}
	}
	return roleIDs, nil
}
