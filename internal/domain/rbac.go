package domain

// RoleAdmin is the role granted to a tenant's first administrator.
const RoleAdmin = "admin"

// RoleDefinition is one baseline role and the permissions it carries.
type RoleDefinition struct {
	Name        string
	Description string
	Permissions []string
}

// BaselineRoles is the RBAC set every tenant database starts with.
var BaselineRoles = []RoleDefinition{
	{
		Name:        RoleAdmin,
		Description: "Full access to the company account",
		Permissions: []string{
			"companies.read", "companies.write",
			"users.read", "users.write",
			"roles.read", "roles.write",
			"reports.read",
		},
	},
	{
		Name:        "manager",
		Description: "Manages day to day operations",
		Permissions: []string{"companies.read", "users.read", "users.write", "reports.read"},
	},
	{
		Name:        "viewer",
		Description: "Read-only access",
		Permissions: []string{"companies.read", "reports.read"},
	},
}
