package domain

import "context"

// TenantRepository defines the persistence contract for tenants in the
// central database.
type TenantRepository interface {
	// Create inserts the tenant and returns it with its assigned ID.
	Create(ctx context.Context, tenant Tenant) (Tenant, error)
	GetByID(ctx context.Context, id int64) (Tenant, error)
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	AssignDatabase(ctx context.Context, id int64, database string) error
	// ReferencedDatabases returns every database name a tenant row points at.
	ReferencedDatabases(ctx context.Context) ([]string, error)
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// PoolLedger records which tenant holds a claim on which pool entry. Claim
// is a compare-and-swap: exactly one caller wins a given name.
type PoolLedger interface {
	Claim(ctx context.Context, name string, tenantID int64) (bool, error)
	ClaimOf(ctx context.Context, tenantID int64) (string, bool, error)
	// HolderOf returns the tenant holding name, if any.
	HolderOf(ctx context.Context, name string) (int64, bool, error)
	Claimed(ctx context.Context) ([]string, error)
	Release(ctx context.Context, name string) error
}

// DatabaseAdmin issues DDL against the engine that hosts tenant databases.
type DatabaseAdmin interface {
	// Create returns ErrDatabaseExists when the name is taken.
	Create(ctx context.Context, name string) error
	// Rename returns ErrDatabaseNotFound when from is missing and
	// ErrDatabaseExists when to is taken. It never overwrites.
	Rename(ctx context.Context, from, to string) error
	Drop(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// List returns database names starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	TableCount(ctx context.Context, name string) (int, error)
	// HasData reports whether the business tables hold any rows.
	HasData(ctx context.Context, name string) (bool, error)
	// Migrate applies the tenant migration set; safe to re-run.
	Migrate(ctx context.Context, name string) error
	// Connect opens an explicit handle on a tenant database.
	Connect(ctx context.Context, name string) (TenantDB, error)
}

// TenantDB is a handle on one tenant database. Every write is idempotent.
type TenantDB interface {
	Database() string
	UpsertRole(ctx context.Context, name, description string) (int64, error)
	UpsertPermission(ctx context.Context, name string) (int64, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	EnsureCompany(ctx context.Context, company CompanyInput) (int64, error)
	// EnsureUser creates the user unless one with the same email exists.
	EnsureUser(ctx context.Context, companyID int64, admin AdminInput) (id int64, created bool, err error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	Close() error
}

// TaskQueue dispatches provisioning tasks. The task's NotBefore is honored
// as a delayed dispatch, never an in-process wait.
type TaskQueue interface {
	Enqueue(ctx context.Context, task ProvisioningTask) error
}

// EventPublisher defines the contract for emitting domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event TenantProvisioned) error
}

// TransitionValidator checks lifecycle transitions and returns the new status.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
