package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// eventNamespace scopes deterministic event identifiers.
var eventNamespace = uuid.MustParse("5b0f7a4e-3c1d-4f5e-9a49-2f1c6f0d8e21")

// TenantProvisioned is emitted once a tenant reaches the active state.
type TenantProvisioned struct {
	EventID     string
	TenantID    int64
	CompanyID   int64
	AdminUserID int64 // zero when no admin credentials were supplied
	Database    string
	OccurredAt  time.Time
}

// NewTenantProvisioned builds the event. The ID is derived from the tenant id
// so downstream consumers can deduplicate redeliveries.
func NewTenantProvisioned(tenantID, companyID, adminUserID int64, database string, at time.Time) TenantProvisioned {
	return TenantProvisioned{
		EventID:     uuid.NewSHA1(eventNamespace, []byte("tenant.provisioned:"+strconv.FormatInt(tenantID, 10))).String(),
		TenantID:    tenantID,
		CompanyID:   companyID,
		AdminUserID: adminUserID,
		Database:    database,
		OccurredAt:  at.UTC(),
	}
}
