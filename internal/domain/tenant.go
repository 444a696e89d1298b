package domain

import (
	"fmt"
	"time"
)

// Status represents the provisioning state of a tenant.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusActive     Status = "ativa"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the orchestrator stops acting on a tenant in this state.
func (s Status) Terminal() bool {
	return s == StatusActive || s == StatusFailed
}

// Event represents an action that triggers a state transition.
type Event string

const (
	EventStart    Event = "start"
	EventActivate Event = "activate"
	EventFail     Event = "fail"
)

// Transition defines a valid state change: an event moves a tenant from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the provisioning lifecycle.
// Every path to a terminal state passes through processing. A failed tenant
// can only be restarted by an operator re-enqueuing its task.
var Transitions = []Transition{
	{Event: EventStart, Src: StatusPending, Dst: StatusProcessing},
	{Event: EventStart, Src: StatusFailed, Dst: StatusProcessing},
	{Event: EventActivate, Src: StatusProcessing, Dst: StatusActive},
	{Event: EventFail, Src: StatusProcessing, Dst: StatusFailed},
}

// Tenant is one isolated customer account backed by its own database.
type Tenant struct {
	ID           int64
	Name         string
	TaxID        string
	Status       Status
	DatabaseName string // empty until a database is allocated
	Payload      CreationPayload
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTenant creates a tenant in the initial "pending" state. The ID is
// assigned by the central store on insert.
func NewTenant(name, taxID string, payload CreationPayload) Tenant {
	now := time.Now().UTC()
	return Tenant{
		Name:      name,
		TaxID:     taxID,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TargetDatabase returns the database the tenant owns, or the name it will
// own once allocated.
func (t Tenant) TargetDatabase() string {
	if t.DatabaseName != "" {
		return t.DatabaseName
	}
	return TenantDatabaseName(t.ID)
}

// CreationPayload carries the data for the tenant's first business entities.
type CreationPayload struct {
	Company CompanyInput `json:"company"`
	Admin   *AdminInput  `json:"admin,omitempty"`
}

// CompanyInput describes the first company record of a tenant.
type CompanyInput struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
	Email string `json:"email,omitempty"`
}

// AdminInput describes the first administrator user. The password is
// hashed before the payload is persisted or enqueued.
type AdminInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// String implements fmt.Stringer for log output.
func (t Tenant) String() string {
	return fmt.Sprintf("tenant %d (%s)", t.ID, t.Status)
}
