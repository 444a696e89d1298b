package river

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// KindTenantProvisioned routes provisioned-tenant notifications.
const KindTenantProvisioned = "tenant.provisioned"

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// TenantProvisionedArgs is the queued form of domain.TenantProvisioned.
// The event id is unique, so a second publish of the same event is dropped.
type TenantProvisionedArgs struct {
	EventID     string    `json:"event_id" river:"unique"`
	TenantID    int64     `json:"tenant_id"`
	CompanyID   int64     `json:"company_id"`
	AdminUserID int64     `json:"admin_user_id,omitempty"`
	Database    string    `json:"database"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (TenantProvisionedArgs) Kind() string { return KindTenantProvisioned }

func (TenantProvisionedArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByArgs: true}}
}

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event domain.TenantProvisioned) error {
	_, err := p.client.Insert(ctx, TenantProvisionedArgs{
		EventID:     event.EventID,
		TenantID:    event.TenantID,
		CompanyID:   event.CompanyID,
		AdminUserID: event.AdminUserID,
		Database:    event.Database,
		OccurredAt:  event.OccurredAt,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}

// EventWorker consumes provisioned-tenant events. It records them in the
// log; downstream integrations hook in here.
type EventWorker struct {
	river.WorkerDefaults[TenantProvisionedArgs]

	logger *zap.Logger
}

func NewEventWorker(logger *zap.Logger) *EventWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWorker{logger: logger}
}

func (w *EventWorker) Work(ctx context.Context, job *river.Job[TenantProvisionedArgs]) error {
	w.logger.Info("tenant provisioned",
		zap.String("event_id", job.Args.EventID),
		zap.Int64("tenant_id", job.Args.TenantID),
		zap.String("database", job.Args.Database),
		zap.Int64("company_id", job.Args.CompanyID),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}
