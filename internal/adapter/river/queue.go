package river

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// KindProvision routes provisioning attempts.
const KindProvision = "tenant.provision"

// ProvisionArgs is one provisioning attempt as stored in River's job table.
// The tenant id and attempt number identify the job: a redelivered insert
// of the same attempt is skipped while an earlier copy is still live.
type ProvisionArgs struct {
	TenantID int64                  `json:"tenant_id" river:"unique"`
	Attempt  int                    `json:"attempt" river:"unique"`
	Payload  domain.CreationPayload `json:"payload"`
}

func (ProvisionArgs) Kind() string { return KindProvision }

// InsertOpts leaves completed jobs out of the uniqueness check so an
// operator retry can enqueue attempt 1 again.
func (ProvisionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		// River's own retries only cover bookkeeping failures; attempt
		// retries are new jobs.
		MaxAttempts: 5,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRetryable,
				rivertype.JobStateRunning,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// Compile-time check: Queue implements domain.TaskQueue.
var _ domain.TaskQueue = (*Queue)(nil)

// Queue implements domain.TaskQueue on River. A task's NotBefore becomes
// the job's scheduled time, so retries wait in the database.
type Queue struct {
	client *Client
	logger *zap.Logger
}

// NewQueue creates a queue backed by the given River client.
func NewQueue(client *Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) Enqueue(ctx context.Context, task domain.ProvisioningTask) error {
	res, err := q.client.Insert(ctx, ProvisionArgs{
		TenantID: task.TenantID,
		Attempt:  task.Attempt,
		Payload:  task.Payload,
	}, &river.InsertOpts{ScheduledAt: task.NotBefore})
	if err != nil {
		return fmt.Errorf("enqueuing provisioning job: %w", err)
	}
	if res.UniqueSkippedAsDuplicate {
		q.logger.Debug("provisioning attempt already queued",
			zap.Int64("tenant_id", task.TenantID),
			zap.Int("attempt", task.Attempt),
			zap.Int64("job_id", res.Job.ID),
		)
	}
	return nil
}
