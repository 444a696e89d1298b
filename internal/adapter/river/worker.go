package river

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/app"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

// Handler runs one provisioning attempt. *app.Orchestrator satisfies it.
type Handler interface {
	Handle(ctx context.Context, task domain.ProvisioningTask) (app.Result, error)
}

// ProvisionWorker hands provisioning jobs to the orchestrator.
type ProvisionWorker struct {
	river.WorkerDefaults[ProvisionArgs]

	handler Handler
	timeout time.Duration
	logger  *zap.Logger
}

// NewProvisionWorker creates the worker. attemptTimeout is the deadline the
// handler enforces per attempt; River's own job timeout is set above it so
// the handler can still record the failure.
func NewProvisionWorker(handler Handler, attemptTimeout time.Duration, logger *zap.Logger) *ProvisionWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProvisionWorker{handler: handler, timeout: attemptTimeout + time.Minute, logger: logger}
}

func (w *ProvisionWorker) Timeout(*river.Job[ProvisionArgs]) time.Duration { return w.timeout }

// Work runs the attempt. It returns an error only when the handler could
// not finish its bookkeeping, which makes River redeliver the job.
func (w *ProvisionWorker) Work(ctx context.Context, job *river.Job[ProvisionArgs]) error {
	task := domain.ProvisioningTask{
		TenantID:  job.Args.TenantID,
		Payload:   job.Args.Payload,
		Attempt:   job.Args.Attempt,
		NotBefore: job.ScheduledAt,
	}

	res, err := w.handler.Handle(ctx, task)
	if err != nil {
		w.logger.Error("provisioning job failed",
			zap.Int64("job_id", job.ID),
			zap.Int64("tenant_id", task.TenantID),
			zap.Int("river_attempt", job.Attempt),
			zap.Error(err),
		)
		return err
	}

	w.logger.Debug("provisioning job done",
		zap.Int64("job_id", job.ID),
		zap.Int64("tenant_id", task.TenantID),
		zap.Stringer("outcome", res.Outcome),
	)
	return nil
}
