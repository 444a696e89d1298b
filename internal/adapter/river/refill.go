package river

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/app"
)

// KindPoolRefill routes pool top-ups.
const KindPoolRefill = "pool.refill"

// PoolRefillArgs asks for at least MinAvailable free pool entries.
type PoolRefillArgs struct {
	MinAvailable int `json:"min_available"`
}

func (PoolRefillArgs) Kind() string { return KindPoolRefill }

// Refiller tops the pool up. *app.PoolManager satisfies it.
type Refiller interface {
	Refill(ctx context.Context, minAvailable int) (app.ProvisionReport, error)
}

// PoolRefillWorker keeps the pool stocked between tenant registrations.
type PoolRefillWorker struct {
	river.WorkerDefaults[PoolRefillArgs]

	pool   Refiller
	logger *zap.Logger
}

func NewPoolRefillWorker(pool Refiller, logger *zap.Logger) *PoolRefillWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolRefillWorker{pool: pool, logger: logger}
}

// Work provisions the shortfall. Per-slot failures are logged and left
// for the next run; only a failure to inspect the pool fails the job.
func (w *PoolRefillWorker) Work(ctx context.Context, job *river.Job[PoolRefillArgs]) error {
	report, err := w.pool.Refill(ctx, job.Args.MinAvailable)
	if err != nil {
		return err
	}
	if len(report) == 0 {
		return nil
	}
	if err := report.Err(); err != nil {
		w.logger.Warn("pool refill incomplete",
			zap.Strings("created", report.Created()),
			zap.Error(err),
		)
		return nil
	}
	w.logger.Info("pool refilled", zap.Strings("created", report.Created()))
	return nil
}

// PeriodicRefill schedules a refill every interval, starting at boot.
func PeriodicRefill(interval time.Duration, minAvailable int) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return PoolRefillArgs{MinAvailable: minAvailable}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
