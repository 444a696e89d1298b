// Package bootstrap assembles the provisioning service from its adapters.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/riverqueue/river"
	otelapi "go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/adapter/fsm"
	"github.com/neomorfeo/tenantprov/internal/adapter/otel"
	"github.com/neomorfeo/tenantprov/internal/adapter/postgres"
	riveradapter "github.com/neomorfeo/tenantprov/internal/adapter/river"
	"github.com/neomorfeo/tenantprov/internal/adapter/sqlite"
	"github.com/neomorfeo/tenantprov/internal/adapter/sqlitedb"
	"github.com/neomorfeo/tenantprov/internal/app"
	"github.com/neomorfeo/tenantprov/internal/config"
	"github.com/neomorfeo/tenantprov/internal/domain"

	handler "github.com/neomorfeo/tenantprov/internal/adapter/http"
)

const meterName = "github.com/neomorfeo/tenantprov"

// Runtime is a fully wired service. River is created but not started;
// commands that only enqueue work never start it.
type Runtime struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        *sqlite.Store
	Admin        domain.DatabaseAdmin
	Pool         *app.PoolManager
	Tenants      *app.TenantService
	Orchestrator *app.Orchestrator
	River        *riveradapter.Client
	Router       http.Handler

	closers []func(context.Context) error
}

// New wires every component described by cfg. On error, whatever was
// already opened is closed again.
func New(ctx context.Context, cfg config.Config, version string, logger *zap.Logger) (_ *Runtime, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close(context.Background()))
		}
	}()

	providers, err := otel.Setup(ctx, otel.Config{
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.OTel.Environment,
		Exporter:       cfg.OTel.Exporter,
		Insecure:       cfg.OTel.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.onClose(providers.Shutdown)

	db, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("central database: %w", err)
	}
	rt.onClose(func(context.Context) error { return db.Close() })

	rt.Store, err = sqlite.NewFromDB(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("central store: %w", err)
	}

	admin, err := rt.tenantAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("tenant databases: %w", err)
	}
	rt.Admin = otel.NewTracingAdmin(admin)

	repo := otel.NewTracingRepository(rt.Store)
	rt.Pool = app.NewPoolManager(rt.Admin, repo, rt.Store, cfg.Pool.MaxSize, logger.Named("pool"))

	meter := otelapi.Meter(meterName)
	metrics, err := otel.NewMetrics(meter)
	if err != nil {
		return nil, err
	}
	reg, err := otel.ObservePool(meter, rt.Pool)
	if err != nil {
		return nil, err
	}
	rt.onClose(func(context.Context) error { return reg.Unregister() })

	workers := river.NewWorkers()
	river.AddWorker(workers, riveradapter.NewEventWorker(logger.Named("events")))
	river.AddWorker(workers, riveradapter.NewPoolRefillWorker(rt.Pool, logger.Named("pool")))

	var periodic []*river.PeriodicJob
	if cfg.Pool.MinAvailable > 0 {
		periodic = append(periodic, riveradapter.PeriodicRefill(cfg.Pool.RefillInterval, cfg.Pool.MinAvailable))
	}
	rt.River, err = riveradapter.Setup(ctx, db, riveradapter.Config{
		Workers:      workers,
		MaxWorkers:   cfg.Provision.Workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("job queue: %w", err)
	}

	queue := riveradapter.NewQueue(rt.River, logger.Named("queue"))
	validator := fsm.New()
	policy := app.RetryPolicy{
		MaxAttempts:    cfg.Provision.MaxAttempts,
		Backoff:        cfg.Provision.Backoff,
		AttemptTimeout: cfg.Provision.AttemptTimeout,
	}

	rt.Orchestrator = app.NewOrchestrator(app.OrchestratorDeps{
		Repo:      repo,
		Admin:     rt.Admin,
		Validator: validator,
		Queue:     queue,
		Publisher: otel.NewTracingPublisher(riveradapter.NewPublisher(rt.River)),
		Pool:      rt.Pool,
		Policy:    policy,
		Recorder:  metrics,
		Logger:    logger.Named("orchestrator"),
	})
	// The worker needs the orchestrator, which needs the client's queue.
	river.AddWorker(workers, riveradapter.NewProvisionWorker(rt.Orchestrator, policy.AttemptTimeout, logger.Named("worker")))

	rt.Tenants = app.NewTenantService(repo, queue, validator)

	router, api := handler.NewRouter(cfg.OTel.ServiceName, version, logger.Named("http"))
	handler.Register(api, rt.Tenants)
	handler.RegisterPool(api, rt.Pool)
	rt.Router = router

	return rt, nil
}

func (rt *Runtime) tenantAdmin(ctx context.Context) (domain.DatabaseAdmin, error) {
	switch rt.Config.TenantDB.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, rt.Config.TenantDB.DSN, 0)
		if err != nil {
			return nil, err
		}
		rt.onClose(func(context.Context) error { pool.Close(); return nil })
		return postgres.NewAdmin(pool, otel.OpenTenantPostgres), nil
	case config.DriverSQLite:
		return sqlitedb.New(rt.Config.TenantDB.Dir, otel.OpenTenantSQLite)
	default:
		return nil, fmt.Errorf("unknown driver %q", rt.Config.TenantDB.Driver)
	}
}

func (rt *Runtime) onClose(fn func(context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Close releases resources in reverse order of acquisition. It does not
// stop River; callers that started it stop it first.
func (rt *Runtime) Close(ctx context.Context) error {
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i](ctx))
	}
	rt.closers = nil
	return err
}

// StopRiver stops the job client, waiting for running jobs until ctx ends.
func (rt *Runtime) StopRiver(ctx context.Context) error {
	if err := rt.River.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stopping job queue: %w", err)
	}
	return nil
}
