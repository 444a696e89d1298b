package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// Outcome is what one Handle call did to the tenant.
type Outcome int

const (
	OutcomeActivated Outcome = iota + 1
	OutcomeRetryScheduled
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeActivated:
		return "activated"
	case OutcomeRetryScheduled:
		return "retry_scheduled"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result describes a handled provisioning task.
type Result struct {
	Outcome  Outcome
	Attempt  int
	Database string
	// Cause is the error that aborted the attempt, if any.
	Cause error
	// NextAttempt is set when a retry was enqueued.
	NextAttempt *domain.ProvisioningTask
}

// Recorder observes attempt outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordAttempt(ctx context.Context, outcome Outcome, attempt int)
}

// OrchestratorDeps groups the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Repo      domain.TenantRepository
	Admin     domain.DatabaseAdmin
	Validator domain.TransitionValidator
	Queue     domain.TaskQueue
	Publisher domain.EventPublisher
	Lifecycle *Lifecycle
	Pool      *PoolManager // nil disables pooled allocation
	Seeder    *RoleSeeder
	Policy    RetryPolicy
	Recorder  Recorder
	Logger    *zap.Logger
	Now       func() time.Time
}

// Orchestrator drives one tenant from pending through processing to
// active or failed. Each Handle call runs a single attempt; retries are
// new tasks enqueued with a delay.
type Orchestrator struct {
	repo      domain.TenantRepository
	admin     domain.DatabaseAdmin
	validator domain.TransitionValidator
	queue     domain.TaskQueue
	publisher domain.EventPublisher
	lifecycle *Lifecycle
	pool      *PoolManager
	seeder    *RoleSeeder
	policy    RetryPolicy
	recorder  Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator. Unset optional fields get defaults.
func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		repo:      d.Repo,
		admin:     d.Admin,
		validator: d.Validator,
		queue:     d.Queue,
		publisher: d.Publisher,
		lifecycle: d.Lifecycle,
		pool:      d.Pool,
		seeder:    d.Seeder,
		policy:    d.Policy,
		recorder:  d.Recorder,
		logger:    d.Logger,
		now:       d.Now,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.lifecycle == nil {
		o.lifecycle = NewLifecycle(d.Admin, o.logger)
	}
	if o.seeder == nil {
		o.seeder = NewRoleSeeder(nil)
	}
	if o.policy.MaxAttempts == 0 {
		o.policy = DefaultRetryPolicy()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Policy returns the retry policy in effect.
func (o *Orchestrator) Policy() RetryPolicy { return o.policy }

// Handle runs one provisioning attempt for the task's tenant. The returned
// error is non-nil only when the task itself could not be processed and
// should be delivered again; attempt failures are reported in Result.
func (o *Orchestrator) Handle(ctx context.Context, task domain.ProvisioningTask) (Result, error) {
	log := o.logger.With(zap.Int64("tenant_id", task.TenantID), zap.Int("attempt", task.Attempt))
	res := Result{Attempt: task.Attempt}

	tenant, err := o.repo.GetByID(ctx, task.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			log.Warn("dropping task for unknown tenant")
			res.Outcome = OutcomeSkipped
			res.Cause = err
			return res, nil
		}
		return res, fmt.Errorf("loading tenant %d: %w", task.TenantID, err)
	}

	switch tenant.Status {
	case domain.StatusActive, domain.StatusFailed:
		log.Info("tenant already terminal, skipping", zap.String("status", string(tenant.Status)))
		res.Outcome = OutcomeSkipped
		res.Database = tenant.DatabaseName
		return res, nil
	case domain.StatusPending:
		if err := o.transition(ctx, &tenant, domain.EventStart); err != nil {
			return res, err
		}
	}

	log.Info("provisioning attempt started")
	attemptCtx, cancel := context.WithTimeout(ctx, o.policy.AttemptTimeout)
	prov, err := o.attempt(attemptCtx, tenant, task.Payload)
	cancel()

	// Bookkeeping must outlive an expired attempt deadline.
	bookCtx := context.WithoutCancel(ctx)
	if err == nil {
		err = o.activate(bookCtx, &tenant, prov)
	}
	res.Database = prov.database
	if err != nil {
		return o.fail(bookCtx, log, tenant, task, res, err)
	}

	res.Outcome = OutcomeActivated
	o.record(bookCtx, res)
	log.Info("tenant active", zap.String("database", prov.database))
	return res, nil
}

type provisioned struct {
	database    string
	companyID   int64
	adminUserID int64
}

// attempt runs every step under processing. Each step is safe to repeat.
func (o *Orchestrator) attempt(ctx context.Context, tenant domain.Tenant, payload domain.CreationPayload) (provisioned, error) {
	var out provisioned

	name, err := o.resolveDatabase(ctx, tenant)
	if err != nil {
		return out, fmt.Errorf("allocating database: %w", err)
	}
	out.database = name

	if err := o.lifecycle.RunMigrations(ctx, name); err != nil {
		return out, err
	}

	db, err := o.admin.Connect(ctx, name)
	if err != nil {
		return out, fmt.Errorf("connecting to %q: %w", name, err)
	}
	companyID, adminID, err := o.populate(ctx, db, payload)
	if cerr := db.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("closing %q: %w", name, cerr))
	}
	if err != nil {
		return out, err
	}

	out.companyID = companyID
	out.adminUserID = adminID
	return out, nil
}

func (o *Orchestrator) populate(ctx context.Context, db domain.TenantDB, payload domain.CreationPayload) (companyID, adminID int64, err error) {
	roles, err := o.seeder.Seed(ctx, db)
	if err != nil {
		return 0, 0, err
	}

	companyID, err = db.EnsureCompany(ctx, payload.Company)
	if err != nil {
		return 0, 0, fmt.Errorf("creating company: %w", err)
	}
	if payload.Admin == nil {
		return companyID, 0, nil
	}

	adminID, created, err := db.EnsureUser(ctx, companyID, *payload.Admin)
	if err != nil {
		return 0, 0, fmt.Errorf("creating admin user: %w", err)
	}
	if !created {
		o.logger.Info("admin user already present", zap.String("database", db.Database()), zap.Int64("user_id", adminID))
	}
	adminRole, ok := roles[domain.RoleAdmin]
	if !ok {
		return 0, 0, fmt.Errorf("role seeder did not produce the %q role", domain.RoleAdmin)
	}
	if err := db.AssignRole(ctx, adminID, adminRole); err != nil {
		return 0, 0, fmt.Errorf("assigning admin role: %w", err)
	}
	return companyID, adminID, nil
}

// resolveDatabase returns the tenant's database, claiming a pool entry or
// creating a fresh one when none is recorded yet.
func (o *Orchestrator) resolveDatabase(ctx context.Context, tenant domain.Tenant) (string, error) {
	if tenant.DatabaseName != "" {
		exists, err := o.admin.Exists(ctx, tenant.DatabaseName)
		if err != nil {
			return "", fmt.Errorf("checking %q: %w", tenant.DatabaseName, err)
		}
		if exists {
			return tenant.DatabaseName, nil
		}
	}

	target := domain.TenantDatabaseName(tenant.ID)
	pooled := false
	if o.pool != nil {
		name, outcome, err := o.pool.ClaimFor(ctx, tenant.ID)
		if err != nil {
			return "", err
		}
		switch outcome {
		case Claimed:
			target, pooled = name, true
		case TargetPresent:
			o.logger.Info("tenant database already present, reusing it",
				zap.Int64("tenant_id", tenant.ID),
				zap.String("database", target),
			)
		default:
			o.logger.Warn("pool exhausted, creating database directly",
				zap.Int64("tenant_id", tenant.ID),
				zap.String("database", target),
			)
		}
	}

	if !pooled {
		if _, err := o.lifecycle.CreateDatabase(ctx, target); err != nil {
			return "", err
		}
	}

	if err := o.repo.AssignDatabase(ctx, tenant.ID, target); err != nil {
		return "", fmt.Errorf("recording database %q: %w", target, err)
	}
	if pooled {
		if err := o.pool.Settle(ctx, tenant.ID); err != nil {
			o.logger.Warn("could not settle pool claim", zap.Int64("tenant_id", tenant.ID), zap.Error(err))
		}
	}
	return target, nil
}

func (o *Orchestrator) activate(ctx context.Context, tenant *domain.Tenant, prov provisioned) error {
	if err := o.transition(ctx, tenant, domain.EventActivate); err != nil {
		return err
	}

	event := domain.NewTenantProvisioned(tenant.ID, prov.companyID, prov.adminUserID, prov.database, o.now())
	if err := o.publisher.Publish(ctx, event); err != nil {
		// The tenant is already active; the event is lost rather than
		// rolling provisioning back.
		o.logger.Error("publishing tenant provisioned event",
			zap.Int64("tenant_id", tenant.ID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, tenant domain.Tenant, task domain.ProvisioningTask, res Result, cause error) (Result, error) {
	res.Cause = cause
	permanent := domain.IsPermanent(cause)

	if !permanent && !o.policy.Exhausted(task.Attempt) {
		delay := o.policy.Delay(task.Attempt)
		next := task.Next(o.now(), delay)
		if err := o.queue.Enqueue(ctx, next); err != nil {
			return res, fmt.Errorf("scheduling attempt %d for tenant %d: %w", next.Attempt, task.TenantID, err)
		}
		res.Outcome = OutcomeRetryScheduled
		res.NextAttempt = &next
		o.record(ctx, res)
		log.Warn("provisioning attempt failed, retry scheduled",
			zap.Error(cause),
			zap.Duration("backoff", delay),
			zap.Int("next_attempt", next.Attempt),
		)
		return res, nil
	}

	if err := o.transition(ctx, &tenant, domain.EventFail); err != nil {
		return res, multierr.Append(err, cause)
	}
	if o.pool != nil {
		if err := o.pool.Settle(ctx, tenant.ID); err != nil {
			log.Warn("could not release pool claim of failed tenant", zap.Error(err))
		}
	}

	res.Outcome = OutcomeFailed
	o.record(ctx, res)
	log.Error("provisioning failed permanently",
		zap.Error(cause),
		zap.Bool("permanent_error", permanent),
		zap.Int("max_attempts", o.policy.MaxAttempts),
	)
	return res, nil
}

func (o *Orchestrator) transition(ctx context.Context, tenant *domain.Tenant, event domain.Event) error {
	next, err := o.validator.Apply(ctx, tenant.Status, event)
	if err != nil {
		return err
	}
	if err := o.repo.UpdateStatus(ctx, tenant.ID, next); err != nil {
		return fmt.Errorf("setting tenant %d to %s: %w", tenant.ID, next, err)
	}
	tenant.Status = next
	return nil
}

func (o *Orchestrator) record(ctx context.Context, res Result) {
	if o.recorder != nil {
		o.recorder.RecordAttempt(ctx, res.Outcome, res.Attempt)
	}
}
