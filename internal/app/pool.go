package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// ErrPoolFull is recorded for a slot that could not be provisioned because
// every slot up to the size cap is taken.
var ErrPoolFull = errors.New("pool is at capacity")

// SlotResult is the outcome of provisioning one pool slot.
type SlotResult struct {
	Slot int
	Name string
	Err  error
}

// ProvisionReport lists per-slot outcomes in the order they were attempted.
type ProvisionReport []SlotResult

// Created returns the names of the entries that made it into the pool.
func (r ProvisionReport) Created() []string {
	var names []string
	for _, s := range r {
		if s.Err == nil {
			names = append(names, s.Name)
		}
	}
	return names
}

// Err combines every per-slot failure, or returns nil.
func (r ProvisionReport) Err() error {
	var err error
	for _, s := range r {
		if s.Err != nil {
			err = multierr.Append(err, fmt.Errorf("slot %d: %w", s.Slot, s.Err))
		}
	}
	return err
}

// PoolStatus is a point-in-time view of the pool.
type PoolStatus struct {
	Available []string
	Claimed   []string
	MaxSize   int
}

// PoolManager keeps a set of migrated, empty databases ready for new
// tenants. An entry is free when it is pool-prefixed, no tenant row
// references it and no tenant holds a ledger claim on it.
type PoolManager struct {
	admin     domain.DatabaseAdmin
	repo      domain.TenantRepository
	ledger    domain.PoolLedger
	lifecycle *Lifecycle
	maxSize   int
	logger    *zap.Logger

	// mu serializes slot number allocation within this process. Staging
	// names reserve a slot while it is being built.
	mu sync.Mutex
}

// NewPoolManager creates a pool manager. maxSize caps slot numbers.
func NewPoolManager(admin domain.DatabaseAdmin, repo domain.TenantRepository, ledger domain.PoolLedger, maxSize int, logger *zap.Logger) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolManager{
		admin:     admin,
		repo:      repo,
		ledger:    ledger,
		lifecycle: NewLifecycle(admin, logger),
		maxSize:   maxSize,
		logger:    logger,
	}
}

// MaxSize returns the slot cap.
func (p *PoolManager) MaxSize() int { return p.maxSize }

// available returns free entries ordered by slot number.
func (p *PoolManager) available(ctx context.Context) ([]string, error) {
	names, err := p.admin.List(ctx, domain.PoolPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing pool databases: %w", err)
	}
	referenced, err := p.repo.ReferencedDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading referenced databases: %w", err)
	}
	claimed, err := p.ledger.Claimed(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading pool claims: %w", err)
	}

	taken := make(map[string]struct{}, len(referenced)+len(claimed))
	for _, n := range referenced {
		taken[n] = struct{}{}
	}
	for _, n := range claimed {
		taken[n] = struct{}{}
	}

	free := make([]string, 0, len(names))
	for _, n := range names {
		if !domain.IsPoolDatabase(n) {
			continue
		}
		if _, ok := taken[n]; ok {
			continue
		}
		free = append(free, n)
	}
	slices.SortFunc(free, func(a, b string) int {
		sa, _ := domain.PoolSlot(a)
		sb, _ := domain.PoolSlot(b)
		return sa - sb
	})
	return free, nil
}

// Acquire claims the first free entry for tenantID and returns its name.
// A claim the tenant already holds is returned again so an interrupted
// attempt can resume. The boolean is false when the pool is empty.
func (p *PoolManager) Acquire(ctx context.Context, tenantID int64) (string, bool, error) {
	held, ok, err := p.ledger.ClaimOf(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("looking up claim for tenant %d: %w", tenantID, err)
	}
	if ok {
		return held, true, nil
	}

	free, err := p.available(ctx)
	if err != nil {
		return "", false, err
	}
	for _, name := range free {
		won, err := p.ledger.Claim(ctx, name, tenantID)
		if err != nil {
			return "", false, fmt.Errorf("claiming %q: %w", name, err)
		}
		if won {
			return name, true, nil
		}
	}
	return "", false, nil
}

// ClaimOutcome says how ClaimFor ended.
type ClaimOutcome int

const (
	// PoolExhausted means no free entry was left to claim.
	PoolExhausted ClaimOutcome = iota
	// Claimed means an entry now carries the tenant's database name.
	Claimed
	// TargetPresent means the tenant's database already exists, so the
	// claimed entry was handed back.
	TargetPresent
)

func (o ClaimOutcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case TargetPresent:
		return "target_present"
	default:
		return "pool_exhausted"
	}
}

// ClaimFor acquires an entry and renames it to the tenant's database name.
// Anything but Claimed means nothing was handed over and the caller creates
// the database itself.
func (p *PoolManager) ClaimFor(ctx context.Context, tenantID int64) (string, ClaimOutcome, error) {
	name, ok, err := p.Acquire(ctx, tenantID)
	if err != nil || !ok {
		return "", PoolExhausted, err
	}

	target := domain.TenantDatabaseName(tenantID)
	err = p.admin.Rename(ctx, name, target)
	switch {
	case err == nil:
		p.logger.Info("pool entry claimed",
			zap.String("pool_entry", name),
			zap.String("database", target),
			zap.Int64("tenant_id", tenantID),
		)
		return target, Claimed, nil

	case errors.Is(err, domain.ErrDatabaseNotFound):
		// A previous attempt may have renamed it before crashing.
		exists, xerr := p.admin.Exists(ctx, target)
		if xerr != nil {
			return "", PoolExhausted, fmt.Errorf("checking %q: %w", target, xerr)
		}
		if exists {
			return target, Claimed, nil
		}
		if rerr := p.ledger.Release(ctx, name); rerr != nil {
			return "", PoolExhausted, fmt.Errorf("releasing vanished claim %q: %w", name, rerr)
		}
		return "", PoolExhausted, fmt.Errorf("pool entry %q disappeared before rename: %w", name, err)

	case errors.Is(err, domain.ErrDatabaseExists):
		p.logger.Warn("tenant database already present, leaving pool entry unclaimed",
			zap.String("pool_entry", name),
			zap.String("database", target),
		)
		if rerr := p.ledger.Release(ctx, name); rerr != nil {
			return "", TargetPresent, fmt.Errorf("releasing claim %q: %w", name, rerr)
		}
		return "", TargetPresent, nil

	default:
		return "", PoolExhausted, fmt.Errorf("renaming %q to %q: %w", name, target, err)
	}
}

// Settle drops the tenant's ledger claim. It is called once the tenant row
// records its database, or when the tenant is abandoned.
func (p *PoolManager) Settle(ctx context.Context, tenantID int64) error {
	name, ok, err := p.ledger.ClaimOf(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("looking up claim for tenant %d: %w", tenantID, err)
	}
	if !ok {
		return nil
	}
	if err := p.ledger.Release(ctx, name); err != nil {
		return fmt.Errorf("releasing claim %q: %w", name, err)
	}
	return nil
}

// Release returns a tenant database to the pool under the next free slot.
// A pool-prefixed name only loses its ledger claim, and only when the holder
// is gone or finished. Databases that still hold business rows, or that do
// not fit under the size cap, are dropped. Names a tenant row references,
// and tenant_<id> while that tenant is in flight, are refused with
// domain.ErrDatabaseInUse.
func (p *PoolManager) Release(ctx context.Context, name string) error {
	referenced, err := p.repo.ReferencedDatabases(ctx)
	if err != nil {
		return fmt.Errorf("loading referenced databases: %w", err)
	}
	if slices.Contains(referenced, name) {
		return fmt.Errorf("releasing %q: %w", name, domain.ErrDatabaseInUse)
	}
	// The owner renames into tenant_<id> before its row records the name.
	if id, ok := domain.TenantDatabaseID(name); ok {
		owner, inFlight, err := p.inFlight(ctx, id)
		if err != nil {
			return fmt.Errorf("loading owner of %q: %w", name, err)
		}
		if inFlight {
			return fmt.Errorf("releasing %q owned by tenant %d (%s): %w", name, id, owner.Status, domain.ErrDatabaseInUse)
		}
	}

	if domain.IsPoolDatabase(name) {
		return p.releaseClaim(ctx, name)
	}

	hasData, err := p.admin.HasData(ctx, name)
	if err != nil {
		return fmt.Errorf("inspecting %q: %w", name, err)
	}
	if hasData {
		p.logger.Warn("released database holds data, dropping", zap.String("database", name))
		return p.drop(ctx, name)
	}
	if err := p.lifecycle.RunMigrations(ctx, name); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.nextSlot(ctx)
	if err != nil {
		return err
	}
	if slot == 0 {
		p.logger.Warn("pool at capacity, dropping released database",
			zap.String("database", name),
			zap.Int("max_size", p.maxSize),
		)
		return p.drop(ctx, name)
	}

	entry := domain.PoolDatabaseName(slot)
	if err := p.admin.Rename(ctx, name, entry); err != nil {
		return fmt.Errorf("returning %q as %q: %w", name, entry, err)
	}
	p.logger.Info("database returned to pool", zap.String("database", name), zap.String("pool_entry", entry))
	return nil
}

// releaseClaim drops the ledger claim on a pool entry unless an in-flight
// tenant still holds it.
func (p *PoolManager) releaseClaim(ctx context.Context, name string) error {
	holder, ok, err := p.ledger.HolderOf(ctx, name)
	if err != nil {
		return fmt.Errorf("looking up holder of %q: %w", name, err)
	}
	if !ok {
		return nil
	}

	tenant, inFlight, err := p.inFlight(ctx, holder)
	if err != nil {
		return fmt.Errorf("loading holder of %q: %w", name, err)
	}
	if inFlight {
		return fmt.Errorf("releasing %q held by tenant %d (%s): %w", name, holder, tenant.Status, domain.ErrDatabaseInUse)
	}
	if tenant.ID == 0 {
		p.logger.Warn("releasing orphaned pool claim", zap.String("pool_entry", name), zap.Int64("tenant_id", holder))
	}
	return p.ledger.Release(ctx, name)
}

// inFlight loads tenant id and reports whether it is still being provisioned.
// A missing tenant is returned as the zero Tenant and not in flight.
func (p *PoolManager) inFlight(ctx context.Context, id int64) (domain.Tenant, bool, error) {
	tenant, err := p.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrTenantNotFound) {
		return domain.Tenant{}, false, nil
	}
	if err != nil {
		return domain.Tenant{}, false, err
	}
	return tenant, !tenant.Status.Terminal(), nil
}

func (p *PoolManager) drop(ctx context.Context, name string) error {
	if err := p.admin.Drop(ctx, name); err != nil {
		return fmt.Errorf("dropping %q: %w", name, err)
	}
	return nil
}

// nextSlot returns max used slot + 1, or the lowest free slot when that
// would exceed the cap, or 0 when every slot is taken. Staging databases
// count as used. Callers hold p.mu.
func (p *PoolManager) nextSlot(ctx context.Context) (int, error) {
	used := make(map[int]struct{})
	highest := 0
	for _, prefix := range []string{domain.PoolPrefix, domain.StagingPrefix} {
		names, err := p.admin.List(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("listing %s databases: %w", prefix, err)
		}
		for _, n := range names {
			slot, ok := slotOf(n)
			if !ok {
				continue
			}
			used[slot] = struct{}{}
			highest = max(highest, slot)
		}
	}

	if highest+1 <= p.maxSize {
		return highest + 1, nil
	}
	for slot := 1; slot <= p.maxSize; slot++ {
		if _, ok := used[slot]; !ok {
			return slot, nil
		}
	}
	return 0, nil
}

func slotOf(name string) (int, bool) {
	if slot, ok := domain.PoolSlot(name); ok {
		return slot, true
	}
	return domain.StagingSlot(name)
}

// Provision builds count new entries. Each slot is created under a staging
// name, migrated, then renamed into the pool, so no entry is visible while
// half built. A failing slot does not stop the others.
func (p *PoolManager) Provision(ctx context.Context, count int) ProvisionReport {
	report := make(ProvisionReport, 0, count)
	for range count {
		if ctx.Err() != nil {
			break
		}
		res := p.provisionSlot(ctx)
		if res.Err != nil {
			p.logger.Error("pool slot provisioning failed", zap.Int("slot", res.Slot), zap.Error(res.Err))
		}
		report = append(report, res)
		if errors.Is(res.Err, ErrPoolFull) {
			break
		}
	}
	return report
}

func (p *PoolManager) provisionSlot(ctx context.Context) SlotResult {
	p.mu.Lock()
	slot, err := p.nextSlot(ctx)
	if err != nil {
		p.mu.Unlock()
		return SlotResult{Err: err}
	}
	if slot == 0 {
		p.mu.Unlock()
		return SlotResult{Err: ErrPoolFull}
	}
	staging := domain.StagingDatabaseName(slot)
	err = p.admin.Create(ctx, staging)
	p.mu.Unlock()

	res := SlotResult{Slot: slot, Name: domain.PoolDatabaseName(slot)}
	if err != nil {
		res.Err = fmt.Errorf("creating %q: %w", staging, err)
		return res
	}

	if err := p.lifecycle.RunMigrations(ctx, staging); err != nil {
		res.Err = multierr.Append(err, p.discard(staging))
		return res
	}
	if err := p.admin.Rename(ctx, staging, res.Name); err != nil {
		res.Err = multierr.Append(fmt.Errorf("publishing %q: %w", res.Name, err), p.discard(staging))
		return res
	}
	return res
}

// discard drops a staging database even when the provisioning context is done.
func (p *PoolManager) discard(name string) error {
	ctx := context.Background()
	if err := p.admin.Drop(ctx, name); err != nil {
		return fmt.Errorf("discarding %q: %w", name, err)
	}
	return nil
}

// CountAvailable returns the number of free entries.
func (p *PoolManager) CountAvailable(ctx context.Context) (int, error) {
	free, err := p.available(ctx)
	if err != nil {
		return 0, err
	}
	return len(free), nil
}

// HasAvailable reports whether at least one entry is free.
func (p *PoolManager) HasAvailable(ctx context.Context) (bool, error) {
	n, err := p.CountAvailable(ctx)
	return n > 0, err
}

// Refill provisions entries until at least minAvailable are free.
func (p *PoolManager) Refill(ctx context.Context, minAvailable int) (ProvisionReport, error) {
	n, err := p.CountAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if n >= minAvailable {
		return nil, nil
	}
	return p.Provision(ctx, minAvailable-n), nil
}

// Status reports free and claimed entries.
func (p *PoolManager) Status(ctx context.Context) (PoolStatus, error) {
	free, err := p.available(ctx)
	if err != nil {
		return PoolStatus{}, err
	}
	claimed, err := p.ledger.Claimed(ctx)
	if err != nil {
		return PoolStatus{}, fmt.Errorf("loading pool claims: %w", err)
	}
	return PoolStatus{Available: free, Claimed: claimed, MaxSize: p.maxSize}, nil
}
