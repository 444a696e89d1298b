package app_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// --- Database admin ---

const migratedTables = 6

type memDB struct {
	tables    int
	nextID    int64
	roles     map[string]int64
	perms     map[string]int64
	grants    map[[2]int64]bool
	companies map[string]int64
	users     map[string]int64
	userRoles map[[2]int64]bool
}

func newMemDB() *memDB {
	return &memDB{
		roles:     make(map[string]int64),
		perms:     make(map[string]int64),
		grants:    make(map[[2]int64]bool),
		companies: make(map[string]int64),
		users:     make(map[string]int64),
		userRoles: make(map[[2]int64]bool),
	}
}

func (m *memDB) id() int64 {
	m.nextID++
	return m.nextID
}

// fakeAdmin keeps databases in memory. fail, when set, is consulted before
// every operation and may return an error to inject a fault.
type fakeAdmin struct {
	mu    sync.Mutex
	dbs   map[string]*memDB
	fail  func(ctx context.Context, op, name string) error
	calls []string
}

func newFakeAdmin(names ...string) *fakeAdmin {
	a := &fakeAdmin{dbs: make(map[string]*memDB)}
	for _, n := range names {
		db := newMemDB()
		db.tables = migratedTables
		a.dbs[n] = db
	}
	return a
}

func (a *fakeAdmin) hook(ctx context.Context, op, name string) error {
	a.mu.Lock()
	a.calls = append(a.calls, op+" "+name)
	fail := a.fail
	a.mu.Unlock()
	if fail != nil {
		return fail(ctx, op, name)
	}
	return nil
}

func (a *fakeAdmin) names() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.dbs))
	for n := range a.dbs {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (a *fakeAdmin) db(name string) *memDB {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dbs[name]
}

func (a *fakeAdmin) called(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

func (a *fakeAdmin) Create(ctx context.Context, name string) error {
	if err := a.hook(ctx, "create", name); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.dbs[name]; ok {
		return domain.ErrDatabaseExists
	}
	a.dbs[name] = newMemDB()
	return nil
}

func (a *fakeAdmin) Rename(ctx context.Context, from, to string) error {
	if err := a.hook(ctx, "rename", from); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	db, ok := a.dbs[from]
	if !ok {
		return domain.ErrDatabaseNotFound
	}
	if _, ok := a.dbs[to]; ok {
		return domain.ErrDatabaseExists
	}
	delete(a.dbs, from)
	a.dbs[to] = db
	return nil
}

func (a *fakeAdmin) Drop(ctx context.Context, name string) error {
	if err := a.hook(ctx, "drop", name); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.dbs, name)
	return nil
}

func (a *fakeAdmin) Exists(ctx context.Context, name string) (bool, error) {
	if err := a.hook(ctx, "exists", name); err != nil {
		return false, err
	}
	return a.db(name) != nil, nil
}

func (a *fakeAdmin) List(ctx context.Context, prefix string) ([]string, error) {
	if err := a.hook(ctx, "list", prefix); err != nil {
		return nil, err
	}
	var out []string
	for _, n := range a.names() {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (a *fakeAdmin) TableCount(ctx context.Context, name string) (int, error) {
	if err := a.hook(ctx, "tables", name); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	db, ok := a.dbs[name]
	if !ok {
		return 0, domain.ErrDatabaseNotFound
	}
	return db.tables, nil
}

func (a *fakeAdmin) HasData(ctx context.Context, name string) (bool, error) {
	if err := a.hook(ctx, "hasdata", name); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	db, ok := a.dbs[name]
	if !ok {
		return false, domain.ErrDatabaseNotFound
	}
	return len(db.roles)+len(db.companies)+len(db.users) > 0, nil
}

func (a *fakeAdmin) Migrate(ctx context.Context, name string) error {
	if err := a.hook(ctx, "migrate", name); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	db, ok := a.dbs[name]
	if !ok {
		return domain.ErrDatabaseNotFound
	}
	db.tables = migratedTables
	return nil
}

func (a *fakeAdmin) Connect(ctx context.Context, name string) (domain.TenantDB, error) {
	if err := a.hook(ctx, "connect", name); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	db, ok := a.dbs[name]
	if !ok {
		return nil, domain.ErrDatabaseNotFound
	}
	if db.tables == 0 {
		return nil, fmt.Errorf("database %q is not migrated", name)
	}
	return &fakeTenantDB{admin: a, name: name}, nil
}

type fakeTenantDB struct {
	admin  *fakeAdmin
	name   string
	closed bool
}

func (d *fakeTenantDB) Database() string { return d.name }

func (d *fakeTenantDB) with(ctx context.Context, op string, fn func(db *memDB)) error {
	if d.closed {
		return errors.New("use of closed tenant db")
	}
	if err := d.admin.hook(ctx, op, d.name); err != nil {
		return err
	}
	d.admin.mu.Lock()
	defer d.admin.mu.Unlock()
	fn(d.admin.dbs[d.name])
	return nil
}

func (d *fakeTenantDB) UpsertRole(ctx context.Context, name, _ string) (int64, error) {
	var id int64
	err := d.with(ctx, "role", func(db *memDB) {
		if existing, ok := db.roles[name]; ok {
			id = existing
			return
		}
		id = db.id()
		db.roles[name] = id
	})
	return id, err
}

func (d *fakeTenantDB) UpsertPermission(ctx context.Context, name string) (int64, error) {
	var id int64
	err := d.with(ctx, "permission", func(db *memDB) {
		if existing, ok := db.perms[name]; ok {
			id = existing
			return
		}
		id = db.id()
		db.perms[name] = id
	})
	return id, err
}

func (d *fakeTenantDB) GrantPermission(ctx context.Context, roleID, permID int64) error {
	return d.with(ctx, "grant", func(db *memDB) {
		db.grants[[2]int64{roleID, permID}] = true
	})
}

func (d *fakeTenantDB) EnsureCompany(ctx context.Context, c domain.CompanyInput) (int64, error) {
	var id int64
	err := d.with(ctx, "company", func(db *memDB) {
		if existing, ok := db.companies[c.TaxID]; ok {
			id = existing
			return
		}
		id = db.id()
		db.companies[c.TaxID] = id
	})
	return id, err
}

func (d *fakeTenantDB) EnsureUser(ctx context.Context, _ int64, admin domain.AdminInput) (int64, bool, error) {
	var id int64
	var created bool
	err := d.with(ctx, "user", func(db *memDB) {
		if existing, ok := db.users[admin.Email]; ok {
			id = existing
			return
		}
		id = db.id()
		db.users[admin.Email] = id
		created = true
	})
	return id, created, err
}

func (d *fakeTenantDB) AssignRole(ctx context.Context, userID, roleID int64) error {
	return d.with(ctx, "assign", func(db *memDB) {
		db.userRoles[[2]int64{userID, roleID}] = true
	})
}

func (d *fakeTenantDB) Close() error {
	d.closed = true
	return nil
}

// racingAdmin hides existing databases from Exists so CreateDatabase only
// learns about them from Create.
type racingAdmin struct {
	*fakeAdmin
}

func (racingAdmin) Exists(context.Context, string) (bool, error) { return false, nil }

// failNTimes returns a hook failing op the first n times it runs.
func failNTimes(op string, n int) func(context.Context, string, string) error {
	var mu sync.Mutex
	seen := 0
	return func(_ context.Context, got, _ string) error {
		if got != op {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen <= n {
			return fmt.Errorf("injected %s failure %d", op, seen)
		}
		return nil
	}
}

// --- Central store ---

type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	tenants map[int64]domain.Tenant
	failOn  map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tenants: make(map[int64]domain.Tenant), failOn: make(map[string]error)}
}

func (r *fakeRepo) put(t domain.Tenant) domain.Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	}
	r.tenants[t.ID] = t
	return t
}

func (r *fakeRepo) get(id int64) domain.Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tenants[id]
}

func (r *fakeRepo) Create(_ context.Context, t domain.Tenant) (domain.Tenant, error) {
	if err := r.failOn["create"]; err != nil {
		return domain.Tenant{}, err
	}
	return r.put(t), nil
}

func (r *fakeRepo) GetByID(_ context.Context, id int64) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, nil
}

func (r *fakeRepo) List(_ context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Tenant
	for _, t := range r.tenants {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id int64, status domain.Status) error {
	if err := r.failOn["status:"+string(status)]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return domain.ErrTenantNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	r.tenants[id] = t
	return nil
}

func (r *fakeRepo) AssignDatabase(_ context.Context, id int64, database string) error {
	if err := r.failOn["assign"]; err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return domain.ErrTenantNotFound
	}
	t.DatabaseName = database
	r.tenants[id] = t
	return nil
}

func (r *fakeRepo) ReferencedDatabases(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.tenants {
		if t.DatabaseName != "" {
			out = append(out, t.DatabaseName)
		}
	}
	return out, nil
}

type memLedger struct {
	mu     sync.Mutex
	claims map[string]int64
}

func newMemLedger() *memLedger {
	return &memLedger{claims: make(map[string]int64)}
}

func (l *memLedger) Claim(_ context.Context, name string, tenantID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.claims[name]; taken {
		return false, nil
	}
	for _, owner := range l.claims {
		if owner == tenantID {
			return false, nil
		}
	}
	l.claims[name] = tenantID
	return true, nil
}

func (l *memLedger) ClaimOf(_ context.Context, tenantID int64) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, owner := range l.claims {
		if owner == tenantID {
			return name, true, nil
		}
	}
	return "", false, nil
}

func (l *memLedger) HolderOf(_ context.Context, name string) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.claims[name]
	return owner, ok, nil
}

func (l *memLedger) Claimed(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.claims))
	for name := range l.claims {
		out = append(out, name)
	}
	return out, nil
}

func (l *memLedger) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, name)
	return nil
}

func (l *memLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claims)
}

// --- Queue, publisher, validator ---

type recordingQueue struct {
	mu    sync.Mutex
	tasks []domain.ProvisioningTask
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task domain.ProvisioningTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) pop() (domain.ProvisioningTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return domain.ProvisioningTask{}, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TenantProvisioned
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.TenantProvisioned) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

// tableValidator applies domain.Transitions directly.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	for _, tr := range domain.Transitions {
		if tr.Event == event && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}
