package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/neomorfeo/tenantprov/internal/adapter/fsm"
	adapter "github.com/neomorfeo/tenantprov/internal/adapter/http"
	"github.com/neomorfeo/tenantprov/internal/adapter/sqlite"
	"github.com/neomorfeo/tenantprov/internal/adapter/sqlitedb"
	"github.com/neomorfeo/tenantprov/internal/app"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

// memQueue records enqueued tasks instead of dispatching them.
type memQueue struct {
	mu    sync.Mutex
	tasks []domain.ProvisioningTask
	err   error
}

func (q *memQueue) Enqueue(_ context.Context, task domain.ProvisioningTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type testEnv struct {
	srv   *httptest.Server
	store *sqlite.Store
	admin *sqlitedb.Admin
	pool  *app.PoolManager
	queue *memQueue
}

// newTestEnv serves the operator API over an in-memory central store and
// a temp directory of tenant databases.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	admin, err := sqlitedb.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("creating admin: %v", err)
	}

	queue := &memQueue{}
	svc := app.NewTenantService(store, queue, fsm.New())
	pool := app.NewPoolManager(admin, store, store, 3, logger)

	router, api := adapter.NewRouter("tenantprov", "test", logger)
	adapter.Register(api, svc)
	adapter.RegisterPool(api, pool)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: store, admin: admin, pool: pool, queue: queue}
}

// doRequest performs an HTTP request with context (avoids noctx linter).
func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, body)
	}
}

var errQueueDown = errors.New("queue down")
