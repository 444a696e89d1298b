package river_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap/zaptest"

	riveradapter "github.com/neomorfeo/tenantprov/internal/adapter/river"
	"github.com/neomorfeo/tenantprov/internal/app"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

type recordingHandler struct {
	mu    sync.Mutex
	tasks []domain.ProvisioningTask
	err   error
}

func (h *recordingHandler) Handle(_ context.Context, task domain.ProvisioningTask) (app.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, task)
	return app.Result{Outcome: app.OutcomeActivated, Attempt: task.Attempt}, h.err
}

func (h *recordingHandler) seen() []domain.ProvisioningTask {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.ProvisioningTask(nil), h.tasks...)
}

func TestQueue_DispatchesToWorker(t *testing.T) {
	handler := &recordingHandler{}
	workers := goriver.NewWorkers()
	client := setupClient(t, workers)
	queue := riveradapter.NewQueue(client, zaptest.NewLogger(t))

	// Registered after the client exists, the way the service wires it.
	goriver.AddWorker(workers, riveradapter.NewProvisionWorker(handler, time.Minute, zaptest.NewLogger(t)))
	events := startClient(t, client)

	payload := domain.CreationPayload{
		Company: domain.CompanyInput{Name: "Acme", TaxID: "123"},
		Admin:   &domain.AdminInput{Name: "Ana", Email: "ana@acme.test", PasswordHash: "h"},
	}
	task := domain.NewProvisioningTask(9, payload, time.Now())
	if err := queue.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, events, riveradapter.KindProvision)

	seen := handler.seen()
	if len(seen) != 1 {
		t.Fatalf("handler saw %d tasks, want 1", len(seen))
	}
	got := seen[0]
	if got.TenantID != 9 || got.Attempt != 1 {
		t.Errorf("task = tenant %d attempt %d, want tenant 9 attempt 1", got.TenantID, got.Attempt)
	}
	if got.Payload.Admin == nil || got.Payload.Admin.Email != "ana@acme.test" {
		t.Errorf("payload not carried: %+v", got.Payload)
	}
}

func TestQueue_DelayedTaskIsScheduled(t *testing.T) {
	workers := goriver.NewWorkers()
	goriver.AddWorker(workers, riveradapter.NewProvisionWorker(&recordingHandler{}, time.Minute, nil))
	client := setupClient(t, workers)
	queue := riveradapter.NewQueue(client, nil)
	ctx := context.Background()

	now := time.Now()
	retry := domain.NewProvisioningTask(3, domain.CreationPayload{}, now).Next(now, 5*time.Minute)
	if err := queue.Enqueue(ctx, retry); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res, err := client.JobList(ctx, goriver.NewJobListParams().Kinds(riveradapter.KindProvision))
	if err != nil {
		t.Fatalf("JobList failed: %v", err)
	}
	if len(res.Jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(res.Jobs))
	}
	job := res.Jobs[0]
	if job.State != rivertype.JobStateScheduled {
		t.Errorf("State = %q, want %q", job.State, rivertype.JobStateScheduled)
	}
	if job.ScheduledAt.Before(now.Add(4 * time.Minute)) {
		t.Errorf("ScheduledAt = %v, want about five minutes from now", job.ScheduledAt)
	}
}

func TestQueue_SameAttemptQueuedOnce(t *testing.T) {
	workers := goriver.NewWorkers()
	goriver.AddWorker(workers, riveradapter.NewProvisionWorker(&recordingHandler{}, time.Minute, nil))
	client := setupClient(t, workers)
	queue := riveradapter.NewQueue(client, nil)
	ctx := context.Background()

	task := domain.NewProvisioningTask(5, domain.CreationPayload{}, time.Now().Add(time.Hour))
	for range 2 {
		if err := queue.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if err := queue.Enqueue(ctx, task.Next(time.Now(), time.Hour)); err != nil {
		t.Fatalf("Enqueue next attempt failed: %v", err)
	}

	res, err := client.JobList(ctx, goriver.NewJobListParams().Kinds(riveradapter.KindProvision))
	if err != nil {
		t.Fatalf("JobList failed: %v", err)
	}
	if len(res.Jobs) != 2 {
		t.Errorf("got %d jobs, want 2 (one per attempt)", len(res.Jobs))
	}
}

func TestProvisionWorker_HandlerErrorFailsJob(t *testing.T) {
	handler := &recordingHandler{err: errors.New("queue unavailable")}
	worker := riveradapter.NewProvisionWorker(handler, time.Minute, zaptest.NewLogger(t))

	job := &goriver.Job[riveradapter.ProvisionArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Attempt: 1},
		Args:   riveradapter.ProvisionArgs{TenantID: 2, Attempt: 3},
	}
	if err := worker.Work(context.Background(), job); err == nil {
		t.Error("expected the handler error to fail the job")
	}
	if got := worker.Timeout(job); got != 2*time.Minute {
		t.Errorf("Timeout = %v, want the attempt timeout plus a minute", got)
	}
}
