package river_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap/zaptest"

	riveradapter "github.com/neomorfeo/tenantprov/internal/adapter/river"
	"github.com/neomorfeo/tenantprov/internal/app"
)

type stubRefiller struct {
	asked  []int
	report app.ProvisionReport
	err    error
}

func (s *stubRefiller) Refill(_ context.Context, minAvailable int) (app.ProvisionReport, error) {
	s.asked = append(s.asked, minAvailable)
	return s.report, s.err
}

func refillJob(n int) *goriver.Job[riveradapter.PoolRefillArgs] {
	return &goriver.Job[riveradapter.PoolRefillArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Attempt: 1},
		Args:   riveradapter.PoolRefillArgs{MinAvailable: n},
	}
}

func TestPoolRefillWorker_PassesMinimum(t *testing.T) {
	pool := &stubRefiller{report: app.ProvisionReport{{Slot: 1, Name: "pool_1"}}}
	worker := riveradapter.NewPoolRefillWorker(pool, zaptest.NewLogger(t))

	if err := worker.Work(context.Background(), refillJob(3)); err != nil {
		t.Fatalf("Work failed: %v", err)
	}
	if len(pool.asked) != 1 || pool.asked[0] != 3 {
		t.Errorf("Refill called with %v, want [3]", pool.asked)
	}
}

func TestPoolRefillWorker_SlotFailuresDoNotFailJob(t *testing.T) {
	pool := &stubRefiller{report: app.ProvisionReport{{Slot: 2, Name: "pool_2", Err: errors.New("disk full")}}}
	worker := riveradapter.NewPoolRefillWorker(pool, zaptest.NewLogger(t))

	if err := worker.Work(context.Background(), refillJob(1)); err != nil {
		t.Errorf("Work = %v, want nil", err)
	}
}

func TestPoolRefillWorker_InspectionErrorFailsJob(t *testing.T) {
	pool := &stubRefiller{err: errors.New("listing failed")}
	worker := riveradapter.NewPoolRefillWorker(pool, nil)

	if err := worker.Work(context.Background(), refillJob(1)); err == nil {
		t.Error("expected an error")
	}
}

func TestPeriodicRefill_RunsOnStart(t *testing.T) {
	pool := &stubRefiller{}
	workers := goriver.NewWorkers()
	goriver.AddWorker(workers, riveradapter.NewPoolRefillWorker(pool, nil))

	client, err := riveradapter.Setup(context.Background(), setupTestDB(t), riveradapter.Config{
		Workers:      workers,
		PeriodicJobs: []*goriver.PeriodicJob{riveradapter.PeriodicRefill(time.Hour, 2)},
	})
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}
	events := startClient(t, client)

	waitFor(t, events, riveradapter.KindPoolRefill)
}
