package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Config tunes the client built by Setup.
type Config struct {
	// Workers is the registry jobs are routed through. Workers that need
	// the client themselves (through the task queue) may be added after
	// Setup returns, as long as it happens before Start.
	Workers *river.Workers
	// MaxWorkers bounds concurrent jobs on the default queue.
	MaxWorkers   int
	PeriodicJobs []*river.PeriodicJob
}

// Setup runs River's internal migrations and creates a client over db.
// The caller must call client.Start() to begin processing jobs and
// client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, cfg Config) (*Client, error) {
	driver := riversqlite.New(db)

	// River's own tables (river_job, river_leader, ...) are versioned apart
	// from the central store's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	if cfg.Workers == nil {
		cfg.Workers = river.NewWorkers()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:      cfg.Workers,
		PeriodicJobs: cfg.PeriodicJobs,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
