package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/neomorfeo/tenantprov/internal/app"
)

// Compile-time check: Metrics implements app.Recorder.
var _ app.Recorder = (*Metrics)(nil)

// PoolCounter reports free pool entries. *app.PoolManager satisfies it.
type PoolCounter interface {
	CountAvailable(ctx context.Context) (int, error)
}

// Metrics holds the provisioning instruments.
type Metrics struct {
	attempts metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	attempts, err := meter.Int64Counter("tenantprov.provisioning.attempts",
		metric.WithDescription("Provisioning attempts by outcome."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating attempts counter: %w", err)
	}
	return &Metrics{attempts: attempts}, nil
}

func (m *Metrics) RecordAttempt(ctx context.Context, outcome app.Outcome, attempt int) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome.String()),
		attribute.Int("attempt", attempt),
	))
}

// ObservePool registers a gauge reading the number of free pool entries at
// each collection.
func ObservePool(meter metric.Meter, pool PoolCounter) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge("tenantprov.pool.available",
		metric.WithDescription("Migrated, unclaimed databases ready for new tenants."),
		metric.WithUnit("{database}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pool gauge: %w", err)
	}
	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := pool.CountAvailable(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, int64(n))
		return nil
	}, gauge)
}
