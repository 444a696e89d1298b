package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// TracingPublisher wraps a domain.EventPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*TracingPublisher)(nil)

func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, event domain.TenantProvisioned) error {
	ctx, span := p.tracer.Start(ctx, "EventPublisher.Publish",
		trace.WithAttributes(
			attribute.String("event.id", event.EventID),
			attribute.Int64("tenant.id", event.TenantID),
			attribute.String("db.name", event.Database),
		),
	)
	err := p.next.Publish(ctx, event)
	end(span, err)
	return err
}
