package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// TracingRepository wraps a domain.TenantRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingRepository struct {
	next   domain.TenantRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.TenantRepository.
var _ domain.TenantRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.TenantRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (r *TracingRepository) Create(ctx context.Context, tenant domain.Tenant) (domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Create",
		trace.WithAttributes(attribute.String("tenant.name", tenant.Name)),
	)
	created, err := r.next.Create(ctx, tenant)
	if err == nil {
		span.SetAttributes(attribute.Int64("tenant.id", created.ID))
	}
	end(span, err)
	return created, err
}

func (r *TracingRepository) GetByID(ctx context.Context, id int64) (domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.GetByID",
		trace.WithAttributes(attribute.Int64("tenant.id", id)),
	)
	tenant, err := r.next.GetByID(ctx, id)
	end(span, err)
	return tenant, err
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	tenants, err := r.next.List(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	end(span, err)
	return tenants, err
}

func (r *TracingRepository) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.UpdateStatus",
		trace.WithAttributes(
			attribute.Int64("tenant.id", id),
			attribute.String("tenant.status", string(status)),
		),
	)
	err := r.next.UpdateStatus(ctx, id, status)
	end(span, err)
	return err
}

func (r *TracingRepository) AssignDatabase(ctx context.Context, id int64, database string) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.AssignDatabase",
		trace.WithAttributes(
			attribute.Int64("tenant.id", id),
			attribute.String("db.name", database),
		),
	)
	err := r.next.AssignDatabase(ctx, id, database)
	end(span, err)
	return err
}

func (r *TracingRepository) ReferencedDatabases(ctx context.Context) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.ReferencedDatabases")
	names, err := r.next.ReferencedDatabases(ctx)
	end(span, err)
	return names, err
}
