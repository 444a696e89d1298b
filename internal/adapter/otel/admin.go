package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// TracingAdmin wraps a domain.DatabaseAdmin so every DDL call gets a span.
type TracingAdmin struct {
	next   domain.DatabaseAdmin
	tracer trace.Tracer
}

// Compile-time check: TracingAdmin implements domain.DatabaseAdmin.
var _ domain.DatabaseAdmin = (*TracingAdmin)(nil)

func NewTracingAdmin(next domain.DatabaseAdmin) *TracingAdmin {
	return &TracingAdmin{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (a *TracingAdmin) start(ctx context.Context, op, name string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "DatabaseAdmin."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.name", name)),
	)
}

func (a *TracingAdmin) Create(ctx context.Context, name string) error {
	ctx, span := a.start(ctx, "Create", name)
	err := a.next.Create(ctx, name)
	end(span, err)
	return err
}

func (a *TracingAdmin) Rename(ctx context.Context, from, to string) error {
	ctx, span := a.start(ctx, "Rename", from)
	span.SetAttributes(attribute.String("db.rename_to", to))
	err := a.next.Rename(ctx, from, to)
	end(span, err)
	return err
}

func (a *TracingAdmin) Drop(ctx context.Context, name string) error {
	ctx, span := a.start(ctx, "Drop", name)
	err := a.next.Drop(ctx, name)
	end(span, err)
	return err
}

func (a *TracingAdmin) Exists(ctx context.Context, name string) (bool, error) {
	ctx, span := a.start(ctx, "Exists", name)
	ok, err := a.next.Exists(ctx, name)
	end(span, err)
	return ok, err
}

func (a *TracingAdmin) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := a.tracer.Start(ctx, "DatabaseAdmin.List",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.prefix", prefix)),
	)
	names, err := a.next.List(ctx, prefix)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(names)))
	}
	end(span, err)
	return names, err
}

func (a *TracingAdmin) TableCount(ctx context.Context, name string) (int, error) {
	ctx, span := a.start(ctx, "TableCount", name)
	n, err := a.next.TableCount(ctx, name)
	end(span, err)
	return n, err
}

func (a *TracingAdmin) HasData(ctx context.Context, name string) (bool, error) {
	ctx, span := a.start(ctx, "HasData", name)
	ok, err := a.next.HasData(ctx, name)
	end(span, err)
	return ok, err
}

func (a *TracingAdmin) Migrate(ctx context.Context, name string) error {
	ctx, span := a.start(ctx, "Migrate", name)
	err := a.next.Migrate(ctx, name)
	end(span, err)
	return err
}

// Connect traces opening the handle only; statements on it are traced by
// the instrumented driver where one is configured.
func (a *TracingAdmin) Connect(ctx context.Context, name string) (domain.TenantDB, error) {
	ctx, span := a.start(ctx, "Connect", name)
	db, err := a.next.Connect(ctx, name)
	end(span, err)
	return db, err
}
