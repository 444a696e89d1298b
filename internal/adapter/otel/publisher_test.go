package otel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"

	adapter "github.com/neomorfeo/tenantprov/internal/adapter/otel"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

type stubPublisher struct {
	events []domain.TenantProvisioned
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, e domain.TenantProvisioned) error {
	p.events = append(p.events, e)
	return p.err
}

func TestTracingPublisher_Publish_RecordsSpan(t *testing.T) {
	exporter := setupTestTracer(t)
	inner := &stubPublisher{}
	pub := adapter.NewTracingPublisher(inner)

	event := domain.NewTenantProvisioned(7, 1, 2, "tenant_7", time.Now())
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	span := onlySpan(t, exporter, "EventPublisher.Publish")
	assertAttribute(t, span, "event.id", event.EventID)
	assertAttribute(t, span, "tenant.id", "7")
	assertAttribute(t, span, "db.name", "tenant_7")

	if len(inner.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(inner.events))
	}
}

func TestTracingPublisher_Publish_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	pub := adapter.NewTracingPublisher(&stubPublisher{err: errors.New("publish failed")})

	if err := pub.Publish(context.Background(), domain.NewTenantProvisioned(1, 1, 0, "tenant_1", time.Now())); err == nil {
		t.Fatal("expected error")
	}

	span := onlySpan(t, exporter, "EventPublisher.Publish")
	if span.Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", span.Status.Code, codes.Error)
	}
}
