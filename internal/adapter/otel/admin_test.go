package otel_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"

	adapter "github.com/neomorfeo/tenantprov/internal/adapter/otel"
	"github.com/neomorfeo/tenantprov/internal/adapter/sqlitedb"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

func TestTracingAdmin_SpansPerCall(t *testing.T) {
	exporter := setupTestTracer(t)
	inner, err := sqlitedb.New(t.TempDir(), adapter.OpenTenantSQLite)
	if err != nil {
		t.Fatal(err)
	}
	admin := adapter.NewTracingAdmin(inner)
	ctx := context.Background()

	if err := admin.Create(ctx, "poolstage_1"); err != nil {
		t.Fatal(err)
	}
	if err := admin.Migrate(ctx, "poolstage_1"); err != nil {
		t.Fatal(err)
	}
	if err := admin.Rename(ctx, "poolstage_1", "pool_1"); err != nil {
		t.Fatal(err)
	}

	var ddl []string
	for _, s := range exporter.GetSpans() {
		if strings.HasPrefix(s.Name, "DatabaseAdmin.") {
			ddl = append(ddl, s.Name)
		}
	}
	want := []string{"DatabaseAdmin.Create", "DatabaseAdmin.Migrate", "DatabaseAdmin.Rename"}
	if len(ddl) != len(want) {
		t.Fatalf("admin spans = %v, want %v", ddl, want)
	}
	for i := range want {
		if ddl[i] != want[i] {
			t.Errorf("span %d = %q, want %q", i, ddl[i], want[i])
		}
	}
}

func TestTracingAdmin_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	inner, err := sqlitedb.New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	admin := adapter.NewTracingAdmin(inner)

	_, err = admin.Connect(context.Background(), "tenant_404")
	if !errors.Is(err, domain.ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}

	span := onlySpan(t, exporter, "DatabaseAdmin.Connect")
	assertAttribute(t, span, "db.name", "tenant_404")
	if span.Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", span.Status.Code, codes.Error)
	}
}
