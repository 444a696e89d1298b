package otel

import (
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/XSAM/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OpenDB opens the central SQLite store with OpenTelemetry instrumentation.
// The store and River share the handle, so it is limited to one
// connection to avoid SQLITE_BUSY.
func OpenDB(dataSourceName string) (*sql.DB, error) {
	db, err := otelsql.Open("sqlite", dataSourceName,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("opening instrumented database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering db stats metrics: %w", err)
	}

	return db, nil
}

// OpenTenantSQLite opens a tenant SQLite file with SQL tracing. It has the
// signature sqlitedb.OpenFunc expects.
func OpenTenantSQLite(driverName, dataSourceName string) (*sql.DB, error) {
	return otelsql.Open(driverName, dataSourceName,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
}

// OpenTenantPostgres wraps a pgx connector with SQL tracing. It has the
// signature postgres.OpenDBFunc expects.
func OpenTenantPostgres(connector driver.Connector) *sql.DB {
	return otelsql.OpenDB(connector,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
}
