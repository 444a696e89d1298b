package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// CreateResult tells how CreateDatabase satisfied the request.
type CreateResult int

const (
	// Created means a new database was issued.
	Created CreateResult = iota + 1
	// Reused means an empty database with the requested name already existed.
	Reused
)

func (r CreateResult) String() string {
	switch r {
	case Created:
		return "created"
	case Reused:
		return "reused"
	default:
		return "unknown"
	}
}

// Lifecycle creates and migrates individual tenant databases. It never
// touches tenant rows.
type Lifecycle struct {
	admin  domain.DatabaseAdmin
	logger *zap.Logger
}

// NewLifecycle creates a lifecycle service over the given database admin.
func NewLifecycle(admin domain.DatabaseAdmin, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{admin: admin, logger: logger}
}

// CreateDatabase makes sure a database called name exists and is empty.
// An existing empty database is reused; one holding tables yields a
// *domain.ConflictError and is left untouched. A CREATE that loses a race
// to a concurrent creator goes through the same check.
func (l *Lifecycle) CreateDatabase(ctx context.Context, name string) (CreateResult, error) {
	exists, err := l.admin.Exists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("checking database %q: %w", name, err)
	}
	if exists {
		return l.reuse(ctx, name)
	}

	err = l.admin.Create(ctx, name)
	switch {
	case err == nil:
		l.logger.Info("database created", zap.String("database", name))
		return Created, nil
	case errors.Is(err, domain.ErrDatabaseExists):
		l.logger.Info("database appeared during create, checking contents", zap.String("database", name))
		return l.reuse(ctx, name)
	default:
		return 0, fmt.Errorf("creating database %q: %w", name, err)
	}
}

func (l *Lifecycle) reuse(ctx context.Context, name string) (CreateResult, error) {
	tables, err := l.admin.TableCount(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("counting tables in %q: %w", name, err)
	}
	if tables > 0 {
		return 0, &domain.ConflictError{Database: name, Tables: tables}
	}
	l.logger.Info("reusing empty database", zap.String("database", name))
	return Reused, nil
}

// RunMigrations applies the tenant migration set to name. Already applied
// versions are skipped.
func (l *Lifecycle) RunMigrations(ctx context.Context, name string) error {
	if err := l.admin.Migrate(ctx, name); err != nil {
		return fmt.Errorf("migrating %q: %w", name, err)
	}
	return nil
}
