package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrDatabaseExists   = errors.New("database already exists")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrNotRetryable     = errors.New("tenant is not in a retryable state")
	ErrDatabaseInUse    = errors.New("database is in use by a tenant")
)

// ConflictError is returned when a database that should be created already
// exists and holds tables. Nothing is dropped; an operator has to resolve it.
type ConflictError struct {
	Database string
	Tables   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("database %q already exists and contains %d tables", e.Database, e.Tables)
}

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// IsPermanent reports whether retrying the operation cannot succeed without
// outside intervention.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTenantNotFound) {
		return true
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return true
	}
	var tr *TransitionError
	return errors.As(err, &tr)
}
