package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/crypto/bcrypt"

	"github.com/neomorfeo/tenantprov/internal/domain"
)

// RegisterInput is what the registration flow hands over for a new tenant.
type RegisterInput struct {
	Name    string
	TaxID   string
	Company domain.CompanyInput
	Admin   *AdminCredentials
}

// AdminCredentials carries the first administrator in clear text. Only the
// bcrypt hash leaves the service.
type AdminCredentials struct {
	Name     string
	Email    string
	Password string
}

// TenantService registers tenants and exposes operator actions on them.
type TenantService struct {
	repo      domain.TenantRepository
	queue     domain.TaskQueue
	validator domain.TransitionValidator
	now       func() time.Time
}

// NewTenantService creates a service with the given adapters.
func NewTenantService(repo domain.TenantRepository, queue domain.TaskQueue, validator domain.TransitionValidator) *TenantService {
	return &TenantService{
		repo:      repo,
		queue:     queue,
		validator: validator,
		now:       time.Now,
	}
}

// Register persists a pending tenant and enqueues its first provisioning attempt.
func (s *TenantService) Register(ctx context.Context, in RegisterInput) (domain.Tenant, error) {
	payload := domain.CreationPayload{Company: in.Company}
	if payload.Company.Name == "" {
		payload.Company.Name = in.Name
	}
	if payload.Company.TaxID == "" {
		payload.Company.TaxID = in.TaxID
	}

	if in.Admin != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Admin.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Tenant{}, fmt.Errorf("hashing admin password: %w", err)
		}
		payload.Admin = &domain.AdminInput{
			Name:         in.Admin.Name,
			Email:        in.Admin.Email,
			PasswordHash: string(hash),
		}
	}

	tenant, err := s.repo.Create(ctx, domain.NewTenant(in.Name, in.TaxID, payload))
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("creating tenant: %w", err)
	}

	if err := s.queue.Enqueue(ctx, domain.NewProvisioningTask(tenant.ID, payload, s.now())); err != nil {
		return tenant, fmt.Errorf("enqueuing provisioning for tenant %d: %w", tenant.ID, err)
	}
	return tenant, nil
}

// Get returns a tenant by its identifier.
func (s *TenantService) Get(ctx context.Context, id int64) (domain.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tenants matching the given filter.
func (s *TenantService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.repo.List(ctx, filter)
}

// Retry restarts provisioning of a failed tenant with a fresh attempt budget.
func (s *TenantService) Retry(ctx context.Context, id int64) (domain.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant.Status != domain.StatusFailed {
		return domain.Tenant{}, fmt.Errorf("tenant %d is %s: %w", id, tenant.Status, domain.ErrNotRetryable)
	}

	next, err := s.validator.Apply(ctx, tenant.Status, domain.EventStart)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return domain.Tenant{}, fmt.Errorf("updating tenant: %w", err)
	}
	tenant.Status = next

	if err := s.queue.Enqueue(ctx, domain.NewProvisioningTask(id, tenant.Payload, s.now())); err != nil {
		// Put the tenant back so the operator can try again.
		if back, verr := s.validator.Apply(ctx, next, domain.EventFail); verr == nil {
			err = multierr.Append(err, s.repo.UpdateStatus(ctx, id, back))
		}
		return domain.Tenant{}, fmt.Errorf("enqueuing retry for tenant %d: %w", id, err)
	}
	return tenant, nil
}
