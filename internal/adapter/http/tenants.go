package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantprov/internal/app"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID        int64  `json:"id" doc:"Unique identifier"`
	Name      string `json:"name" doc:"Display name"`
	TaxID     string `json:"tax_id,omitempty" doc:"Tax identifier"`
	Status    string `json:"status" doc:"Provisioning state" enum:"pending,processing,ativa,failed"`
	Database  string `json:"database,omitempty" doc:"Tenant database, once allocated"`
	CreatedAt string `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt string `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		TaxID:     t.TaxID,
		Status:    string(t.Status),
		Database:  t.DatabaseName,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// --- Register Tenant ---

type CompanyBody struct {
	Name  string `json:"name,omitempty" maxLength:"255" doc:"Company name; defaults to the tenant name"`
	TaxID string `json:"tax_id,omitempty" maxLength:"64" doc:"Company tax id; defaults to the tenant's"`
	Email string `json:"email,omitempty" format:"email" doc:"Company contact email"`
}

type AdminBody struct {
	Name     string `json:"name" minLength:"1" maxLength:"255" doc:"Administrator name"`
	Email    string `json:"email" format:"email" doc:"Administrator login email"`
	Password string `json:"password" minLength:"8" maxLength:"72" doc:"Initial password; only its bcrypt hash is stored"`
}

type RegisterTenantInput struct {
	Body struct {
		Name    string       `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		TaxID   string       `json:"tax_id,omitempty" maxLength:"64" doc:"Tax identifier"`
		Company *CompanyBody `json:"company,omitempty" doc:"First company record"`
		Admin   *AdminBody   `json:"admin,omitempty" doc:"First administrator user"`
	}
}

type TenantOutput struct {
	Body TenantResponse
}

// --- Get Tenant ---

type TenantIDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Tenant ID"`
}

// --- List Tenants ---

type ListTenantsInput struct {
	Status string `query:"status" required:"false" enum:"pending,processing,ativa,failed" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" minimum:"1" maximum:"500" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// Register adds the tenant routes to the Huma API.
func Register(api huma.API, svc *app.TenantService) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-tenant",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants",
		Summary:       "Register a tenant and queue its provisioning",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *RegisterTenantInput) (*TenantOutput, error) {
		in := app.RegisterInput{Name: input.Body.Name, TaxID: input.Body.TaxID}
		if c := input.Body.Company; c != nil {
			in.Company = domain.CompanyInput{Name: c.Name, TaxID: c.TaxID, Email: c.Email}
		}
		if a := input.Body.Admin; a != nil {
			in.Admin = &app.AdminCredentials{Name: a.Name, Email: a.Email, Password: a.Password}
		}

		tenant, err := svc.Register(ctx, in)
		if err != nil {
			if tenant.ID != 0 {
				// Stored but not queued; an operator retry can pick it up.
				return nil, huma.Error503ServiceUnavailable("tenant stored but provisioning could not be queued", err)
			}
			return nil, toHumaError(err)
		}
		return &TenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *TenantIDInput) (*TenantOutput, error) {
		tenant, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants, newest first",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}

		tenants, err := svc.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "retry-tenant",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{id}/retry",
		Summary:       "Re-queue provisioning for a failed tenant",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *TenantIDInput) (*TenantOutput, error) {
		tenant, err := svc.Retry(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TenantOutput{Body: toTenantResponse(tenant)}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return huma.Error404NotFound("tenant not found")
	case errors.Is(err, domain.ErrDatabaseNotFound):
		return huma.Error404NotFound("database not found")
	case errors.Is(err, domain.ErrNotRetryable), errors.Is(err, domain.ErrDatabaseInUse):
		return huma.Error409Conflict(err.Error())
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return huma.Error409Conflict(conflict.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
