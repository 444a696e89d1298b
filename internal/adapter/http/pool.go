package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantprov/internal/app"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

type PoolStatusOutput struct {
	Body struct {
		Available []string `json:"available" doc:"Free entries, lowest slot first"`
		Claimed   []string `json:"claimed" doc:"Entries held by a tenant mid-allocation"`
		MaxSize   int      `json:"max_size" doc:"Highest slot number the pool may use"`
	}
}

type ProvisionPoolInput struct {
	Body struct {
		Count int `json:"count" minimum:"1" maximum:"100" doc:"Entries to build"`
	}
}

type SlotFailure struct {
	Slot  int    `json:"slot"`
	Error string `json:"error"`
}

type ProvisionPoolOutput struct {
	Body struct {
		Created  []string      `json:"created" doc:"Entries added to the pool"`
		Failures []SlotFailure `json:"failures,omitempty" doc:"Slots that could not be built"`
	}
}

type ReleaseInput struct {
	Body struct {
		Name string `json:"name" minLength:"1" pattern:"^[a-z0-9_]+$" doc:"Database to return to the pool"`
	}
}

// RegisterPool adds the pool operator routes to the Huma API.
func RegisterPool(api huma.API, pool *app.PoolManager) {
	huma.Register(api, huma.Operation{
		OperationID: "pool-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/pool",
		Summary:     "Show free and claimed pool entries",
		Tags:        []string{"Pool"},
	}, func(ctx context.Context, _ *struct{}) (*PoolStatusOutput, error) {
		st, err := pool.Status(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &PoolStatusOutput{}
		out.Body.Available = nonNil(st.Available)
		out.Body.Claimed = nonNil(st.Claimed)
		out.Body.MaxSize = st.MaxSize
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "pool-provision",
		Method:      http.MethodPost,
		Path:        "/api/v1/pool/provision",
		Summary:     "Build new pool entries",
		Tags:        []string{"Pool"},
	}, func(ctx context.Context, input *ProvisionPoolInput) (*ProvisionPoolOutput, error) {
		report := pool.Provision(ctx, input.Body.Count)

		out := &ProvisionPoolOutput{}
		out.Body.Created = nonNil(report.Created())
		for _, s := range report {
			if s.Err != nil {
				out.Body.Failures = append(out.Body.Failures, SlotFailure{Slot: s.Slot, Error: s.Err.Error()})
			}
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "pool-release",
		Method:        http.MethodPost,
		Path:          "/api/v1/pool/release",
		Summary:       "Return a database to the pool",
		Description:   "A pool entry only loses its claim, and only when the holding tenant is missing or finished. Databases that still hold business rows, or that do not fit under the size cap, are dropped instead. Databases a tenant still references are refused with 409.",
		Tags:          []string{"Pool"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ReleaseInput) (*struct{}, error) {
		if err := pool.Release(ctx, input.Body.Name); err != nil {
			if errors.Is(err, domain.ErrDatabaseNotFound) {
				return nil, huma.Error404NotFound("database not found")
			}
			return nil, toHumaError(err)
		}
		return nil, nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
