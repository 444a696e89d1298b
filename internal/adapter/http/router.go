// Package http exposes the operator API: tenant registration and retry,
// and pool inspection and maintenance.
package http

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"
)

// NewRouter builds the chi router with tracing, recovery and request
// logging, and the Huma API mounted on it.
func NewRouter(service, version string, logger *zap.Logger) (*chi.Mux, huma.API) {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewMux()
	router.Use(otelchi.Middleware(service, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	api := humachi.New(router, huma.DefaultConfig(service, version))
	return router, api
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
