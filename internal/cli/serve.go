package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/tenantprov/internal/bootstrap"
)

func serveCommand(version string) *cobra.Command {
	var shutdownTimeout time.Duration

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the provisioning workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, "server", version, cmd.OutOrStdout(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, rt, shutdownTimeout)
			})
		},
	}

	c.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for in-flight requests and jobs on shutdown")
	return c
}

// serve runs until ctx is cancelled or the listener fails, then stops the
// server and the job client within shutdownTimeout.
func serve(ctx context.Context, rt *bootstrap.Runtime, shutdownTimeout time.Duration) error {
	// Shutdown is driven by StopRiver, not by ctx.
	if err := rt.River.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting job queue: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + rt.Config.Port,
		Handler:           rt.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.Logger.Info("listening", zap.String("addr", srv.Addr), zap.String("docs", "/docs"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.Logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Append(srv.Shutdown(sctx), rt.StopRiver(sctx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	rt.Logger.Info("stopped")
	return nil
}
