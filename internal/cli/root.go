// Package cli is the tenantprov command line: the long-running server and
// one-shot operator commands that share its wiring.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/neomorfeo/tenantprov/internal/bootstrap"
	"github.com/neomorfeo/tenantprov/internal/config"
	"github.com/neomorfeo/tenantprov/internal/logging"
)

// NewRootCommand returns the tenantprov command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "tenantprov",
		Short:         "Tenant database provisioning service",
		Long:          "Registers tenants, provisions their databases in the background and keeps a pool of ready databases.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(serveCommand(version))
	root.AddCommand(migrateCommand(version))
	root.AddCommand(poolCommand(version))
	root.AddCommand(tenantCommand(version))
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, version string) error {
	return NewRootCommand(version).ExecuteContext(ctx)
}

// withRuntime loads configuration, wires the service and hands it to fn.
// Logs go to logOut; one-shot commands keep stdout for their own output.
func withRuntime(cmd *cobra.Command, component, version string, logOut io.Writer, fn func(context.Context, *bootstrap.Runtime) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{Component: component, Level: cfg.LogLevel, Output: logOut})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := bootstrap.New(ctx, cfg, version, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, rt.Close(context.Background())) }()

	return fn(ctx, rt)
}
