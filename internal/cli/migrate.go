package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/neomorfeo/tenantprov/internal/bootstrap"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

func migrateCommand(version string) *cobra.Command {
	var tenants bool

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply central store and job queue migrations",
		Long: "Apply central store and job queue migrations. With --tenants, also bring " +
			"every tenant and pool database up to the latest tenant schema.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				// bootstrap.New has already migrated the central store.
				fmt.Fprintln(cmd.OutOrStdout(), "central store: up to date")
				if !tenants {
					return nil
				}
				return migrateTenants(ctx, cmd, rt.Admin)
			})
		},
	}

	c.Flags().BoolVar(&tenants, "tenants", false, "also migrate tenant and pool databases")
	return c
}

func migrateTenants(ctx context.Context, cmd *cobra.Command, admin domain.DatabaseAdmin) error {
	var names []string
	for _, prefix := range []string{domain.TenantPrefix, domain.PoolPrefix} {
		found, err := admin.List(ctx, prefix)
		if err != nil {
			return err
		}
		names = append(names, found...)
	}

	var errs error
	for _, name := range names {
		if err := admin.Migrate(ctx, name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: failed\n", name)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: up to date\n", name)
	}
	return errs
}
