package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/tenantprov/internal/bootstrap"
)

func poolCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect and maintain the pool of ready databases",
	}

	cmd.AddCommand(poolStatusCommand(version))
	cmd.AddCommand(poolProvisionCommand(version))
	cmd.AddCommand(poolReleaseCommand(version))
	return cmd
}

func poolStatusCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show free and claimed pool entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				status, err := rt.Pool.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "max size:  %d\n", status.MaxSize)
				fmt.Fprintf(out, "available: %d %s\n", len(status.Available), strings.Join(status.Available, " "))
				fmt.Fprintf(out, "claimed:   %d %s\n", len(status.Claimed), strings.Join(status.Claimed, " "))
				return nil
			})
		},
	}
}

func poolProvisionCommand(version string) *cobra.Command {
	var count int

	c := &cobra.Command{
		Use:   "provision",
		Short: "Create, migrate and publish new pool entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return errors.New("--count must be at least 1")
			}
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				report := rt.Pool.Provision(ctx, count)
				for _, slot := range report {
					if slot.Err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "slot %d: %v\n", slot.Slot, slot.Err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", slot.Name)
				}
				return report.Err()
			})
		},
	}

	c.Flags().IntVar(&count, "count", 1, "number of entries to add")
	return c
}

func poolReleaseCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "release NAME",
		Short: "Return a database to the pool",
		Long: "Return a tenant database to the pool under the next free slot. A pool entry only " +
			"loses its claim, and only when the holding tenant is missing or finished. Databases " +
			"that still hold business rows, or that do not fit under the size cap, are dropped " +
			"instead. Databases a tenant still references are refused.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := rt.Pool.Release(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
				return nil
			})
		},
	}
}
