package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/tenantprov/internal/app"
	"github.com/neomorfeo/tenantprov/internal/bootstrap"
	"github.com/neomorfeo/tenantprov/internal/domain"
)

// tenantCommand groups tenant operator actions.
func tenantCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant utilities (register/get/list/retry)",
	}

	cmd.AddCommand(tenantRegisterCommand(version))
	cmd.AddCommand(tenantGetCommand(version))
	cmd.AddCommand(tenantListCommand(version))
	cmd.AddCommand(tenantRetryCommand(version))
	return cmd
}

func tenantRegisterCommand(version string) *cobra.Command {
	var (
		name          string
		taxID         string
		companyEmail  string
		adminName     string
		adminEmail    string
		adminPassword string
	)

	c := &cobra.Command{
		Use:   "register",
		Short: "Register a tenant and queue its provisioning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := app.RegisterInput{
				Name:    name,
				TaxID:   taxID,
				Company: domain.CompanyInput{Email: companyEmail},
			}
			if adminEmail != "" {
				in.Admin = &app.AdminCredentials{Name: adminName, Email: adminEmail, Password: adminPassword}
			}
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				tenant, err := rt.Tenants.Register(ctx, in)
				if err != nil {
					return err
				}
				printTenant(cmd.OutOrStdout(), tenant)
				return nil
			})
		},
	}

	c.Flags().StringVar(&name, "name", "", "tenant display name")
	c.Flags().StringVar(&taxID, "tax-id", "", "company tax identifier")
	c.Flags().StringVar(&companyEmail, "company-email", "", "company contact email")
	c.Flags().StringVar(&adminName, "admin-name", "", "first administrator's name")
	c.Flags().StringVar(&adminEmail, "admin-email", "", "first administrator's email; omit to skip the admin user")
	c.Flags().StringVar(&adminPassword, "admin-password", "", "first administrator's password")
	_ = c.MarkFlagRequired("name")
	c.MarkFlagsRequiredTogether("admin-email", "admin-password")
	return c
}

func tenantGetCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				tenant, err := rt.Tenants.Get(ctx, id)
				if err != nil {
					return err
				}
				printTenant(cmd.OutOrStdout(), tenant)
				return nil
			})
		},
	}
}

func tenantListCommand(version string) *cobra.Command {
	var (
		status string
		limit  int
		offset int
	)

	c := &cobra.Command{
		Use:   "list",
		Short: "List tenants, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.ListFilter{Limit: limit, Offset: offset}
			if status != "" {
				s := domain.Status(status)
				filter.Status = &s
			}
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				tenants, err := rt.Tenants.List(ctx, filter)
				if err != nil {
					return err
				}
				for _, t := range tenants {
					printTenant(cmd.OutOrStdout(), t)
				}
				return nil
			})
		},
	}

	c.Flags().StringVar(&status, "status", "", "only tenants in this status (pending, processing, ativa, failed)")
	c.Flags().IntVar(&limit, "limit", 50, "maximum number of tenants")
	c.Flags().IntVar(&offset, "offset", 0, "tenants to skip")
	return c
}

func tenantRetryCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID",
		Short: "Restart provisioning of a failed tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, "cli", version, cmd.ErrOrStderr(), func(ctx context.Context, rt *bootstrap.Runtime) error {
				tenant, err := rt.Tenants.Retry(ctx, id)
				if err != nil {
					return err
				}
				printTenant(cmd.OutOrStdout(), tenant)
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid tenant id %q", s)
	}
	return id, nil
}

func printTenant(w io.Writer, t domain.Tenant) {
	db := t.DatabaseName
	if db == "" {
		db = "-"
	}
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Status, db, t.Name)
}
