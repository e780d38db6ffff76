package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"marketgate/internal/domain"
	"marketgate/internal/gateway/tenancy"
	"marketgate/internal/platform/config"
	"marketgate/internal/platform/stores"
)

func rootCmd() *cobra.Command {
	var mc config.MembershipConfig

	root := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Manage marketplace tenant memberships",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&mc.Backend, "backend", config.EnvOr("MEMBERSHIP_BACKEND", config.BackendPostgres), "membership backend: postgres, redis or memory")
	root.PersistentFlags().StringVar(&mc.PostgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN")
	root.PersistentFlags().StringVar(&mc.RedisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis URL")
	root.PersistentFlags().StringVar(&mc.Seed, "seed", os.Getenv("MEMBERSHIP_SEED"), "memberships preloaded into the memory backend")

	open := func(ctx context.Context) (*stores.Membership, error) {
		return stores.OpenMembership(ctx, mc)
	}

	root.AddCommand(
		grantCmd(open),
		revokeCmd(open),
		listCmd(open),
		checkCmd(open),
	)
	return root
}

type opener func(ctx context.Context) (*stores.Membership, error)

func parseTenant(raw string) (domain.TenantID, error) {
	c := tenancy.ParseClaim(raw)
	if c.Kind != tenancy.ClaimValid {
		return 0, fmt.Errorf("invalid tenant id: %q", raw)
	}
	return c.TenantID, nil
}

func grantCmd(open opener) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "grant <principal> <tenant>",
		Short: "Grant a principal membership of a tenant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := parseTenant(args[1])
			if err != nil {
				return err
			}
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			m := domain.Membership{PrincipalID: args[0], TenantID: tid, Role: role}
			if err := s.Admin.Grant(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s on tenant %s (%s)\n", m.PrincipalID, tid, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "member", "membership role")
	return cmd
}

func revokeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <principal> <tenant>",
		Short: "Revoke a principal's membership of a tenant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := parseTenant(args[1])
			if err != nil {
				return err
			}
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			if err := s.Admin.Revoke(cmd.Context(), args[0], tid); err != nil {
				return fmt.Errorf("revoke %s on tenant %s: %w", args[0], tid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s on tenant %s\n", args[0], tid)
			return nil
		},
	}
}

func listCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list <principal>",
		Short: "List a principal's tenant memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			list, err := s.Admin.ListForPrincipal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no memberships")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT\tROLE\tCREATED")
			for _, m := range list {
				created := "-"
				if !m.CreatedAt.IsZero() {
					created = m.CreatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.TenantID, m.Role, created)
			}
			return w.Flush()
		},
	}
}

// checkCmd answers the same question the guard asks, through the same oracle.
func checkCmd(open opener) *cobra.Command {
	var superAdmin bool
	cmd := &cobra.Command{
		Use:   "check <principal> <tenant>",
		Short: "Report whether a principal may act on a tenant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := parseTenant(args[1])
			if err != nil {
				return err
			}
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			p := domain.Principal{ID: args[0], Type: domain.PrincipalUser, SuperAdmin: superAdmin}
			ok, err := tenancy.NewOracle(s.Admin, nil).HasAccess(cmd.Context(), p, tid)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "principal=%s tenant=%s access=%s\n", p.ID, tid, strconv.FormatBool(ok))
			return nil
		},
	}
	cmd.Flags().BoolVar(&superAdmin, "super-admin", false, "evaluate as a platform super-admin")
	return cmd
}
