package main

import (
	"encoding/json"
	"fmt"
	"time"

	"webhook-recorder/internal/auth"
	"webhook-recorder/internal/config"
	"webhook-recorder/internal/rbac"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tokenctl",
		Short: "Operator token tool for webhook-recorder",
		Long: `tokenctl mints and inspects operator tokens for the webhook-recorder API.

Tokens are signed with AUTH_JWT_SECRET and carry AUTH_JWT_ISSUER and
AUTH_JWT_AUDIENCE when those are set, exactly as the API expects.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newIssueCmd(), newVerifyCmd())
	return root
}

func newManager() (*auth.Manager, error) {
	cfg, err := config.LoadAuth()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(cfg)
}

func newIssueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue [operator]",
		Short: "Issue an operator access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			services, _ := cmd.Flags().GetStringSlice("service")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if !rbac.IsKnownRole(role) {
				return fmt.Errorf("unknown role %q (want %s, %s or %s)", role, rbac.RoleViewer, rbac.RoleOperator, rbac.RoleAdmin)
			}

			m, err := newManager()
			if err != nil {
				return err
			}
			tok, err := m.Issue(time.Now(), args[0], role, services, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringP("role", "r", rbac.RoleViewer, "role: viewer, operator or admin")
	cmd.Flags().StringSliceP("service", "s", nil, "restrict the token to these services (repeatable)")
	cmd.Flags().Duration("ttl", 0, "token lifetime (default AUTH_TOKEN_TTL)")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newManager()
			if err != nil {
				return err
			}
			claims, err := m.Verify(args[0], time.Now())
			if err != nil {
				return fmt.Errorf("invalid token: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}
}
