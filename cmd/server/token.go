package main

import (
	"fmt"

	"github.com/marcelmariani/AI-whatssapp-agent/internal/auth"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/config"
	"github.com/spf13/cobra"
)

// tokenCmd mints a bearer token signed with MASTER_SECRET, for operators and
// local testing.
func tokenCmd() *cobra.Command {
	var owner, role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}
			if role != auth.RoleCustomer && role != auth.RoleAdmin {
				return fmt.Errorf("invalid --role %q", role)
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			tokenCfg := auth.DefaultTokenConfig(cfg.MasterSecret)
			tokenCfg.Expiry = cfg.TokenExpiry()

			tok, err := auth.CreateTokenWithRole(owner, role, tokenCfg)
			if err != nil {
				return fmt.Errorf("create token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id placed in the token subject")
	cmd.Flags().StringVar(&role, "role", auth.RoleCustomer, "Role claim (customer, admin)")

	return cmd
}
