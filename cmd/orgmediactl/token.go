package main

import (
	"fmt"
	"time"

	"orgmedia/internal/auth"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var subject, role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token --subject NAME",
		Short: "Issue an API token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				ttl = a.cfg.Auth.TokenTTL
			}
			token, err := auth.NewJWTConfig(a.cfg.Auth.JWTSecret).IssueToken(subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ORGMEDIA_JWT_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
