package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skyarena/internal/auth"
)

var (
	tokenTeam int
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer key",
	Long:  "token signs a key with the configured auth secret. Team keys may only submit for their own team.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()
		if cfg.Auth.Secret == "" {
			return errors.New("auth.secret is not configured")
		}
		a, err := auth.New(cfg.Auth.Secret)
		if err != nil {
			return err
		}
		tok, err := a.Issue(tokenTeam, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().IntVar(&tokenTeam, "team", 0, "Team number")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleTeam, "Role: team, observer or referee")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Lifetime (0 never expires)")
}
