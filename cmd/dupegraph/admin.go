package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dupegraph/internal/auth"
	"dupegraph/internal/config"
	"dupegraph/internal/maintenance"
	"dupegraph/internal/store"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminTokenCmd(jsonOutput))
	cmd.AddCommand(newAdminMaintainCmd(cfg, jsonOutput))
	return cmd
}

type tokenOutput struct {
	Token     string `json:"token,omitempty"`
	TokenHash string `json:"token_hash"`
}

func newAdminTokenCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "token [token]",
		Short: "Hash an API token for auth.token_hash (generates one when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := tokenOutput{}
			token := ""
			if len(args) == 1 {
				token = strings.TrimSpace(args[0])
			} else {
				generated, err := auth.GenerateToken()
				if err != nil {
					return err
				}
				token = generated
				out.Token = generated
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			out.TokenHash = hash

			if *jsonOutput {
				return writeJSON(out)
			}
			if out.Token != "" {
				if err := writePlain("token: %s\n", out.Token); err != nil {
					return err
				}
			}
			return writePlain("token_hash: %s\n", out.TokenHash)
		},
	}
}

func newAdminMaintainCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run one store maintenance pass against the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			scheduler, err := maintenance.NewScheduler(st, "", componentLogger(componentMaintenance))
			if err != nil {
				return err
			}
			result, err := scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			if *jsonOutput {
				return writeJSON(result)
			}
			return writePlain("purged %d potential pairs, pruned %d carrier groups, dropped %d alternate groups\n",
				result.PurgedPairs, result.PrunedCarriers, result.DroppedAlternates)
		},
	}
}
