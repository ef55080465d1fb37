package main

import (
	"strings"

	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
)

func newLogCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recently committed decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				entries, err := client.ListDecisions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(entries)
				}
				for _, entry := range entries {
					if err := writePlain("%s %s %s [%s] changes=%d\n",
						formatTime(entry.CreatedAt), entry.ID, entry.Action,
						strings.Join(entry.Hashes, ", "), entry.Changes); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries (default: server default)")
	return cmd
}
