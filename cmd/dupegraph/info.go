package main

import (
	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
)

type infoOutput struct {
	DBPath string `json:"db_path"`
	api.InfoResponse
}

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show database and relationship counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(infoOutput{DBPath: cfg.DBPath, InfoResponse: resp})
				}

				_ = writePlain("db_path: %s\n", cfg.DBPath)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain("files: %d\n", resp.Files)
				_ = writePlain("  needs_search: %d\n", resp.NeedsSearch)
				_ = writePlain("duplicate_groups: %d\n", resp.DuplicateGroups)
				_ = writePlain("alternate_groups: %d\n", resp.AlternateGroups)
				_ = writePlain("false_positive_links: %d\n", resp.FalsePositiveLinks)
				_ = writePlain("potential_pairs: %d\n", resp.PotentialPairs)
				_ = writePlain("rejected_pairs: %d\n", resp.RejectedPairs)
				return writePlain("decisions: %d\n", resp.Decisions)
			})
		},
	}
	return cmd
}
