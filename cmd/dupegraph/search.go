package main

import (
	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
)

func newSearchCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Track the similarity search frontier",
	}
	cmd.AddCommand(newSearchPendingCmd(cfg, jsonOutput))
	cmd.AddCommand(newSearchDoneCmd(cfg, jsonOutput))
	return cmd
}

func newSearchPendingCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List files that still need a similarity search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.PendingSearch(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeLines(resp.Hashes)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum files to list (default: server default)")
	return cmd
}

func newSearchDoneCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "done <hash>...",
		Short: "Mark files as searched",
		Args:  requireAtLeastOneHash,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.CompleteSearch(cmd.Context(), args)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("marked %d files searched\n", resp.Updated)
			})
		},
	}
}
