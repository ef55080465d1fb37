package main

import (
	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
)

func newFileCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Register and inspect files",
	}
	cmd.AddCommand(newFileAddCmd(cfg, jsonOutput))
	cmd.AddCommand(newFileShowCmd(cfg, jsonOutput))
	return cmd
}

func newFileAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "add <hash>...",
		Short: "Register file hashes",
		Args:  requireAtLeastOneHash,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.RegisterFiles(cmd.Context(), args)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("added %d of %d files\n", resp.Added, resp.Total)
			})
		},
	}
}

func newFileShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <hash>",
		Short: "Show a file and its relationships",
		Args:  requireOneHash,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeFileDetail(resp)
			})
		},
	}
}
