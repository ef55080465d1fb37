package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
)

func newPotentialCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "potential",
		Aliases: []string{"pot"},
		Short:   "Manage the potential duplicate queue",
	}
	cmd.AddCommand(newPotentialAddCmd(cfg, jsonOutput))
	cmd.AddCommand(newPotentialNextCmd(cfg, jsonOutput))
	cmd.AddCommand(newPotentialDecideCmd(cfg, jsonOutput))
	cmd.AddCommand(newPotentialPurgeCmd(cfg, jsonOutput))
	cmd.AddCommand(newPotentialResetCmd(cfg, jsonOutput))
	return cmd
}

func newPotentialAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var distance int

	cmd := &cobra.Command{
		Use:   "add <a> <b>",
		Short: "Queue a candidate pair",
		Args:  requireTwoHashes,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.EnqueueRequest{Pairs: []api.PotentialPair{{A: args[0], B: args[1], Distance: distance}}}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Enqueue(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("queued %d pairs\n", resp.Added)
			})
		},
	}

	cmd.Flags().IntVar(&distance, "distance", 0, "perceptual distance between the files")
	return cmd
}

func newPotentialNextCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next batch of pairs to review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				pairs, err := client.NextPotentials(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(pairs)
				}
				if len(pairs) == 0 {
					return writePlain("queue is empty\n")
				}
				return writePairs(pairs)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "batch size (default: potentials.default_batch)")
	return cmd
}

func newPotentialDecideCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var better string

	cmd := &cobra.Command{
		Use:   "decide <a> <b> <action>",
		Short: "Resolve a queued pair (better, same, alternate, false-positive, reject)",
		Args:  requireExactlyArgs(3, "usage: decide <a> <b> <action>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.PairDecisionRequest{A: args[0], B: args[1], Action: args[2], Better: better}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DecidePair(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeResult(resp)
			})
		},
	}

	cmd.Flags().StringVar(&better, "better", "", "winning file for the better action (default: <a>)")
	return cmd
}

func newPotentialPurgeCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge <hash>",
		Short: "Drop every queued pair involving a file",
		Args:  requireOneHash,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("purge removes queued pairs; re-run with --yes to confirm")
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.PurgePotentials(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeResult(resp)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the purge")
	return cmd
}

func newPotentialResetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <hash>",
		Short: "Forget rejected pairs of a file and search it again",
		Args:  requireOneHash,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ResetSearch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeResult(resp)
			})
		},
	}
}
