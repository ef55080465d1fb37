package main

import (
	"github.com/spf13/cobra"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
	"dupegraph/internal/models"
)

type decisionCmdDef struct {
	use    string
	short  string
	action models.Action
	args   cobra.PositionalArgs
}

var dupCmdDefs = []decisionCmdDef{
	{use: "better <better> <worse>...", short: "Mark the first file as the better duplicate of the rest", action: models.ActionBetter, args: requireAtLeastArgs(2, "at least two hashes are required")},
	{use: "same <hash>...", short: "Mark files as same-quality duplicates", action: models.ActionSameQuality, args: requireAtLeastArgs(2, "at least two hashes are required")},
	{use: "alternates <hash>...", short: "Mark files as alternates of each other", action: models.ActionAlternate, args: requireAtLeastArgs(2, "at least two hashes are required")},
	{use: "false-positive <hash>...", short: "Mark files as not duplicates of each other", action: models.ActionFalsePositive, args: requireAtLeastArgs(2, "at least two hashes are required")},
	{use: "king <hash>", short: "Make a file the king of its duplicate group", action: models.ActionSetKing, args: requireOneHash},
	{use: "dissolve <hash>...", short: "Dissolve the duplicate groups of the given files", action: models.ActionDissolveDuplicateGroup, args: requireAtLeastOneHash},
	{use: "remove <hash>...", short: "Remove files from their duplicate groups", action: models.ActionRemoveFromDuplicateGroup, args: requireAtLeastOneHash},
	{use: "dissolve-alternates <hash>...", short: "Dissolve the alternate groups of the given files", action: models.ActionDissolveAlternateGroup, args: requireAtLeastOneHash},
	{use: "remove-alternates <hash>...", short: "Remove files from their alternate groups", action: models.ActionRemoveFromAlternateGroup, args: requireAtLeastOneHash},
	{use: "clear-false-positives <hash>...", short: "Clear false-positive links of the given files", action: models.ActionClearFalsePositives, args: requireAtLeastOneHash},
}

func newDupCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dup",
		Short: "Record duplicate decisions",
	}
	for _, def := range dupCmdDefs {
		cmd.AddCommand(newDecisionCmd(cfg, jsonOutput, def))
	}
	return cmd
}

func newDecisionCmd(cfg *config.Config, jsonOutput *bool, def decisionCmdDef) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   def.use,
		Short: def.short,
		Args:  def.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.DecisionRequest{Action: def.action, Hashes: args}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ApplyDecision(cmd.Context(), req, yes)
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

	if def.action.IsDestructive() {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the destructive action")
	}
	return cmd
}
