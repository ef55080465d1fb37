package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dupegraph/internal/api"
	"dupegraph/internal/config"
	"dupegraph/internal/models"
)

type decisionFile struct {
	Decisions []models.Decision `yaml:"decisions"`
}

func newApplyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		path string
		yes  bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply decisions from a YAML file in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("-f is required (use - for stdin)")
			}
			decisions, err := readDecisionFile(path)
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				results := make([]api.DecisionResponse, 0, len(decisions))
				for i, decision := range decisions {
					resp, err := client.ApplyDecision(cmd.Context(), decision, yes)
					if err != nil {
						return applyFailure(i, decision, err)
					}
					results = append(results, resp)
				}
				if *jsonOutput {
					return writeJSON(results)
				}
				for _, resp := range results {
					if err := writeResult(resp); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML file with a decisions list")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm destructive decisions")
	return cmd
}

// applyFailure names the failing decision. Decisions before it stay applied.
func applyFailure(index int, decision models.Decision, err error) error {
	var reason string
	switch {
	case api.IsConfirmationRequired(err):
		reason = "destructive, pass --yes"
	case api.IsConflict(err):
		reason = "expect list is stale"
	case api.IsInvalidRelationship(err):
		reason = "contradicts the relationship graph"
	default:
		return fmt.Errorf("decision %d (%s), %d applied before it: %w", index+1, decision.Action, index, err)
	}
	return fmt.Errorf("decision %d (%s) %s, %d applied before it: %w", index+1, decision.Action, reason, index, err)
}

// readDecisionFile accepts either a top-level list of decisions or a
// document with a decisions key.
func readDecisionFile(path string) ([]models.Decision, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var list []models.Decision
	if err := yaml.Unmarshal(raw, &list); err == nil {
		return requireDecisions(list)
	}
	var doc decisionFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return requireDecisions(doc.Decisions)
}

func requireDecisions(list []models.Decision) ([]models.Decision, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("no decisions found")
	}
	return list, nil
}
