package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dupegraph/internal/config"
	"dupegraph/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		yamlOutput bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "dupegraph",
		Short:         "dupegraph tracks duplicate, alternate and false-positive relationships between files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if jsonOutput && yamlOutput {
				return fmt.Errorf("--json and --yaml are mutually exclusive")
			}
			if yamlOutput {
				outputFormatter = format.YAMLFormatter{}
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newFileCmd(cfg, &jsonOutput),
		newSearchCmd(cfg, &jsonOutput),
		newDupCmd(cfg, &jsonOutput),
		newPotentialCmd(cfg, &jsonOutput),
		newApplyCmd(cfg, &jsonOutput),
		newLogCmd(cfg, &jsonOutput),
		newExportCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
	)

	return cmd
}
