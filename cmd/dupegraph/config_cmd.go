package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dupegraph/internal/auth"
	"dupegraph/internal/config"
)

// configEnvOverrides names the environment variables that win over a key
// written with config set.
var configEnvOverrides = map[string]string{
	"api_url":   "DUPEGRAPH_API_URL",
	"db_path":   "DUPEGRAPH_DB",
	"log_level": logLevelEnvKey,
}

func newConfigCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get, list or set configuration",
	}

	cmd.AddCommand(newConfigGetCmd(cfg))
	cmd.AddCommand(newConfigListCmd(cfg, jsonOutput))
	cmd.AddCommand(newConfigSetCmd())
	return cmd
}

func newConfigGetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !config.IsAllowedKey(key) {
				return fmt.Errorf("unknown key: %s (allowed: %v)", key, config.AllowedKeys())
			}
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			return writePlain("%s\n", value)
		},
	}
}

type configEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

func newConfigListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List effective config values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := configEntries(cfg)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(entries)
			}
			lines := make([]string, 0, len(entries))
			for _, entry := range entries {
				lines = append(lines, fmt.Sprintf("%s = %s", entry.Key, entry.Value))
			}
			return writeLines(lines)
		},
	}
}

// configEntries returns every key in AllowedKeys order. The token hash is
// reported only as set or unset.
func configEntries(cfg *config.Config) ([]configEntry, error) {
	entries := make([]configEntry, 0, len(config.AllowedKeys()))
	for _, key := range config.AllowedKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			return nil, err
		}
		if key == "auth.token_hash" {
			if value == "" {
				value = "(unset)"
			} else {
				value = "(set)"
			}
		}
		entries = append(entries, configEntry{Key: key, Value: value})
	}
	return entries, nil
}

func newConfigSetCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if key == "auth.token_hash" {
				if err := auth.ValidateTokenHash(value); err != nil {
					return fmt.Errorf("%w (use the hash printed by: dupegraph admin token)", err)
				}
			}

			var path string
			var err error
			if global {
				path, err = config.GlobalPath()
			} else {
				path, err = config.ProjectPath()
			}
			if err != nil {
				return err
			}

			if err := config.SetKey(path, key, value); err != nil {
				return err
			}
			if env, ok := configEnvOverrides[key]; ok && os.Getenv(env) != "" {
				fmt.Fprintf(os.Stderr, "note: %s is set and overrides %s\n", env, key)
			}
			return writePlain("%s = %s (%s)\n", key, value, path)
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "write to global config (~/.dupegraph.toml)")
	return cmd
}
