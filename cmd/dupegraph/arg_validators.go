package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireAtLeastOneHash(cmd *cobra.Command, args []string) error {
	return requireAtLeastArgs(1, "hash is required")(cmd, args)
}

func requireOneHash(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(1, "exactly one hash is required")(cmd, args)
}

func requireTwoHashes(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(2, "exactly two hashes are required")(cmd, args)
}
