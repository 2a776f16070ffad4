// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// actionctl calls the actions of a running endpoint from the command line.
package main

import (
	"os"

	"github.com/google/actionrpc/cmd/actionctl/command/call"
	"github.com/google/actionrpc/cmd/actionctl/command/submit"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "actionctl",
	Short: "A client for server action endpoints",
}

func init() {
	rootCmd.AddCommand(call.Command())
	rootCmd.AddCommand(submit.Command())
}

func main() {
	// Subcommands report their own failures.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
