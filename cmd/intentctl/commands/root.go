// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package commands implements the intentctl command tree.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/apiclient"
	"github.com/tomtom215/intentd/internal/cli/output"
)

// Version is injected at build time.
var Version = "dev"

// ServerEnvVar overrides the default --server value.
const ServerEnvVar = "INTENTD_URL"

// NewRootCmd builds the full command tree. Each call returns a fresh tree
// so that tests do not share flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intentctl",
		Short: "intentd control - inspect and drive an intentd node",
		Long: `intentctl talks to the client-facing HTTP API of one intentd node.

Use it to read the intent log, submit records for cluster-wide commit,
release stuck transactions and inspect peers and audit events.

The node URL comes from --server, then $INTENTD_URL, then
http://localhost:7070.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv(ServerEnvVar)
	if defaultServer == "" {
		defaultServer = "http://localhost:7070"
	}
	root.PersistentFlags().String("server", defaultServer, "intentd node URL")
	root.PersistentFlags().Duration("timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")

	root.AddCommand(
		newStatusCmd(),
		newWALCmd(),
		newCommitCmd(),
		newAppendCmd(),
		newAbortCmd(),
		newPeersCmd(),
		newAuditCmd(),
		newTxnCmd(),
		newPolicyCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// PrintErr prints to stderr.
func PrintErr(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func clientFrom(cmd *cobra.Command) *apiclient.Client {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return apiclient.New(server, timeout)
}

func formatFrom(cmd *cobra.Command) (output.Format, error) {
	raw, _ := cmd.Flags().GetString("output")
	return output.ParseFormat(raw)
}

// render prints data in the format chosen by --output.
func render(cmd *cobra.Command, data any) error {
	format, err := formatFrom(cmd)
	if err != nil {
		return err
	}
	return output.Print(cmd.OutOrStdout(), format, data)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the intentctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "intentctl %s\n", Version)
		},
	}
}
