// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/cli/output"
	"github.com/tomtom215/intentd/internal/policy"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage the node's admission policy",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Re-read the policy file on the node",
		Long: `Make the node re-read its policy file. A broken file is reported and
the node keeps the previous policy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := clientFrom(cmd).ReloadPolicy(cmd.Context())
			if err != nil {
				return fmt.Errorf("policy reload failed: %w", err)
			}
			if f, _ := formatFrom(cmd); f != output.FormatTable {
				return render(cmd, res)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reloaded %s at %s\n\n", res.Path, res.LoadedAt.Local().Format(time.DateTime))
			return render(cmd, RuleList(res.Policy))
		},
	})
	return cmd
}

// RuleList renders a policy document as one row per dimension.
type RuleList policy.Document

func (rl RuleList) Headers() []string {
	return []string{"DIMENSION", "ALLOW", "DENY"}
}

func (rl RuleList) Rows() [][]string {
	row := func(name string, r policy.Rules) []string {
		return []string{name, output.EmptyOr(strings.Join(r.Allow, ", "), "-"), output.EmptyOr(strings.Join(r.Deny, ", "), "-")}
	}
	return [][]string{
		row("extensions", rl.Extensions),
		row("paths", rl.Paths),
		row("users", rl.Users),
		row("operations", rl.Operations),
	}
}
