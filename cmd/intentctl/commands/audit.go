// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/apiclient"
	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/cli/output"
)

func newAuditCmd() *cobra.Command {
	var q apiclient.AuditQuery
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the node's audit log",
		Long: `List audit events, newest first.

Examples:
  # Every vote of one transaction
  intentctl audit --txn 6f1c...

  # Quorum failures only
  intentctl audit --type quorum.failed --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := clientFrom(cmd).Audit(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("failed to query audit log: %w", err)
			}
			if f, _ := formatFrom(cmd); f != output.FormatTable {
				return render(cmd, res)
			}
			if err := render(cmd, EventList(res.Events)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d events\n", len(res.Events), res.Total)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&q.Types, "type", nil, "event types, e.g. commit.conflict,quorum.failed")
	cmd.Flags().StringVar(&q.CorrelationID, "txn", "", "transaction id")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum events (1-1000)")
	return cmd
}

// EventList renders audit events as a table.
type EventList []audit.Event

func (el EventList) Headers() []string {
	return []string{"TIME", "TYPE", "SEVERITY", "OUTCOME", "TRANSACTION", "DESCRIPTION"}
}

func (el EventList) Rows() [][]string {
	rows := make([][]string, 0, len(el))
	for _, e := range el {
		rows = append(rows, []string{
			e.Timestamp.Local().Format(time.DateTime),
			string(e.Type),
			string(e.Severity),
			string(e.Outcome),
			output.EmptyOr(e.CorrelationID, "-"),
			e.Description,
		})
	}
	return rows
}
