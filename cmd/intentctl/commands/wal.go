// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/cli/output"
	"github.com/tomtom215/intentd/internal/models"
)

func newWALCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "wal",
		Short: "List the records of the node's WAL",
		Long: `List every record of the node's active WAL file in append order.

Examples:
  intentctl wal
  intentctl wal --pending
  intentctl wal -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := clientFrom(cmd).WAL(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read WAL: %w", err)
			}
			if pending {
				kept := records[:0]
				for _, r := range records {
					if !r.Committed {
						kept = append(kept, r)
					}
				}
				records = kept
			}
			if len(records) == 0 {
				if f, _ := formatFrom(cmd); f == output.FormatTable {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No records.")
					return nil
				}
			}
			return render(cmd, RecordList(records))
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only show uncommitted records")
	return cmd
}

// RecordList renders WAL records as a table.
type RecordList []models.Record

func (rl RecordList) Headers() []string {
	return []string{"OPERATION", "PATH", "TO", "USER", "COMMITTED", "LOGGED"}
}

func (rl RecordList) Rows() [][]string {
	rows := make([][]string, 0, len(rl))
	for _, r := range rl {
		logged := "-"
		if !r.LoggedAt.IsZero() {
			logged = r.LoggedAt.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			r.Operation.String(),
			r.Path,
			output.EmptyOr(r.SecondaryPath, "-"),
			output.EmptyOr(r.User, "-"),
			yesNo(r.Committed),
			logged,
		})
	}
	return rows
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
