// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/cli/output"
)

func newAbortCmd() *cobra.Command {
	var (
		rf  recordFlags
		txn string
	)
	cmd := &cobra.Command{
		Use:   "abort",
		Short: "Release a transaction on every peer",
		Long: `Broadcast an abort to every peer of the node.

Use it after a failed commit to release peers that voted YES. Without
--txn the id derived from the record is aborted.

Examples:
  intentctl abort --txn 6f1c... --op WRITE --path /srv/data/report.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := rf.record()
			if err != nil {
				return err
			}
			out, err := clientFrom(cmd).Abort(cmd.Context(), rec, txn)
			if err != nil {
				return fmt.Errorf("abort failed: %w", err)
			}

			format, err := formatFrom(cmd)
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.Print(cmd.OutOrStdout(), format, out)
			}
			return output.PrintKeyValue(cmd.OutOrStdout(), output.KeyValue{
				{"Transaction", out.TransactionID},
				{"Acks", strconv.Itoa(out.Acks) + "/" + strconv.Itoa(out.Peers)},
				{"Attempts", strconv.Itoa(out.Attempts)},
			})
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&txn, "txn", "", "transaction id to abort")
	return cmd
}
