// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/apiclient"
	"github.com/tomtom215/intentd/internal/cli/output"
	"github.com/tomtom215/intentd/internal/models"
)

func newCommitCmd() *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Commit a record across the cluster",
		Long: `Ask the node to coordinate a two-phase commit of one record with its peers.

The record should already be in the WAL of every node, for example through
"intentctl append" or the ingest loop. When quorum is not reached the
transaction id is printed so that it can be released with "intentctl abort".

Examples:
  intentctl commit --op WRITE --path /srv/data/report.csv --user alice
  intentctl commit --op RENAME --path /srv/a --to /srv/b`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := rf.record()
			if err != nil {
				return err
			}
			out, err := clientFrom(cmd).Commit(cmd.Context(), rec)
			if err != nil {
				if apiclient.IsQuorumError(err) {
					return fmt.Errorf("commit not applied: %w\nrelease prepared peers with: intentctl abort --txn %v --op %s --path %s",
						err, txnFromError(err), rec.Operation, rec.Path)
				}
				return fmt.Errorf("commit failed: %w", err)
			}
			return renderOutcome(cmd, out)
		},
	}
	rf.register(cmd)
	return cmd
}

func txnFromError(err error) interface{} {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		if id, ok := apiErr.Details["transaction_id"]; ok {
			return id
		}
	}
	return "<id>"
}

func renderOutcome(cmd *cobra.Command, out *models.CommitOutcome) error {
	format, err := formatFrom(cmd)
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, out)
	}
	return output.PrintKeyValue(cmd.OutOrStdout(), output.KeyValue{
		{"Transaction", out.TransactionID},
		{"Peers", strconv.Itoa(out.Peers)},
		{"Prepared", strconv.Itoa(out.PrepareOKs)},
		{"Committed", strconv.Itoa(out.CommitOKs)},
		{"Local WAL marked", yesNo(out.LocalMarked)},
		{"Duration", strconv.FormatInt(out.DurationMS, 10) + "ms"},
	})
}
