// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/apiclient"
	"github.com/tomtom215/intentd/internal/cli/output"
)

func newTxnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "txn <id>",
		Short: "Show the node's registry state of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFrom(cmd).Transaction(cmd.Context(), args[0])
			if apiclient.IsNotFound(err) {
				return fmt.Errorf("transaction %s is unknown to this node", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read transaction: %w", err)
			}
			if f, _ := formatFrom(cmd); f != output.FormatTable {
				return render(cmd, res)
			}
			return output.PrintKeyValue(cmd.OutOrStdout(), output.KeyValue{
				{"Transaction", res.ID},
				{"State", res.State},
			})
		},
	}
}
