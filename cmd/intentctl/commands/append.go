// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAppendCmd() *cobra.Command {
	var rf recordFlags
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Log a record on the node without replicating it",
		Long: `Append one record to the node's WAL after the admission policy admits it.

Examples:
  intentctl append --op CREATE --path /srv/data/new.txt --user alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := rf.record()
			if err != nil {
				return err
			}
			logged, err := clientFrom(cmd).Append(cmd.Context(), rec)
			if err != nil {
				return fmt.Errorf("append failed: %w", err)
			}
			return render(cmd, RecordList{*logged})
		},
	}
	rf.register(cmd)
	return cmd
}
