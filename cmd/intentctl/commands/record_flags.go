// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/models"
)

// recordFlags are the record fields shared by commit, append and abort.
type recordFlags struct {
	op        string
	path      string
	secondary string
	user      string
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.op, "op", "", "operation (CREATE, WRITE, DELETE, RENAME, MKDIR, RMDIR, OTHER)")
	cmd.Flags().StringVar(&f.path, "path", "", "primary path")
	cmd.Flags().StringVar(&f.secondary, "to", "", "secondary path, the rename target")
	cmd.Flags().StringVar(&f.user, "user", "", "user that issued the operation")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("path")
}

func (f *recordFlags) record() (*models.Record, error) {
	op, err := models.ParseOperation(strings.ToUpper(f.op))
	if err != nil {
		return nil, fmt.Errorf("--op: %w", err)
	}
	return &models.Record{
		Operation:     op,
		Path:          f.path,
		SecondaryPath: f.secondary,
		User:          f.user,
	}, nil
}
