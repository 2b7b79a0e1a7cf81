// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/intentd/internal/cli/output"
	"github.com/tomtom215/intentd/internal/models"
)

func newPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "Show the node's view of its peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			peers, err := clientFrom(cmd).Peers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list peers: %w", err)
			}
			return render(cmd, PeerList(peers))
		},
	}
}

// PeerList renders peer statuses as a table.
type PeerList []models.PeerStatus

func (pl PeerList) Headers() []string {
	return []string{"PEER", "HEALTHY", "ATTEMPTS", "CHECKED", "ERROR"}
}

func (pl PeerList) Rows() [][]string {
	rows := make([][]string, 0, len(pl))
	for _, p := range pl {
		checked := "never"
		if !p.CheckedAt.IsZero() {
			checked = time.Since(p.CheckedAt).Round(time.Second).String() + " ago"
		}
		rows = append(rows, []string{
			p.URL,
			yesNo(p.Healthy),
			strconv.Itoa(p.Attempts),
			checked,
			output.EmptyOr(p.Error, "-"),
		})
	}
	return rows
}
