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
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show node health and WAL counters",
		Long: `Display the health of the node together with its WAL counters.

Examples:
  intentctl status
  intentctl status -o json`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

// nodeStatus is the combined result of /health and /api/v1/wal/stats.
type nodeStatus struct {
	Server         string   `json:"server"`
	Status         string   `json:"status"`
	NodeID         string   `json:"node_id"`
	Version        string   `json:"version"`
	Uptime         string   `json:"uptime"`
	Peers          int      `json:"peers"`
	Appends        int64    `json:"appends"`
	CommitsMarked  int64    `json:"commits_marked"`
	Rotations      int64    `json:"rotations"`
	MalformedLines int64    `json:"malformed_lines"`
	ArchivedOpen   int64    `json:"archived_uncommitted"`
	ActiveBytes    int64    `json:"active_bytes"`
	Archives       []string `json:"archives"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	client := clientFrom(cmd)
	ctx := cmd.Context()

	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("node unreachable: %w", err)
	}
	stats, err := client.WALStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read WAL stats: %w", err)
	}

	server, _ := cmd.Flags().GetString("server")
	st := nodeStatus{
		Server:         server,
		Status:         health.Status,
		NodeID:         health.NodeID,
		Version:        health.Version,
		Uptime:         (time.Duration(health.UptimeSeconds) * time.Second).String(),
		Peers:          health.Peers,
		Appends:        stats.Stats.Appends,
		CommitsMarked:  stats.Stats.CommitsMarked,
		Rotations:      stats.Stats.Rotations,
		MalformedLines: stats.Stats.MalformedLines,
		ArchivedOpen:   stats.Stats.ArchivedUncommitted,
		ActiveBytes:    stats.Stats.ActiveBytes,
		Archives:       stats.Archives,
	}

	format, err := formatFrom(cmd)
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, st)
	}
	return output.PrintKeyValue(cmd.OutOrStdout(), output.KeyValue{
		{"Server", st.Server},
		{"Status", st.Status},
		{"Node", output.EmptyOr(st.NodeID, "-")},
		{"Version", output.EmptyOr(st.Version, "-")},
		{"Uptime", st.Uptime},
		{"Peers", strconv.Itoa(st.Peers)},
		{"Appends", strconv.FormatInt(st.Appends, 10)},
		{"Commits marked", strconv.FormatInt(st.CommitsMarked, 10)},
		{"Rotations", strconv.FormatInt(st.Rotations, 10)},
		{"Malformed lines", strconv.FormatInt(st.MalformedLines, 10)},
		{"Archived uncommitted", strconv.FormatInt(st.ArchivedOpen, 10)},
		{"Active bytes", strconv.FormatInt(st.ActiveBytes, 10)},
		{"Archives", strconv.Itoa(len(st.Archives))},
	})
}
