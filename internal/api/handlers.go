// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"time"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/policy"
	"github.com/tomtom215/intentd/internal/registry"
	"github.com/tomtom215/intentd/internal/twopc"
	"github.com/tomtom215/intentd/internal/wal"
)

// ArchiveLister is implemented by WAL stores that rotate into archives.
type ArchiveLister interface {
	ArchiveFiles() ([]string, error)
}

// Dependencies are the components a Handler serves. Monitor, Audit and
// Policy may be nil.
type Dependencies struct {
	NodeID  string
	Version string

	WAL         wal.Store
	Registry    registry.Registry
	Participant *twopc.Participant
	Coordinator *twopc.Coordinator
	Peers       []string

	Policy  *policy.Store
	Filter  *policy.Filter
	Monitor *twopc.PeerMonitor
	Audit   *audit.Logger
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates a handler over deps.
func NewHandler(deps Dependencies) *Handler {
	if deps.Filter == nil && deps.Policy != nil {
		deps.Filter = policy.NewFilter(deps.Policy)
	}
	return &Handler{deps: deps, startTime: time.Now()}
}
