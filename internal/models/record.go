// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package models

import (
	"time"
)

// Record is one logged filesystem intent, stored as a single JSON line in
// the WAL and carried verbatim in every 2PC message.
//
// Identity is (Operation, Path, SecondaryPath). User, Committed and
// LoggedAt never take part in matching.
type Record struct {
	Operation     Operation `json:"operation" validate:"required,operation"`
	Path          string    `json:"path" validate:"required,max=4096"`
	SecondaryPath string    `json:"secondary_path,omitempty" validate:"omitempty,max=4096"`
	User          string    `json:"user,omitempty" validate:"omitempty,max=256"`
	Committed     bool      `json:"committed"`
	LoggedAt      time.Time `json:"logged_at,omitempty"`
}

// RecordIdentity is the matching key of a Record.
type RecordIdentity struct {
	Operation     Operation
	Path          string
	SecondaryPath string
}

// Identity returns the matching key of r.
func (r *Record) Identity() RecordIdentity {
	return RecordIdentity{
		Operation:     r.Operation,
		Path:          r.Path,
		SecondaryPath: r.SecondaryPath,
	}
}

// SameIdentity reports whether r and other describe the same intent.
func (r *Record) SameIdentity(other *Record) bool {
	return r.Identity() == other.Identity()
}

// CommitOutcome is the payload of a successful POST /commit.
type CommitOutcome struct {
	TransactionID string `json:"transaction_id"`
	Peers         int    `json:"peers"`
	PrepareOKs    int    `json:"prepare_oks"`
	CommitOKs     int    `json:"commit_oks"`
	LocalMarked   bool   `json:"local_marked"`
	DurationMS    int64  `json:"duration_ms"`
}

// PeerStatus is one row of GET /api/v1/peers.
type PeerStatus struct {
	URL       string    `json:"url"`
	Healthy   bool      `json:"healthy"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
