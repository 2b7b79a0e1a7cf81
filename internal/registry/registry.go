// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package registry tracks the participant-side 2PC state of each
// transaction id: Prepared, Committed or Aborted.
//
// Rows expire after a configurable TTL so that abandoned transactions do
// not accumulate forever. An expired row reads as never seen.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// State is the participant state of one transaction.
type State string

const (
	// StateUnknown means no row exists for the id.
	StateUnknown   State = ""
	StatePrepared  State = "PREPARED"
	StateCommitted State = "COMMITTED"
	StateAborted   State = "ABORTED"
)

func (s State) String() string {
	if s == StateUnknown {
		return "UNKNOWN"
	}
	return string(s)
}

var (
	// ErrNotPrepared is returned by SetCommittedIfPrepared when the row is
	// absent, Committed or Aborted.
	ErrNotPrepared = errors.New("transaction is not prepared")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry is closed")
)

// Registry is a concurrency-safe map from transaction id to State.
// Every method is atomic with respect to concurrent callers.
type Registry interface {
	// Get returns the state of id and whether a live row exists.
	Get(ctx context.Context, id string) (State, bool, error)

	// SetPrepared inserts or overwrites id as Prepared.
	SetPrepared(ctx context.Context, id string) error

	// SetCommittedIfPrepared moves id from Prepared to Committed. Any
	// other current state leaves the row untouched and returns that state
	// with ErrNotPrepared.
	SetCommittedIfPrepared(ctx context.Context, id string) (State, error)

	// SetAborted unconditionally writes Aborted.
	SetAborted(ctx context.Context, id string) error

	// Sweep drops expired rows and reports how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Len returns the number of live rows.
	Len() int

	Close() error
}

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_transitions_total",
		Help: "Transaction state transitions by target state",
	}, []string{"state"})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_commit_conflicts_total",
		Help: "Commit attempts on transactions that were not prepared",
	})

	sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_swept_total",
		Help: "Expired transaction rows removed by the sweeper",
	})

	liveRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_live_transactions",
		Help: "Transaction rows currently held",
	})
)

func recordTransition(s State) {
	transitionsTotal.WithLabelValues(s.String()).Inc()
}

// expired reports whether a row written at updated has outlived ttl.
// A zero ttl never expires.
func expired(updated, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(updated) > ttl
}
