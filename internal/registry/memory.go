// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package registry

import (
	"context"
	"sync"
	"time"
)

type memoryRow struct {
	state   State
	updated time.Time
}

// MemoryRegistry keeps rows in a map under one mutex.
type MemoryRegistry struct {
	mu     sync.Mutex
	rows   map[string]memoryRow
	ttl    time.Duration
	now    func() time.Time
	closed bool
}

// NewMemoryRegistry returns an empty registry. ttl 0 disables expiry.
func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		rows: make(map[string]memoryRow),
		ttl:  ttl,
		now:  time.Now,
	}
}

// liveLocked returns the row for id if it exists and has not expired.
func (r *MemoryRegistry) liveLocked(id string) (memoryRow, bool) {
	row, ok := r.rows[id]
	if !ok {
		return memoryRow{}, false
	}
	if expired(row.updated, r.now(), r.ttl) {
		delete(r.rows, id)
		liveRows.Set(float64(len(r.rows)))
		return memoryRow{}, false
	}
	return row, true
}

func (r *MemoryRegistry) setLocked(id string, s State) {
	r.rows[id] = memoryRow{state: s, updated: r.now()}
	liveRows.Set(float64(len(r.rows)))
	recordTransition(s)
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, id string) (State, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return StateUnknown, false, ErrClosed
	}
	row, ok := r.liveLocked(id)
	return row.state, ok, nil
}

// SetPrepared implements Registry.
func (r *MemoryRegistry) SetPrepared(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.setLocked(id, StatePrepared)
	return nil
}

// SetCommittedIfPrepared implements Registry.
func (r *MemoryRegistry) SetCommittedIfPrepared(_ context.Context, id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return StateUnknown, ErrClosed
	}

	row, ok := r.liveLocked(id)
	if !ok || row.state != StatePrepared {
		conflictsTotal.Inc()
		return row.state, ErrNotPrepared
	}
	r.setLocked(id, StateCommitted)
	return StatePrepared, nil
}

// SetAborted implements Registry.
func (r *MemoryRegistry) SetAborted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.setLocked(id, StateAborted)
	return nil
}

// Sweep implements Registry.
func (r *MemoryRegistry) Sweep(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	if r.ttl <= 0 {
		return 0, nil
	}

	now := r.now()
	removed := 0
	for id, row := range r.rows {
		if expired(row.updated, now, r.ttl) {
			delete(r.rows, id)
			removed++
		}
	}
	liveRows.Set(float64(len(r.rows)))
	sweptTotal.Add(float64(removed))
	return removed, nil
}

// Len implements Registry.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Close implements Registry.
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.rows = make(map[string]memoryRow)
	return nil
}
