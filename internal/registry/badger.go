// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/logging"
)

const txnKeyPrefix = "txn:"

type badgerRow struct {
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BadgerRegistry persists rows in BadgerDB so that a participant keeps its
// Prepared transactions across restarts. Row expiry uses badger's native
// TTL.
type BadgerRegistry struct {
	db  *badger.DB
	ttl time.Duration

	// mu serializes read-then-write sequences so that concurrent commits
	// never race into badger.ErrConflict.
	mu     sync.Mutex
	closed bool
}

// OpenBadgerRegistry opens (or creates) a registry database at path.
func OpenBadgerRegistry(path string, ttl time.Duration) (*BadgerRegistry, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	r := &BadgerRegistry{db: db, ttl: ttl}
	liveRows.Set(float64(r.Len()))

	logging.Info().Str("path", path).Dur("ttl", ttl).Msg("Transaction registry opened")
	return r, nil
}

// OpenBadgerRegistryInMemory opens an in-memory badger instance for tests.
func OpenBadgerRegistryInMemory(ttl time.Duration) (*BadgerRegistry, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory registry: %w", err)
	}
	return &BadgerRegistry{db: db, ttl: ttl}, nil
}

func txnKey(id string) []byte {
	return []byte(txnKeyPrefix + id)
}

func readRow(txn *badger.Txn, id string) (badgerRow, bool, error) {
	item, err := txn.Get(txnKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return badgerRow{}, false, nil
	}
	if err != nil {
		return badgerRow{}, false, fmt.Errorf("get transaction: %w", err)
	}
	var row badgerRow
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &row)
	}); err != nil {
		return badgerRow{}, false, fmt.Errorf("decode transaction: %w", err)
	}
	return row, true, nil
}

func (r *BadgerRegistry) writeRow(txn *badger.Txn, id string, s State) error {
	data, err := json.Marshal(badgerRow{State: s, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	entry := badger.NewEntry(txnKey(id), data)
	if r.ttl > 0 {
		entry = entry.WithTTL(r.ttl)
	}
	return txn.SetEntry(entry)
}

func (r *BadgerRegistry) set(id string, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	if err := r.db.Update(func(txn *badger.Txn) error {
		return r.writeRow(txn, id, s)
	}); err != nil {
		return err
	}
	recordTransition(s)
	return nil
}

// Get implements Registry.
func (r *BadgerRegistry) Get(_ context.Context, id string) (State, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return StateUnknown, false, ErrClosed
	}

	var (
		row badgerRow
		ok  bool
	)
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		row, ok, err = readRow(txn, id)
		return err
	})
	if err != nil {
		return StateUnknown, false, err
	}
	return row.State, ok, nil
}

// SetPrepared implements Registry.
func (r *BadgerRegistry) SetPrepared(_ context.Context, id string) error {
	return r.set(id, StatePrepared)
}

// SetAborted implements Registry.
func (r *BadgerRegistry) SetAborted(_ context.Context, id string) error {
	return r.set(id, StateAborted)
}

// SetCommittedIfPrepared implements Registry. The read and the write happen
// in one badger transaction.
func (r *BadgerRegistry) SetCommittedIfPrepared(_ context.Context, id string) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return StateUnknown, ErrClosed
	}

	var prev State
	err := r.db.Update(func(txn *badger.Txn) error {
		row, ok, err := readRow(txn, id)
		if err != nil {
			return err
		}
		prev = row.State
		if !ok || row.State != StatePrepared {
			return ErrNotPrepared
		}
		return r.writeRow(txn, id, StateCommitted)
	})
	if errors.Is(err, ErrNotPrepared) {
		conflictsTotal.Inc()
		return prev, ErrNotPrepared
	}
	if err != nil {
		return StateUnknown, err
	}
	recordTransition(StateCommitted)
	return StatePrepared, nil
}

// Sweep implements Registry. Badger drops expired keys by itself; this
// reclaims value log space.
func (r *BadgerRegistry) Sweep(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}

	if !r.db.Opts().InMemory {
		err := r.db.RunValueLogGC(0.5)
		if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			return 0, fmt.Errorf("value log gc: %w", err)
		}
	}
	liveRows.Set(float64(r.countLocked()))
	return 0, nil
}

// Len implements Registry.
func (r *BadgerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	return r.countLocked()
}

func (r *BadgerRegistry) countLocked() int {
	n := 0
	_ = r.db.View(func(txn *badger.Txn) error { //nolint:errcheck // iteration cannot fail
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(txnKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// Close implements Registry.
func (r *BadgerRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}
