// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package ingest turns raw file events into WAL records. Events pass the
// policy filter before they are appended.
package ingest

import (
	"sync"

	"github.com/tomtom215/intentd/internal/models"
)

// Event is one raw filesystem change.
type Event struct {
	Operation     models.Operation
	Path          string
	SecondaryPath string
	User          string
}

// Record converts e to an uncommitted WAL record.
func (e Event) Record() *models.Record {
	return &models.Record{
		Operation:     e.Operation,
		Path:          e.Path,
		SecondaryPath: e.SecondaryPath,
		User:          e.User,
	}
}

// Source produces events until it is closed. Both channels are closed
// when the source stops.
type Source interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// ChannelSource is an in-process Source fed through Emit.
type ChannelSource struct {
	events chan Event
	errors chan error

	mu     sync.Mutex
	closed bool
}

// NewChannelSource returns a source with the given buffer.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		events: make(chan Event, buffer),
		errors: make(chan error, 1),
	}
}

// Emit queues ev. It reports false once the source is closed.
func (s *ChannelSource) Emit(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

// Fail reports a source error without blocking. It is dropped when one is
// already pending.
func (s *ChannelSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.errors <- err:
	default:
	}
}

func (s *ChannelSource) Events() <-chan Event { return s.events }
func (s *ChannelSource) Errors() <-chan error { return s.errors }

// Close closes both channels. It is safe to call more than once.
func (s *ChannelSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
		close(s.errors)
	}
	return nil
}
