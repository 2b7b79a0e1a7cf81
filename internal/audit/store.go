// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package audit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const defaultMaxEvents = 10000

// MemoryStore keeps the most recent events in memory. When full it drops
// the oldest tenth in one step so that saves stay amortized O(1).
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

// NewMemoryStore holds at most maxLen events; zero or less means 10000.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = defaultMaxEvents
	}
	return &MemoryStore{events: make([]Event, 0, maxLen), max: maxLen}
}

func (s *MemoryStore) Save(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.max {
		s.events = slices.Delete(s.events, 0, max(s.max/10, 1))
	}
	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.IndexFunc(s.events, func(ev Event) bool { return ev.ID == id })
	if i < 0 {
		return nil, fmt.Errorf("audit event %q not found", id)
	}
	ev := s.events[i]
	return &ev, nil
}

// scan calls fn for each matching event, newest first, until fn returns
// false. Callers hold the read lock.
func (s *MemoryStore) scan(f *QueryFilter, fn func(*Event) bool) {
	for i := len(s.events) - 1; i >= 0; i-- {
		if f.match(&s.events[i]) && !fn(&s.events[i]) {
			return
		}
	}
}

func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Event{}
	s.scan(&filter, func(ev *Event) bool {
		out = append(out, *ev)
		return filter.Limit <= 0 || len(out) < filter.Limit
	})
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	s.scan(&filter, func(*Event) bool { n++; return true })
	return n, nil
}

func (s *MemoryStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.events)
	s.events = slices.DeleteFunc(s.events, func(ev Event) bool {
		return ev.Timestamp.Before(olderThan)
	})
	return int64(before - len(s.events)), nil
}

// Len is the number of events held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// match reports whether ev satisfies every set criterion of f.
func (f *QueryFilter) match(ev *Event) bool {
	switch {
	case len(f.Types) > 0 && !slices.Contains(f.Types, ev.Type),
		len(f.Severities) > 0 && !slices.Contains(f.Severities, ev.Severity),
		len(f.Outcomes) > 0 && !slices.Contains(f.Outcomes, ev.Outcome):
		return false
	case f.ActorID != "" && ev.Actor.ID != f.ActorID,
		f.TargetID != "" && (ev.Target == nil || ev.Target.ID != f.TargetID),
		f.CorrelationID != "" && ev.CorrelationID != f.CorrelationID,
		f.RequestID != "" && ev.RequestID != f.RequestID:
		return false
	case f.StartTime != nil && ev.Timestamp.Before(*f.StartTime),
		f.EndTime != nil && ev.Timestamp.After(*f.EndTime):
		return false
	}

	if f.SearchText == "" {
		return true
	}
	needle := strings.ToLower(f.SearchText)
	return strings.Contains(strings.ToLower(ev.Description), needle) ||
		strings.Contains(strings.ToLower(ev.Action), needle)
}

// Stats summarizes what a store holds.
type Stats struct {
	TotalEvents     int64            `json:"total_events"`
	EventsByType    map[string]int64 `json:"events_by_type"`
	EventsByOutcome map[string]int64 `json:"events_by_outcome"`
	OldestEvent     *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent     *time.Time       `json:"newest_event,omitempty"`
}

// GetStats tallies events by type and outcome.
func (s *MemoryStore) GetStats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{
		TotalEvents:     int64(len(s.events)),
		EventsByType:    map[string]int64{},
		EventsByOutcome: map[string]int64{},
	}
	for i := range s.events {
		ev := &s.events[i]
		st.EventsByType[string(ev.Type)]++
		st.EventsByOutcome[string(ev.Outcome)]++

		ts := ev.Timestamp
		if st.OldestEvent == nil || ts.Before(*st.OldestEvent) {
			st.OldestEvent = &ts
		}
		if st.NewestEvent == nil || ts.After(*st.NewestEvent) {
			st.NewestEvent = &ts
		}
	}
	return st, nil
}
