// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package audit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

func newTestLogger(t *testing.T, cfg *Config) (*Logger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(100)
	l := NewLogger(store, cfg)
	return l, store
}

func TestLogger_Log(t *testing.T) {
	logger, store := newTestLogger(t, &Config{Enabled: true, LogLevel: SeverityInfo, BufferSize: 10, NodeID: "node-a"})

	logger.Log(&Event{
		Type:        EventTypeAbortRecorded,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "abort",
		Description: "Recorded abort",
	})
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	events, err := store.Query(context.Background(), QueryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Error("ID and timestamp must be filled in")
	}
	if ev.Actor.ID != "node-a" || ev.Actor.Type != "node" {
		t.Errorf("actor = %+v, want node-a/node", ev.Actor)
	}
}

func TestLogger_Disabled(t *testing.T) {
	logger, store := newTestLogger(t, &Config{Enabled: false, BufferSize: 10})
	logger.Log(&Event{Type: EventTypeAbortRecorded, Severity: SeverityInfo})
	_ = logger.Close()

	if store.Len() != 0 {
		t.Error("disabled logger should not log events")
	}
}

func TestLogger_SeverityFiltering(t *testing.T) {
	logger, store := newTestLogger(t, &Config{Enabled: true, LogLevel: SeverityWarning, BufferSize: 10})

	logger.Log(&Event{Type: EventTypeCommitApplied, Severity: SeverityInfo})
	logger.Log(&Event{Type: EventTypeCommitConflict, Severity: SeverityWarning})
	logger.Log(&Event{Type: EventTypeQuorumFailed, Severity: SeverityCritical})
	_ = logger.Close()

	if store.Len() != 2 {
		t.Errorf("expected 2 events (warning + critical), got %d", store.Len())
	}
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	l.Log(&Event{Type: EventTypeAbortRecorded})
	l.LogAbort(context.Background(), "t", &models.Record{Operation: models.OpCreate, Path: "/a"})
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil logger = %v", err)
	}
	if events, err := l.Query(context.Background(), DefaultQueryFilter()); err != nil || len(events) != 0 {
		t.Errorf("Query on nil logger = %v, %v", events, err)
	}
}

func TestLogger_CloseTwice(t *testing.T) {
	logger, _ := newTestLogger(t, nil)
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestProtocolHelpers(t *testing.T) {
	logger, store := newTestLogger(t, &Config{Enabled: true, LogLevel: SeverityDebug, BufferSize: 50, NodeID: "n1"})
	rec := &models.Record{Operation: models.OpRename, Path: "/a", SecondaryPath: "/b", User: "alice"}
	ctx := logging.ContextWithRequestID(context.Background(), "req-1")

	logger.LogPrepare(ctx, "txn-1", rec, nil)
	logger.LogPrepare(ctx, "txn-2", rec, errors.New("empty path"))
	logger.LogCommit(ctx, "txn-1", rec, EventTypeCommitApplied, nil)
	logger.LogCommit(ctx, "txn-2", rec, EventTypeCommitConflict, nil)
	logger.LogCommit(ctx, "txn-3", rec, EventTypeCommitFailed, errors.New("disk full"))
	logger.LogAbort(ctx, "txn-2", rec)
	logger.LogPeerFailure(ctx, "txn-1", "http://c:7070", "prepare", false, errors.New("timeout"))
	logger.LogPeerFailure(ctx, "txn-1", "http://b:7070", "commit", true, nil)
	logger.LogQuorum(ctx, "txn-1", "prepare", 1, 3, 5, false)
	logger.LogPolicyRejected(ctx, rec, "deny_user")
	logger.LogRecovery(ctx, 10, 3, 2, 1, time.Second)
	_ = logger.Close()

	bg := context.Background()
	if n, _ := store.Count(bg, QueryFilter{CorrelationID: "txn-1"}); n != 5 {
		t.Errorf("events for txn-1 = %d, want 5", n)
	}
	if n, _ := store.Count(bg, QueryFilter{RequestID: "req-1"}); n != 11 {
		t.Errorf("events with request id = %d, want 11", n)
	}

	failed, _ := store.Query(bg, QueryFilter{Types: []EventType{EventTypeQuorumFailed}})
	if len(failed) != 1 || failed[0].Severity != SeverityCritical {
		t.Fatalf("quorum.failed events = %+v", failed)
	}
	var meta map[string]int
	if err := json.Unmarshal(failed[0].Metadata, &meta); err != nil {
		t.Fatal(err)
	}
	if meta["oks"] != 1 || meta["peers"] != 3 || meta["attempts"] != 5 {
		t.Errorf("quorum metadata = %v", meta)
	}

	conflicts, _ := store.Query(bg, QueryFilter{Types: []EventType{EventTypePeerConflict}})
	if len(conflicts) != 1 || conflicts[0].Target.ID != "http://b:7070" {
		t.Errorf("peer conflict events = %+v", conflicts)
	}

	rejected, _ := store.Query(bg, QueryFilter{Types: []EventType{EventTypePrepareRejected}})
	if len(rejected) != 1 || rejected[0].Outcome != OutcomeFailure {
		t.Errorf("prepare rejected events = %+v", rejected)
	}

	if n, _ := store.Count(bg, QueryFilter{SearchText: "DISK FULL"}); n != 1 {
		t.Errorf("text search matched %d, want 1", n)
	}
}

func TestMemoryStoreBounded(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		_ = store.Save(ctx, &Event{ID: string(rune('a' + i)), Timestamp: time.Now()})
	}
	if store.Len() > 10 {
		t.Errorf("Len = %d, want <= 10", store.Len())
	}
	events, _ := store.Query(ctx, QueryFilter{Limit: 1})
	if len(events) != 1 || events[0].ID != string(rune('a'+24)) {
		t.Errorf("newest event = %+v", events)
	}
}

func TestMemoryStoreDeleteAndStats(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	_ = store.Save(ctx, &Event{ID: "old", Type: EventTypeCommitApplied, Outcome: OutcomeSuccess, Timestamp: old})
	_ = store.Save(ctx, &Event{ID: "new", Type: EventTypeCommitConflict, Outcome: OutcomeFailure, Timestamp: time.Now()})

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEvents != 2 || stats.EventsByOutcome["failure"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	n, err := store.Delete(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Delete = (%d, %v), want (1, nil)", n, err)
	}
	if _, err := store.Get(ctx, "old"); err == nil {
		t.Error("old event should be gone")
	}
	if _, err := store.Get(ctx, "new"); err != nil {
		t.Errorf("new event missing: %v", err)
	}
}

func TestSourceFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/v1/policy/reload", nil)
	r.Header.Set("X-Real-IP", "10.0.0.9")
	r.Header.Set("User-Agent", "intentctl")

	src := SourceFromRequest(r)
	if src.IPAddress != "10.0.0.9" || src.UserAgent != "intentctl" {
		t.Errorf("source = %+v", src)
	}

	ctx := ContextWithSource(context.Background(), src)
	if SourceFromContext(ctx) != src {
		t.Error("source did not round-trip through context")
	}
}
