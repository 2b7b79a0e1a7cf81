// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/registry"
	"github.com/tomtom215/intentd/internal/wal"
)

func openStore(t *testing.T) *wal.FileStore {
	t.Helper()
	dir := t.TempDir()
	s, err := wal.Open(wal.Config{
		Path:       filepath.Join(dir, "intent.wal"),
		ArchiveDir: filepath.Join(dir, "archive"),
	})
	if err != nil {
		t.Fatalf("wal.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type node struct {
	reg   *registry.MemoryRegistry
	store *wal.FileStore
	audit *audit.MemoryStore
	log   *audit.Logger
	p     *Participant
}

func newNode(t *testing.T) *node {
	t.Helper()
	n := &node{
		reg:   registry.NewMemoryRegistry(0),
		store: openStore(t),
		audit: audit.NewMemoryStore(100),
	}
	n.log = audit.NewLogger(n.audit, &audit.Config{Enabled: true, LogLevel: audit.SeverityDebug, BufferSize: 100})
	t.Cleanup(func() { _ = n.log.Close() })
	n.p = NewParticipant(n.reg, n.store, n.log)
	return n
}

func sample() *models.Record {
	return &models.Record{Operation: models.OpWrite, Path: "/srv/data.bin", User: "alice"}
}

func TestParticipantPrepareCommit(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	rec := sample()
	if err := n.store.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}

	vote, err := n.p.Prepare(ctx, rec, "")
	if err != nil || vote != VoteYes {
		t.Fatalf("Prepare = (%s, %v), want YES", vote, err)
	}
	if s, _, _ := n.reg.Get(ctx, TransactionID(rec)); s != registry.StatePrepared {
		t.Fatalf("state after prepare = %s", s)
	}

	vote, err = n.p.Commit(ctx, rec, "")
	if err != nil || vote != VoteCommitted {
		t.Fatalf("Commit = (%s, %v), want COMMITTED", vote, err)
	}

	records, _ := n.store.ReadAll(ctx)
	if len(records) != 1 || !records[0].Committed {
		t.Errorf("WAL after commit = %+v, want one committed record", records)
	}

	// A second commit is a conflict and leaves the WAL alone.
	vote, err = n.p.Commit(ctx, rec, "")
	if err != nil || vote != VoteNotPrepared {
		t.Errorf("second Commit = (%s, %v), want NOT_PREPARED", vote, err)
	}
}

func TestParticipantCommitWithoutPrepare(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	rec := sample()
	_ = n.store.Append(ctx, rec)

	vote, err := n.p.Commit(ctx, rec, "")
	if err != nil || vote != VoteNotPrepared {
		t.Fatalf("Commit = (%s, %v), want NOT_PREPARED", vote, err)
	}
	records, _ := n.store.ReadAll(ctx)
	if records[0].Committed {
		t.Error("WAL must not be touched by a refused commit")
	}
}

func TestParticipantAbortThenCommit(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	rec := sample()

	if _, err := n.p.Prepare(ctx, rec, "t-1"); err != nil {
		t.Fatal(err)
	}
	vote, err := n.p.Abort(ctx, rec, "t-1")
	if err != nil || vote != VoteAborted {
		t.Fatalf("Abort = (%s, %v)", vote, err)
	}
	if vote, _ := n.p.Commit(ctx, rec, "t-1"); vote != VoteNotPrepared {
		t.Errorf("Commit after abort = %s, want NOT_PREPARED", vote)
	}

	// Abort of an unknown transaction still answers ABORTED.
	if vote, err := n.p.Abort(ctx, rec, "never-seen"); err != nil || vote != VoteAborted {
		t.Errorf("Abort(unknown) = (%s, %v)", vote, err)
	}
}

func TestParticipantExplicitIDIsolation(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	rec := sample()

	_, _ = n.p.Prepare(ctx, rec, "txn-a")
	if vote, _ := n.p.Commit(ctx, rec, "txn-b"); vote != VoteNotPrepared {
		t.Errorf("commit under a different id = %s, want NOT_PREPARED", vote)
	}
	if vote, _ := n.p.Commit(ctx, rec, ""); vote != VoteNotPrepared {
		t.Errorf("commit under the derived id = %s, want NOT_PREPARED", vote)
	}
	if vote, _ := n.p.Commit(ctx, rec, "txn-a"); vote != VoteCommitted {
		t.Errorf("commit under the prepared id = %s, want COMMITTED", vote)
	}
}

func TestParticipantRejectsInvalid(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	for _, phase := range Phases {
		_, err := n.p.Handle(ctx, phase, &models.Record{Operation: models.OpCreate}, "")
		if !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("%s with empty path: err = %v", phase, err)
		}
	}
	if _, err := n.p.Prepare(ctx, nil, "x"); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Prepare(nil) err = %v", err)
	}
	if n.reg.Len() != 0 {
		t.Errorf("registry has %d rows after invalid requests", n.reg.Len())
	}

	_ = n.log.Close()
	denied, _ := n.audit.Count(ctx, audit.QueryFilter{Types: []audit.EventType{audit.EventTypePrepareRejected}})
	if denied != 2 {
		t.Errorf("prepare deny audits = %d, want 2", denied)
	}
}

func TestParticipantAuditsEveryInvalidPhase(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	rec := &models.Record{Operation: models.OpWrite}

	for _, phase := range Phases {
		if _, err := n.p.Handle(ctx, phase, rec, ""); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%s: err = %v, want ErrInvalidRecord", phase, err)
		}
	}
	_ = n.log.Close()

	want := map[Phase]audit.EventType{
		PhasePrepare: audit.EventTypePrepareRejected,
		PhaseCommit:  audit.EventTypeCommitRejected,
		PhaseAbort:   audit.EventTypeAbortRejected,
	}
	for phase, typ := range want {
		events, _ := n.audit.Query(ctx, audit.QueryFilter{Types: []audit.EventType{typ}})
		if len(events) != 1 {
			t.Errorf("%s: %d %s events, want 1", phase, len(events), typ)
			continue
		}
		if events[0].Outcome != audit.OutcomeFailure || events[0].Action != string(phase) {
			t.Errorf("%s: event = %+v, want failed %s", phase, events[0], phase)
		}
	}

	failures, _ := n.audit.Count(ctx, audit.QueryFilter{Outcomes: []audit.Outcome{audit.OutcomeFailure}})
	if failures != int64(len(Phases)) {
		t.Errorf("failure events = %d, want %d", failures, len(Phases))
	}
}

func TestParticipantCommitWALFailure(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	rec := sample()
	_, _ = n.p.Prepare(ctx, rec, "")
	_ = n.store.Close()

	_, err := n.p.Commit(ctx, rec, "")
	if err == nil {
		t.Fatal("expected error from closed WAL")
	}
	if s, _, _ := n.reg.Get(ctx, TransactionID(rec)); s != registry.StateCommitted {
		t.Errorf("registry state = %s, want COMMITTED to stay", s)
	}
}
