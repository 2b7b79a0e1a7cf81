// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"errors"
	"testing"

	"github.com/tomtom215/intentd/internal/models"
)

func TestHasQuorum(t *testing.T) {
	tests := []struct {
		oks, peers int
		want       bool
	}{
		{2, 3, true},
		{1, 3, false},
		{2, 4, false},
		{3, 4, true},
		{0, 0, false},
		{1, 1, true},
		{0, 1, false},
		{3, 5, true},
		{2, 5, false},
	}
	for _, tt := range tests {
		if got := HasQuorum(tt.oks, tt.peers); got != tt.want {
			t.Errorf("HasQuorum(%d, %d) = %v, want %v", tt.oks, tt.peers, got, tt.want)
		}
	}
}

func TestTransactionIDIsStable(t *testing.T) {
	a := &models.Record{Operation: models.OpRename, Path: "/a", SecondaryPath: "/b", User: "alice"}
	b := &models.Record{Operation: models.OpRename, Path: "/a", SecondaryPath: "/b", User: "bob", Committed: true}

	if TransactionID(a) != TransactionID(a) {
		t.Fatal("TransactionID is not deterministic")
	}
	if TransactionID(a) != TransactionID(b) {
		t.Error("user and committed flag must not change the id")
	}
	if len(TransactionID(a)) != 64 {
		t.Errorf("id length = %d, want 64 hex chars", len(TransactionID(a)))
	}

	c := &models.Record{Operation: models.OpRename, Path: "/a", SecondaryPath: "/c"}
	if TransactionID(a) == TransactionID(c) {
		t.Error("different secondary path must change the id")
	}

	// Field boundaries are unambiguous.
	d := &models.Record{Operation: models.OpCreate, Path: "/ab"}
	e := &models.Record{Operation: models.OpCreate, Path: "/a", SecondaryPath: "b"}
	if TransactionID(d) == TransactionID(e) {
		t.Error("path and secondary path must not run together")
	}

	if ResolveTransactionID(a, "explicit") != "explicit" {
		t.Error("explicit id must win")
	}
	if ResolveTransactionID(a, "") != TransactionID(a) {
		t.Error("empty explicit id must fall back to the derived id")
	}
}

func TestPhaseVotesAndRoutes(t *testing.T) {
	want := map[Phase]Vote{PhasePrepare: VoteYes, PhaseCommit: VoteCommitted, PhaseAbort: VoteAborted}
	for _, p := range Phases {
		if p.ExpectedVote() != want[p] {
			t.Errorf("%s.ExpectedVote() = %s, want %s", p, p.ExpectedVote(), want[p])
		}
		if p.Route() != "/2pc/"+string(p) {
			t.Errorf("%s.Route() = %s", p, p.Route())
		}
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name  string
		rec   *models.Record
		field string
	}{
		{"nil", nil, "record"},
		{"empty operation", &models.Record{Path: "/a"}, "Operation"},
		{"unknown operation", &models.Record{Operation: "CHMOD", Path: "/a"}, "Operation"},
		{"empty path", &models.Record{Operation: models.OpWrite}, "Path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.rec)
			if !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("err = %v, want ErrInvalidRecord", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("field = %v, want %s", verr, tt.field)
			}
		})
	}

	if err := ValidateRecord(&models.Record{Operation: models.OpOther, Path: "/x"}); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = &TransportError{Peer: "http://a", Phase: PhasePrepare, Err: cause}
	if !errors.Is(err, ErrTransport) || !errors.Is(err, cause) {
		t.Error("TransportError must match ErrTransport and its cause")
	}
	if errors.Is(err, ErrProtocolConflict) {
		t.Error("TransportError must not match ErrProtocolConflict")
	}

	err = &ConflictError{Peer: "http://b", Phase: PhaseCommit, Status: 409, Body: "NOT_PREPARED"}
	if !errors.Is(err, ErrProtocolConflict) || errors.Is(err, ErrTransport) {
		t.Error("ConflictError classification is wrong")
	}

	err = &QuorumError{Phase: PhaseCommit, Oks: 1, Peers: 3, Attempts: 5}
	if !errors.Is(err, ErrQuorumNotReached) {
		t.Error("QuorumError must match ErrQuorumNotReached")
	}
	if got := err.Error(); got != "commit quorum not reached: best 1/3 after 5 attempts" {
		t.Errorf("Error() = %q", got)
	}
}
