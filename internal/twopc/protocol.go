// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package twopc implements both sides of the two-phase commit protocol
// that replicates one WAL record across a fixed peer set.
//
// Participant answers prepare, commit and abort for the local node.
// Coordinator fans each phase out to every peer, retries with doubling
// backoff until a strict majority agrees, and marks the local record
// committed only when both phases reach quorum.
//
// A coordinator that reaches prepare quorum but fails commit quorum leaves
// the peers that voted YES in Prepared. No compensating abort is sent;
// operators can release them with an explicit abort broadcast.
package twopc

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/tomtom215/intentd/internal/models"
)

// Vote is the text body a participant answers with.
type Vote string

const (
	VoteYes         Vote = "YES"
	VoteCommitted   Vote = "COMMITTED"
	VoteNotPrepared Vote = "NOT_PREPARED"
	VoteAborted     Vote = "ABORTED"
)

// Phase names one round of the protocol.
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhaseCommit  Phase = "commit"
	PhaseAbort   Phase = "abort"
)

// Phases lists every phase in protocol order.
var Phases = []Phase{PhasePrepare, PhaseCommit, PhaseAbort}

// ExpectedVote is the vote that counts as success for p.
func (p Phase) ExpectedVote() Vote {
	switch p {
	case PhasePrepare:
		return VoteYes
	case PhaseCommit:
		return VoteCommitted
	default:
		return VoteAborted
	}
}

// Route is the peer endpoint serving p.
func (p Phase) Route() string {
	return "/2pc/" + string(p)
}

func (p Phase) String() string {
	return string(p)
}

// TransactionIDHeader carries an explicit transaction id between the
// coordinator and its participants.
const TransactionIDHeader = "X-Transaction-ID"

// TransactionID derives a stable id from the identity of rec. The same
// intent always yields the same id, on every node and in every phase.
func TransactionID(rec *models.Record) string {
	h := sha256.New()
	h.Write([]byte(rec.Operation))
	h.Write([]byte{0})
	h.Write([]byte(rec.Path))
	h.Write([]byte{0})
	h.Write([]byte(rec.SecondaryPath))
	return hex.EncodeToString(h.Sum(nil))
}

// ResolveTransactionID returns explicit when set, otherwise the derived id.
func ResolveTransactionID(rec *models.Record, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return TransactionID(rec)
}

// HasQuorum reports whether oks is a strict majority of peers. An empty
// peer set never has quorum.
func HasQuorum(oks, peers int) bool {
	return oks*2 > peers
}
