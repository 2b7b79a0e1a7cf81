// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/registry"
	"github.com/tomtom215/intentd/internal/wal"
)

// Participant answers the peer side of the protocol for this node.
type Participant struct {
	reg   registry.Registry
	store wal.Store
	audit *audit.Logger
}

// NewParticipant wires a participant. auditLogger may be nil.
func NewParticipant(reg registry.Registry, store wal.Store, auditLogger *audit.Logger) *Participant {
	return &Participant{reg: reg, store: store, audit: auditLogger}
}

func safeTxnID(rec *models.Record, explicit string) string {
	if rec == nil {
		return explicit
	}
	return ResolveTransactionID(rec, explicit)
}

// Prepare validates rec and records the transaction as Prepared. Invalid
// records are refused without touching the registry.
func (p *Participant) Prepare(ctx context.Context, rec *models.Record, txnID string) (Vote, error) {
	id := safeTxnID(rec, txnID)
	ctx = logging.ContextWithTxnID(ctx, id)

	if err := ValidateRecord(rec); err != nil {
		RecordParticipantVote(PhasePrepare, "invalid")
		p.audit.LogPrepare(ctx, id, rec, err)
		return "", err
	}

	if err := p.reg.SetPrepared(ctx, id); err != nil {
		return "", fmt.Errorf("record prepared state: %w", err)
	}

	RecordParticipantVote(PhasePrepare, string(VoteYes))
	p.audit.LogPrepare(ctx, id, rec, nil)
	logging.Ctx(ctx).Debug().Str("operation", rec.Operation.String()).Str("path", rec.Path).Msg("Prepared")
	return VoteYes, nil
}

// Commit moves a Prepared transaction to Committed and marks the matching
// local WAL record. Any other registry state answers NOT_PREPARED and
// leaves the WAL alone.
//
// When the WAL update fails the registry keeps the Committed row and the
// *wal.IOError is returned.
func (p *Participant) Commit(ctx context.Context, rec *models.Record, txnID string) (Vote, error) {
	id := safeTxnID(rec, txnID)
	ctx = logging.ContextWithTxnID(ctx, id)

	if err := ValidateRecord(rec); err != nil {
		RecordParticipantVote(PhaseCommit, "invalid")
		p.audit.LogRejected(ctx, audit.EventTypeCommitRejected, id, string(PhaseCommit), rec, err)
		return "", err
	}

	prev, err := p.reg.SetCommittedIfPrepared(ctx, id)
	if errors.Is(err, registry.ErrNotPrepared) {
		RecordParticipantVote(PhaseCommit, string(VoteNotPrepared))
		p.audit.LogCommit(ctx, id, rec, audit.EventTypeCommitConflict, nil)
		logging.Ctx(ctx).Warn().Str("state", prev.String()).Msg("Commit refused, transaction not prepared")
		return VoteNotPrepared, nil
	}
	if err != nil {
		return "", fmt.Errorf("record committed state: %w", err)
	}

	marked, err := p.store.MarkCommitted(ctx, rec)
	if err != nil {
		RecordParticipantVote(PhaseCommit, "wal_error")
		p.audit.LogCommit(ctx, id, rec, audit.EventTypeCommitFailed, err)
		logging.Ctx(ctx).Error().Err(err).Msg("Commit accepted but WAL update failed")
		return "", err
	}

	RecordParticipantVote(PhaseCommit, string(VoteCommitted))
	p.audit.LogCommit(ctx, id, rec, audit.EventTypeCommitApplied, nil)
	logging.Ctx(ctx).Debug().Bool("wal_marked", marked).Msg("Committed")
	return VoteCommitted, nil
}

// Abort unconditionally records the transaction as Aborted.
func (p *Participant) Abort(ctx context.Context, rec *models.Record, txnID string) (Vote, error) {
	id := safeTxnID(rec, txnID)
	ctx = logging.ContextWithTxnID(ctx, id)

	if err := ValidateRecord(rec); err != nil {
		RecordParticipantVote(PhaseAbort, "invalid")
		p.audit.LogRejected(ctx, audit.EventTypeAbortRejected, id, string(PhaseAbort), rec, err)
		return "", err
	}

	if err := p.reg.SetAborted(ctx, id); err != nil {
		return "", fmt.Errorf("record aborted state: %w", err)
	}

	RecordParticipantVote(PhaseAbort, string(VoteAborted))
	p.audit.LogAbort(ctx, id, rec)
	logging.Ctx(ctx).Debug().Msg("Aborted")
	return VoteAborted, nil
}

// Handle dispatches phase to the matching method.
func (p *Participant) Handle(ctx context.Context, phase Phase, rec *models.Record, txnID string) (Vote, error) {
	switch phase {
	case PhasePrepare:
		return p.Prepare(ctx, rec, txnID)
	case PhaseCommit:
		return p.Commit(ctx, rec, txnID)
	case PhaseAbort:
		return p.Abort(ctx, rec, txnID)
	default:
		return "", fmt.Errorf("unknown phase %q", phase)
	}
}
