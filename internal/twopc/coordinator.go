// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/telemetry"
	"github.com/tomtom215/intentd/internal/wal"
)

// Config bounds the coordinator's peer calls and retries.
type Config struct {
	// PeerTimeout bounds each single peer call.
	PeerTimeout time.Duration

	// MaxAttempts is the retry budget of one phase.
	MaxAttempts int

	// BaseBackoff is the delay after the first failed attempt; it doubles
	// after each further attempt.
	BaseBackoff time.Duration
}

// DefaultConfig returns 3s calls, 5 attempts and a 100ms base backoff.
func DefaultConfig() Config {
	return Config{
		PeerTimeout: 3 * time.Second,
		MaxAttempts: 5,
		BaseBackoff: 100 * time.Millisecond,
	}
}

// PeerFailure is one peer that did not vote as expected.
type PeerFailure struct {
	Peer string
	Err  error
}

// PhaseResult is the tally of one phase.
type PhaseResult struct {
	Phase    Phase
	Oks      int
	Peers    int
	Attempts int
	Failures []PeerFailure
}

// Quorum reports whether the tally is a strict majority.
func (r PhaseResult) Quorum() bool {
	return HasQuorum(r.Oks, r.Peers)
}

// CommitResult summarizes a CommitRecord call.
type CommitResult struct {
	TransactionID string
	Prepare       PhaseResult
	Commit        PhaseResult
	LocalMarked   bool
	Duration      time.Duration
}

// Outcome converts r to its API representation.
func (r *CommitResult) Outcome() models.CommitOutcome {
	return models.CommitOutcome{
		TransactionID: r.TransactionID,
		Peers:         r.Prepare.Peers,
		PrepareOKs:    r.Prepare.Oks,
		CommitOKs:     r.Commit.Oks,
		LocalMarked:   r.LocalMarked,
		DurationMS:    r.Duration.Milliseconds(),
	}
}

// Coordinator drives the protocol from the submitting node.
type Coordinator struct {
	transport Transport
	store     wal.Store
	audit     *audit.Logger
	cfg       Config

	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator wires a coordinator. Zero config fields take defaults.
func NewCoordinator(transport Transport, store wal.Store, auditLogger *audit.Logger, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.PeerTimeout <= 0 {
		cfg.PeerTimeout = def.PeerTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff < 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	return &Coordinator{
		transport: transport,
		store:     store,
		audit:     auditLogger,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Coordinate sends phase to every peer at once and tallies the votes after
// all of them have answered or timed out.
func (c *Coordinator) Coordinate(ctx context.Context, peers []string, rec *models.Record, txnID string, phase Phase) PhaseResult {
	errs := make([]error, len(peers))

	var g errgroup.Group
	for i, peer := range peers {
		g.Go(func() error {
			errs[i] = c.call(ctx, peer, phase, rec, txnID)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // calls report through errs

	result := PhaseResult{Phase: phase, Peers: len(peers)}
	for i, err := range errs {
		if err == nil {
			result.Oks++
			continue
		}
		result.Failures = append(result.Failures, PeerFailure{Peer: peers[i], Err: err})

		conflict := errors.Is(err, ErrProtocolConflict)
		logging.Ctx(ctx).Warn().Err(err).Str("peer", peers[i]).Str("phase", string(phase)).
			Bool("conflict", conflict).Msg("Peer vote failed")
		c.audit.LogPeerFailure(ctx, txnID, peers[i], string(phase), conflict, err)
	}
	return result
}

// call performs one bounded peer RPC and normalizes its error.
func (c *Coordinator) call(ctx context.Context, peer string, phase Phase, rec *models.Record, txnID string) error {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.PeerTimeout)
	defer cancel()

	start := time.Now()
	err := c.transport.Send(callCtx, peer, phase, rec, txnID)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		RecordPeerCall(phase, "ok", elapsed)
		telemetry.AddEvent(ctx, "peer.ok", attribute.String(telemetry.AttrPeer, peer))
		return nil
	case errors.Is(err, ErrProtocolConflict):
		RecordPeerCall(phase, "conflict", elapsed)
	case errors.Is(err, ErrTransport):
		RecordPeerCall(phase, "transport", elapsed)
	default:
		RecordPeerCall(phase, "transport", elapsed)
		err = &TransportError{Peer: peer, Phase: phase, Err: err}
	}
	telemetry.AddEvent(ctx, "peer.failed",
		attribute.String(telemetry.AttrPeer, peer),
		attribute.String("error", err.Error()),
	)
	return err
}

// CoordinateWithRetry repeats Coordinate until quorum or until the attempt
// budget is spent, sleeping BaseBackoff, 2*BaseBackoff, ... in between.
// It returns the best tally seen. Exhaustion yields a *QuorumError.
func (c *Coordinator) CoordinateWithRetry(ctx context.Context, peers []string, rec *models.Record, txnID string, phase Phase) (PhaseResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "twopc."+string(phase),
		attribute.String(telemetry.AttrTxnID, txnID),
		attribute.String(telemetry.AttrPhase, string(phase)),
		attribute.Int(telemetry.AttrPeers, len(peers)),
	)
	defer span.End()

	best := PhaseResult{Phase: phase, Peers: len(peers)}
	if len(peers) == 0 {
		err := &QuorumError{Phase: phase, Peers: 0}
		c.escalate(ctx, txnID, best, err)
		return best, err
	}

	delay := c.cfg.BaseBackoff
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		res := c.Coordinate(ctx, peers, rec, txnID, phase)
		res.Attempts = attempt
		if attempt == 1 || res.Oks > best.Oks {
			best = res
		}
		best.Attempts = attempt

		if res.Quorum() {
			RecordPhaseAttempts(phase, attempt)
			telemetry.SetAttributes(ctx,
				attribute.Int(telemetry.AttrOks, res.Oks),
				attribute.Int(telemetry.AttrAttempt, attempt),
			)
			c.audit.LogQuorum(ctx, txnID, string(phase), res.Oks, res.Peers, attempt, true)
			logging.Ctx(ctx).Debug().Str("phase", string(phase)).Int("oks", res.Oks).
				Int("peers", res.Peers).Int("attempt", attempt).Msg("Quorum reached")
			return res, nil
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		logging.Ctx(ctx).Warn().Str("phase", string(phase)).Int("oks", res.Oks).Int("peers", res.Peers).
			Int("attempt", attempt).Int("max_attempts", c.cfg.MaxAttempts).Dur("retry_delay", delay).
			Msg("Quorum not reached, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			telemetry.RecordError(ctx, err)
			return best, fmt.Errorf("%s retry interrupted: %w", phase, err)
		}
		delay *= 2
	}

	RecordPhaseAttempts(phase, best.Attempts)
	err := &QuorumError{Phase: phase, Oks: best.Oks, Peers: best.Peers, Attempts: best.Attempts}
	c.escalate(ctx, txnID, best, err)
	return best, err
}

// escalate reports a phase that gave up.
func (c *Coordinator) escalate(ctx context.Context, txnID string, best PhaseResult, err *QuorumError) {
	RecordQuorumFailure(err.Phase)
	telemetry.RecordError(ctx, err)

	event := logging.Ctx(ctx).Error().Err(err).Str("phase", string(err.Phase)).
		Int("oks", err.Oks).Int("peers", err.Peers).Int("attempts", err.Attempts)
	failed := make([]string, 0, len(best.Failures))
	for _, f := range best.Failures {
		failed = append(failed, f.Peer)
	}
	event.Strs("failed_peers", failed).Msg("ESCALATION: quorum not reached")

	c.audit.LogQuorum(ctx, txnID, string(err.Phase), err.Oks, err.Peers, err.Attempts, false)
}

// CommitRecord replicates rec: prepare with retry, then commit with retry,
// then mark the local WAL record committed. Each call uses a fresh
// transaction id. A failed phase returns the partial result together with
// a *QuorumError naming that phase. Peers that voted YES before a failed
// commit phase stay Prepared.
func (c *Coordinator) CommitRecord(ctx context.Context, peers []string, rec *models.Record) (*CommitResult, error) {
	start := time.Now()

	if err := ValidateRecord(rec); err != nil {
		RecordCommitOutcome("invalid")
		c.audit.LogRejected(ctx, audit.EventTypeSubmitRejected, safeTxnID(rec, ""), "submit", rec, err)
		return nil, err
	}

	result := &CommitResult{TransactionID: uuid.NewString()}
	ctx = logging.ContextWithTxnID(ctx, result.TransactionID)
	ctx, span := telemetry.StartSpan(ctx, "twopc.commit_record",
		attribute.String(telemetry.AttrTxnID, result.TransactionID),
		attribute.String(telemetry.AttrOperation, rec.Operation.String()),
		attribute.String(telemetry.AttrPath, rec.Path),
	)
	defer span.End()
	defer func() { result.Duration = time.Since(start) }()

	prep, err := c.CoordinateWithRetry(ctx, peers, rec, result.TransactionID, PhasePrepare)
	result.Prepare = prep
	if err != nil {
		RecordCommitOutcome("prepare_failed")
		return result, err
	}

	commit, err := c.CoordinateWithRetry(ctx, peers, rec, result.TransactionID, PhaseCommit)
	result.Commit = commit
	if err != nil {
		RecordCommitOutcome("commit_failed")
		logging.Ctx(ctx).Error().Int("prepared_peers", prep.Oks).
			Msg("Commit quorum failed after prepare quorum, prepared peers are left in place")
		return result, err
	}

	marked, err := c.store.MarkCommitted(ctx, rec)
	if err != nil {
		RecordCommitOutcome("local_failed")
		telemetry.RecordError(ctx, err)
		return result, fmt.Errorf("mark local record committed: %w", err)
	}
	result.LocalMarked = marked

	RecordCommitOutcome("committed")
	logging.Ctx(ctx).Info().Str("operation", rec.Operation.String()).Str("path", rec.Path).
		Int("prepare_oks", prep.Oks).Int("commit_oks", commit.Oks).Int("peers", len(peers)).
		Bool("local_marked", marked).Msg("Record committed")
	return result, nil
}

// Abort broadcasts an abort for txnID, or for the id derived from rec when
// txnID is empty.
func (c *Coordinator) Abort(ctx context.Context, peers []string, rec *models.Record, txnID string) (PhaseResult, error) {
	if err := ValidateRecord(rec); err != nil {
		c.audit.LogRejected(ctx, audit.EventTypeAbortRejected, safeTxnID(rec, txnID), string(PhaseAbort), rec, err)
		return PhaseResult{Phase: PhaseAbort}, err
	}
	id := ResolveTransactionID(rec, txnID)
	ctx = logging.ContextWithTxnID(ctx, id)
	return c.CoordinateWithRetry(ctx, peers, rec, id, PhaseAbort)
}
