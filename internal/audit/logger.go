// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

// Config controls which events are kept and where they go.
type Config struct {
	Enabled bool `json:"enabled"`

	// LogLevel is the lowest severity kept.
	LogLevel Severity `json:"log_level"`

	// BufferSize bounds the queue between callers and the store.
	BufferSize int `json:"buffer_size"`

	// LogToStdout mirrors every kept event into the application log.
	LogToStdout bool `json:"log_to_stdout"`

	// NodeID becomes the actor of events this node originates.
	NodeID string `json:"node_id"`
}

// DefaultConfig keeps info and above with a queue of 1000.
func DefaultConfig() *Config {
	return &Config{Enabled: true, LogLevel: SeverityInfo, BufferSize: 1000}
}

const saveTimeout = 5 * time.Second

// Logger queues events and persists them from a single goroutine so that
// protocol handlers never wait on the store. A nil *Logger discards.
type Logger struct {
	cfg   Config
	store Store

	queue chan *Event
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewLogger starts the writer goroutine. Close stops it.
func NewLogger(store Store, cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.LogLevel == "" {
		c.LogLevel = SeverityInfo
	}

	l := &Logger{
		cfg:   c,
		store: store,
		queue: make(chan *Event, c.BufferSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for {
		select {
		case ev := <-l.queue:
			l.persist(ev)
		case <-l.quit:
			for {
				select {
				case ev := <-l.queue:
					l.persist(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) persist(ev *Event) {
	if l.cfg.LogToStdout {
		if raw, err := json.Marshal(ev); err == nil {
			logging.Info().RawJSON("event", raw).Msg("Audit event")
		}
	}
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := l.store.Save(ctx, ev); err != nil {
		logging.Error().Err(err).Str("event_type", string(ev.Type)).Msg("Failed to save audit event")
	}
}

// keeps reports whether an event of severity s passes the filter.
func (l *Logger) keeps(s Severity) bool {
	return l.cfg.Enabled && s.rank() >= l.cfg.LogLevel.rank()
}

// Log stamps ev and queues it. When the queue is full the event is dropped
// with a warning rather than blocking the caller.
func (l *Logger) Log(ev *Event) {
	if l == nil || !l.keeps(ev.Severity) {
		return
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Actor.ID == "" {
		ev.Actor = Actor{ID: l.cfg.NodeID, Type: "node", Name: l.cfg.NodeID}
	}

	select {
	case l.queue <- ev:
	default:
		logging.Warn().Str("event_type", string(ev.Type)).Str("txn_id", ev.CorrelationID).
			Msg("Audit queue full, event dropped")
	}
}

// Close flushes queued events. Later calls return immediately.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() { close(l.quit) })
	<-l.done
	return nil
}

// Query reads events from the store, newest first.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	if l == nil || l.store == nil {
		return []Event{}, nil
	}
	return l.store.Query(ctx, filter)
}

// Count is Query without the rows.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	if l == nil || l.store == nil {
		return 0, nil
	}
	return l.store.Count(ctx, filter)
}

// txnEvent is the common shape of a successful, info-level event about
// one transaction.
func txnEvent(ctx context.Context, t EventType, txnID, action, desc string) *Event {
	return &Event{
		Type:          t,
		Severity:      SeverityInfo,
		Outcome:       OutcomeSuccess,
		Target:        &Target{ID: txnID, Type: "transaction"},
		Action:        action,
		Description:   desc,
		CorrelationID: txnID,
		RequestID:     logging.RequestIDFromContext(ctx),
	}
}

// fail downgrades ev to a failed outcome at severity s.
func (ev *Event) fail(t EventType, s Severity, desc string) {
	ev.Type, ev.Severity, ev.Outcome, ev.Description = t, s, OutcomeFailure, desc
}

// recordMeta flattens rec plus extra into event metadata.
func recordMeta(rec *models.Record, extra map[string]any) json.RawMessage {
	m := make(map[string]any, len(extra)+4)
	if rec != nil {
		m["operation"] = rec.Operation
		m["path"] = rec.Path
		if rec.SecondaryPath != "" {
			m["secondary_path"] = rec.SecondaryPath
		}
		if rec.User != "" {
			m["user"] = rec.User
		}
	}
	for k, v := range extra {
		m[k] = v
	}
	return toJSON(m)
}

// LogPrepare records this node's vote. A non-nil err is a NO vote.
func (l *Logger) LogPrepare(ctx context.Context, txnID string, rec *models.Record, err error) {
	ev := txnEvent(ctx, EventTypePrepareAccepted, txnID, "prepare", "Voted YES on prepare")
	ev.Metadata = recordMeta(rec, nil)
	if err != nil {
		ev.fail(EventTypePrepareRejected, SeverityWarning, "Rejected prepare: "+err.Error())
	}
	l.Log(ev)
}

// LogCommit records a commit request. t selects applied, conflict or failed.
func (l *Logger) LogCommit(ctx context.Context, txnID string, rec *models.Record, t EventType, err error) {
	ev := txnEvent(ctx, t, txnID, "commit", "Committed transaction")
	ev.Metadata = recordMeta(rec, nil)
	switch t {
	case EventTypeCommitConflict:
		ev.fail(t, SeverityWarning, "Commit refused: transaction not prepared")
	case EventTypeCommitFailed:
		desc := "Commit accepted but local log update failed"
		if err != nil {
			desc += ": " + err.Error()
		}
		ev.fail(t, SeverityError, desc)
	}
	l.Log(ev)
}

// LogAbort records an abort vote.
func (l *Logger) LogAbort(ctx context.Context, txnID string, rec *models.Record) {
	ev := txnEvent(ctx, EventTypeAbortRecorded, txnID, "abort", "Recorded abort")
	ev.Metadata = recordMeta(rec, nil)
	l.Log(ev)
}

// LogRejected records a record refused by validation before any state
// change. action names the refused step: a phase or "submit".
func (l *Logger) LogRejected(ctx context.Context, t EventType, txnID, action string, rec *models.Record, err error) {
	ev := txnEvent(ctx, t, txnID, action, "")
	ev.Metadata = recordMeta(rec, nil)
	desc := "Rejected " + action
	if err != nil {
		desc += ": " + err.Error()
	}
	ev.fail(t, SeverityWarning, desc)
	l.Log(ev)
}

// LogPeerFailure records one failed peer call made as coordinator. conflict
// separates a refusal from an unreachable peer.
func (l *Logger) LogPeerFailure(ctx context.Context, txnID, peer, phase string, conflict bool, err error) {
	ev := txnEvent(ctx, EventTypePeerTransportError, txnID, phase, "")
	ev.Target = &Target{ID: peer, Type: "peer", Name: peer}
	if conflict {
		ev.fail(EventTypePeerConflict, SeverityWarning, "Peer refused "+phase)
	} else {
		ev.fail(EventTypePeerTransportError, SeverityWarning, "Peer unreachable during "+phase)
	}

	meta := map[string]any{"peer": peer, "phase": phase}
	if err != nil {
		meta["error"] = err.Error()
	}
	ev.Metadata = toJSON(meta)
	l.Log(ev)
}

// LogQuorum records how a phase ended.
func (l *Logger) LogQuorum(ctx context.Context, txnID, phase string, oks, peers, attempts int, reached bool) {
	ev := txnEvent(ctx, EventTypeQuorumReached, txnID, phase, "Quorum reached for "+phase)
	ev.Metadata = toJSON(map[string]any{"phase": phase, "oks": oks, "peers": peers, "attempts": attempts})
	if !reached {
		ev.fail(EventTypeQuorumFailed, SeverityCritical, "Quorum not reached for "+phase+" after retries")
	}
	l.Log(ev)
}

// LogPolicyRejected records a record the filter refused.
func (l *Logger) LogPolicyRejected(ctx context.Context, rec *models.Record, rule string) {
	l.Log(&Event{
		Type:        EventTypePolicyRejected,
		Severity:    SeverityInfo,
		Outcome:     OutcomeFailure,
		Target:      &Target{ID: rec.Path, Type: "path"},
		Action:      "admit",
		Description: "Rejected by policy rule " + rule,
		Metadata:    recordMeta(rec, map[string]any{"rule": rule}),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogPolicyReloaded records an operator reload, successful or not.
func (l *Logger) LogPolicyReloaded(ctx context.Context, path string, err error) {
	ev := &Event{
		Type:        EventTypePolicyReloaded,
		Severity:    SeverityWarning,
		Outcome:     OutcomeSuccess,
		Target:      &Target{ID: path, Type: "policy"},
		Action:      "reload",
		Description: "Policy reloaded",
		Source:      SourceFromContext(ctx),
		RequestID:   logging.RequestIDFromContext(ctx),
	}
	if err != nil {
		ev.fail(EventTypePolicyReloaded, SeverityWarning, "Policy reload failed: "+err.Error())
	}
	l.Log(ev)
}

// LogRecovery summarizes one boot-time recovery run.
func (l *Logger) LogRecovery(ctx context.Context, total, uncommitted, recovered, failed int, took time.Duration) {
	ev := &Event{
		Type:        EventTypeRecoveryRun,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Action:      "recover",
		Description: "Recovery run completed",
		Metadata: toJSON(map[string]any{
			"total":       total,
			"uncommitted": uncommitted,
			"recovered":   recovered,
			"failed":      failed,
			"duration_ms": took.Milliseconds(),
		}),
		RequestID: logging.RequestIDFromContext(ctx),
	}
	if failed > 0 {
		ev.fail(EventTypeRecoveryRun, SeverityWarning, "Recovery left records uncommitted")
	}
	l.Log(ev)
}

func toJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

type sourceKey struct{}

// ContextWithSource attaches request origin details for later events.
func ContextWithSource(ctx context.Context, src Source) context.Context {
	return context.WithValue(ctx, sourceKey{}, src)
}

// SourceFromContext returns the Source stored by ContextWithSource.
func SourceFromContext(ctx context.Context) Source {
	if ctx == nil {
		return Source{}
	}
	src, _ := ctx.Value(sourceKey{}).(Source) //nolint:errcheck // zero value on miss
	return src
}

// SourceFromRequest takes the client address from X-Forwarded-For, then
// X-Real-IP, then the socket.
func SourceFromRequest(r *http.Request) Source {
	src := Source{IPAddress: r.RemoteAddr, UserAgent: r.UserAgent(), Hostname: r.Host}
	for _, h := range []string{"X-Forwarded-For", "X-Real-IP"} {
		if v := r.Header.Get(h); v != "" {
			src.IPAddress = v
			break
		}
	}
	return src
}
