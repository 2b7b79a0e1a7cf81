// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package ingest

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/policy"
	"github.com/tomtom215/intentd/internal/validation"
	"github.com/tomtom215/intentd/internal/wal"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ingest_events_total",
	Help: "File events by result (admitted, rejected, invalid, append_failed)",
}, []string{"result"})

// ErrSourceClosed is returned by Run when the source stops on its own.
var ErrSourceClosed = errors.New("ingest source closed")

// Loop appends admitted events to the WAL.
type Loop struct {
	source Source
	filter *policy.Filter
	store  wal.Store
	audit  *audit.Logger
}

// NewLoop wires a loop. auditLogger may be nil.
func NewLoop(source Source, filter *policy.Filter, store wal.Store, auditLogger *audit.Logger) *Loop {
	return &Loop{source: source, filter: filter, store: store, audit: auditLogger}
}

// Run consumes events until ctx is done or the source closes. Append
// failures are logged and counted but never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	events := l.source.Events()
	errs := l.source.Errors()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logging.Warn().Err(err).Msg("Event source error")

		case ev, ok := <-events:
			if !ok {
				return ErrSourceClosed
			}
			l.handle(ctx, ev)
		}
	}
}

func (l *Loop) handle(ctx context.Context, ev Event) {
	rec := ev.Record()
	if err := validation.ValidateStruct(rec); err != nil {
		eventsTotal.WithLabelValues("invalid").Inc()
		logging.Debug().Err(err).Str("path", ev.Path).Msg("Dropping invalid file event")
		return
	}

	d := l.filter.Decide(ev.Path, ev.Operation, ev.User)
	if !d.Admit {
		eventsTotal.WithLabelValues("rejected").Inc()
		l.audit.LogPolicyRejected(ctx, rec, string(d.Rule))
		logging.Debug().Str("path", ev.Path).Str("operation", ev.Operation.String()).
			Str("rule", string(d.Rule)).Msg("Event rejected by policy")
		return
	}

	if err := l.store.Append(ctx, rec); err != nil {
		eventsTotal.WithLabelValues("append_failed").Inc()
		logging.Error().Err(err).Str("path", ev.Path).Msg("Failed to append event to WAL")
		return
	}
	eventsTotal.WithLabelValues("admitted").Inc()
}

// Serve implements suture.Service. The source is closed on shutdown; a
// source that stops by itself is not restarted.
func (l *Loop) Serve(ctx context.Context) error {
	err := l.Run(ctx)
	if errors.Is(err, ErrSourceClosed) {
		logging.Warn().Msg("Event source closed, ingest stopped")
		return suture.ErrDoNotRestart
	}
	if cerr := l.source.Close(); cerr != nil {
		logging.Warn().Err(cerr).Msg("Failed to close event source")
	}
	return err
}

func (l *Loop) String() string {
	return "ingest-loop"
}
