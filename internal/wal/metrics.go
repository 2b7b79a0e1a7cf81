// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	walAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_appends_total",
		Help: "Total number of records appended to the WAL",
	})

	walAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_append_failures_total",
		Help: "Total number of failed WAL appends",
	})

	walRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_rotations_total",
		Help: "Total number of WAL rotations into the archive directory",
	})

	walCommitsMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_commits_marked_total",
		Help: "Total number of records flipped to committed",
	})

	walMalformedLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_malformed_lines_total",
		Help: "Total number of unparseable WAL lines skipped while reading",
	})

	walAppendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wal_append_latency_seconds",
		Help:    "WAL append latency in seconds, including rotation",
		Buckets: prometheus.DefBuckets,
	})

	walRewriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wal_rewrite_latency_seconds",
		Help:    "Latency of the read-modify-rewrite performed by markCommitted",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	walActiveSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wal_active_size_bytes",
		Help: "Size of the active WAL file in bytes",
	})

	walArchivedUncommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_archived_uncommitted_total",
		Help: "Total number of uncommitted records moved into the archive by rotation",
	})

	walRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_recovered_records_total",
		Help: "Total number of uncommitted records redelivered and committed at startup",
	})

	walRecoveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wal_recovery_failures_total",
		Help: "Total number of uncommitted records whose startup redelivery failed",
	})
)

// RecordWALAppend increments the append counter.
func RecordWALAppend() {
	walAppendsTotal.Inc()
}

// RecordWALAppendFailure increments the append failure counter.
func RecordWALAppendFailure() {
	walAppendFailures.Inc()
}

// RecordWALRotation increments the rotation counter.
func RecordWALRotation() {
	walRotationsTotal.Inc()
}

// RecordWALCommitMarked increments the committed counter.
func RecordWALCommitMarked() {
	walCommitsMarked.Inc()
}

// RecordWALMalformedLine increments the malformed line counter.
func RecordWALMalformedLine() {
	walMalformedLines.Inc()
}

// RecordWALAppendLatency records an append latency.
func RecordWALAppendLatency(seconds float64) {
	walAppendLatency.Observe(seconds)
}

// RecordWALRewriteLatency records a markCommitted rewrite latency.
func RecordWALRewriteLatency(seconds float64) {
	walRewriteLatency.Observe(seconds)
}

// UpdateWALActiveSize sets the active file size gauge.
func UpdateWALActiveSize(bytes int64) {
	walActiveSizeBytes.Set(float64(bytes))
}

// RecordWALArchivedUncommitted adds n records archived while uncommitted.
func RecordWALArchivedUncommitted(n int) {
	walArchivedUncommitted.Add(float64(n))
}

// RecordWALRecovered increments the recovered counter.
func RecordWALRecovered() {
	walRecoveredTotal.Inc()
}

// RecordWALRecoveryFailure increments the recovery failure counter.
func RecordWALRecoveryFailure() {
	walRecoveryFailures.Inc()
}
