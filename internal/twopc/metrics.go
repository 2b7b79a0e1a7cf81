// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Participant side

	participantVotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twopc_participant_votes_total",
		Help: "Votes returned by this node as a participant",
	}, []string{"phase", "vote"})

	// Coordinator side

	peerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twopc_peer_calls_total",
		Help: "Peer RPCs issued by the coordinator by result (ok, transport, conflict)",
	}, []string{"phase", "result"})

	peerCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twopc_peer_call_duration_seconds",
		Help:    "Latency of single peer RPCs",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"phase"})

	phaseAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "twopc_phase_attempts",
		Help:    "Attempts needed per phase",
		Buckets: []float64{1, 2, 3, 4, 5, 8},
	}, []string{"phase"})

	quorumFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twopc_quorum_failures_total",
		Help: "Phases that exhausted retries without quorum",
	}, []string{"phase"})

	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twopc_commits_total",
		Help: "CommitRecord outcomes (committed, invalid, prepare_failed, commit_failed, local_failed)",
	}, []string{"outcome"})

	peerHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "twopc_peer_healthy",
		Help: "1 when the last health probe of a peer succeeded",
	}, []string{"peer"})
)

// RecordParticipantVote counts a vote cast by this node.
func RecordParticipantVote(phase Phase, vote string) {
	participantVotes.WithLabelValues(string(phase), vote).Inc()
}

// RecordPeerCall counts one peer RPC outcome.
func RecordPeerCall(phase Phase, result string, seconds float64) {
	peerCalls.WithLabelValues(string(phase), result).Inc()
	peerCallLatency.WithLabelValues(string(phase)).Observe(seconds)
}

// RecordPhaseAttempts observes how many attempts a phase needed.
func RecordPhaseAttempts(phase Phase, attempts int) {
	phaseAttempts.WithLabelValues(string(phase)).Observe(float64(attempts))
}

// RecordQuorumFailure counts a phase that gave up.
func RecordQuorumFailure(phase Phase) {
	quorumFailures.WithLabelValues(string(phase)).Inc()
}

// RecordCommitOutcome counts a CommitRecord result.
func RecordCommitOutcome(outcome string) {
	commitsTotal.WithLabelValues(outcome).Inc()
}

// UpdatePeerHealth publishes the last probe result of a peer.
func UpdatePeerHealth(peer string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	peerHealthy.WithLabelValues(peer).Set(v)
}
