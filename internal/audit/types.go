// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package audit records protocol-relevant events: votes cast by this node
// as a participant, peer failures seen as a coordinator, policy decisions
// and recovery runs.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Participant votes
	EventTypePrepareAccepted EventType = "prepare.accepted"
	EventTypePrepareRejected EventType = "prepare.rejected"
	EventTypeCommitApplied   EventType = "commit.applied"
	EventTypeCommitConflict  EventType = "commit.conflict"
	EventTypeCommitFailed    EventType = "commit.failed"
	EventTypeCommitRejected  EventType = "commit.rejected"
	EventTypeAbortRecorded   EventType = "abort.recorded"
	EventTypeAbortRejected   EventType = "abort.rejected"

	// Coordinator view of peers
	EventTypePeerTransportError EventType = "peer.transport_error"
	EventTypePeerConflict       EventType = "peer.conflict"
	EventTypeQuorumReached      EventType = "quorum.reached"
	EventTypeQuorumFailed       EventType = "quorum.failed"
	EventTypeSubmitRejected     EventType = "submit.rejected"

	// Local log
	EventTypePolicyRejected EventType = "policy.rejected"
	EventTypePolicyReloaded EventType = "policy.reloaded"
	EventTypeRecoveryRun    EventType = "recovery.completed"
)

// Severity orders events for filtering. QuorumFailed is the only critical
// event: it means a commit stalled with peers possibly left prepared.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severities = []Severity{SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}

// rank is the position of s in severities; unknown values rank lowest.
func (s Severity) rank() int {
	for i, v := range severities {
		if v == s {
			return i
		}
	}
	return -1
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// Event is one audit entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Outcome   Outcome   `json:"outcome"`

	// Actor is the node or peer that performed the action.
	Actor Actor `json:"actor"`

	// Target is usually the transaction.
	Target *Target `json:"target,omitempty"`

	Source Source `json:"source"`

	Action      string `json:"action"`
	Description string `json:"description"`

	// Metadata contains event-specific details.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorrelationID holds the transaction id so that every vote of one
	// transaction can be pulled together.
	CorrelationID string `json:"correlation_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// Actor is who acted. Type is node, peer or system.
type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Target is what was acted on: a transaction, peer, path or policy file.
type Target struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// Source is the HTTP origin of an operator action.
type Source struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
}

// Store persists events. Query returns newest first; Delete drops events
// older than the cutoff and reports how many went.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter narrows a query. Unset fields match everything.
type QueryFilter struct {
	Types      []EventType `json:"types,omitempty"`
	Severities []Severity  `json:"severities,omitempty"`
	Outcomes   []Outcome   `json:"outcomes,omitempty"`

	ActorID       string `json:"actor_id,omitempty"`
	TargetID      string `json:"target_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RequestID     string `json:"request_id,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// SearchText matches description and action, case-insensitively.
	SearchText string `json:"search_text,omitempty"`

	Limit int `json:"limit,omitempty"`
}

// DefaultQueryFilter returns the 100 newest events.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}
