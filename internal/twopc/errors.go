// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"errors"
	"fmt"

	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/validation"
)

// Sentinel errors. Every typed error below unwraps to one of them.
var (
	ErrInvalidRecord    = errors.New("invalid record")
	ErrTransport        = errors.New("peer transport failure")
	ErrProtocolConflict = errors.New("peer protocol conflict")
	ErrQuorumNotReached = errors.New("quorum not reached")
)

// ValidationError rejects a malformed record before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}

// TransportError is a peer that could not be reached, timed out, or
// answered with an unexpected status.
type TransportError struct {
	Peer  string
	Phase Phase
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Peer, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// ConflictError is a peer that answered but was not in the expected state.
type ConflictError struct {
	Peer   string
	Phase  Phase
	Status int
	Body   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: status %d %q", e.Phase, e.Peer, e.Status, e.Body)
}

func (e *ConflictError) Unwrap() error {
	return ErrProtocolConflict
}

// QuorumError is returned once the retry budget of a phase is spent.
type QuorumError struct {
	Phase    Phase
	Oks      int
	Peers    int
	Attempts int
}

func (e *QuorumError) Error() string {
	return fmt.Sprintf("%s quorum not reached: best %d/%d after %d attempts", e.Phase, e.Oks, e.Peers, e.Attempts)
}

func (e *QuorumError) Unwrap() error {
	return ErrQuorumNotReached
}

// ValidateRecord checks that rec carries a known operation and a path.
func ValidateRecord(rec *models.Record) error {
	if rec == nil {
		return &ValidationError{Field: "record", Reason: "record is required"}
	}
	verr := validation.ValidateStruct(rec)
	if verr == nil {
		return nil
	}
	first := verr.First()
	return &ValidationError{Field: first.Field, Reason: first.Message}
}
