// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import "errors"

// Error codes used in models.APIError.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodePolicyRejected   = "POLICY_REJECTED"
	CodeQuorumNotReached = "QUORUM_NOT_REACHED"
	CodeWALIO            = "WAL_IO_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

var (
	// ErrNoPolicyFile is returned by a reload when the policy is static.
	ErrNoPolicyFile = errors.New("no policy file configured")

	// ErrNoPeers means the node has no peers to coordinate with.
	ErrNoPeers = errors.New("no peers configured")
)
