// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package models

import (
	"time"
)

// APIResponse is the envelope returned by every client-facing JSON endpoint.
// The peer-to-peer /2pc routes answer in plain text and do not use it.
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "QUORUM_NOT_REACHED",
//	    "message": "commit phase: quorum not reached (1/3 after 5 attempts)"
//	  },
//	  "metadata": {"timestamp": "2026-03-02T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a machine readable error.
//
// Codes used by intentd:
//   - VALIDATION_ERROR: malformed record or request
//   - POLICY_REJECTED: record denied by the admission policy
//   - QUORUM_NOT_REACHED: a 2PC phase failed after all retries
//   - WAL_IO_ERROR: the local log could not be read or written
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
