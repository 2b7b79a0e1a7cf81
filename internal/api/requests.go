// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"time"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/policy"
	"github.com/tomtom215/intentd/internal/wal"
)

// AbortRequest is the body of POST /api/v1/abort. An empty TransactionID
// aborts the id derived from the record identity.
type AbortRequest struct {
	Record        *models.Record `json:"record" validate:"required"`
	TransactionID string         `json:"transaction_id,omitempty" validate:"omitempty,max=128"`
}

// AbortResponse reports how many peers acknowledged an abort.
type AbortResponse struct {
	TransactionID string `json:"transaction_id"`
	Acks          int    `json:"acks"`
	Peers         int    `json:"peers"`
	Attempts      int    `json:"attempts"`
}

// AuditQueryRequest holds the validated query parameters of GET /api/v1/audit.
type AuditQueryRequest struct {
	Types         []string `validate:"dive,min=1,max=64"`
	CorrelationID string   `validate:"omitempty,max=128"`
	Limit         int      `validate:"min=1,max=1000"`
}

// AuditQueryResponse is the data of GET /api/v1/audit.
type AuditQueryResponse struct {
	Events []audit.Event `json:"events"`
	Total  int64         `json:"total"`
}

// AppendResponse is the data of POST /api/v1/append.
type AppendResponse struct {
	Record models.Record `json:"record"`
}

// PolicyReloadResponse is the data of POST /api/v1/policy/reload.
type PolicyReloadResponse struct {
	Path     string          `json:"path"`
	LoadedAt time.Time       `json:"loaded_at"`
	Policy   policy.Document `json:"policy"`
}

// WALStatsResponse is the data of GET /api/v1/wal/stats.
type WALStatsResponse struct {
	Stats    wal.Stats `json:"stats"`
	Archives []string  `json:"archives"`
}

// TransactionResponse is the data of GET /api/v1/transactions/{id}.
type TransactionResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	NodeID        string  `json:"node_id,omitempty"`
	Version       string  `json:"version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Peers         int     `json:"peers"`
}
