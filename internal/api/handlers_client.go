// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/twopc"
	"github.com/tomtom215/intentd/internal/wal"
)

// Health answers liveness. Peers probe it before and during coordination.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{ //nolint:errcheck // client went away
		Status:        "ok",
		NodeID:        h.deps.NodeID,
		Version:       h.deps.Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Peers:         len(h.deps.Peers),
	})
}

// WAL returns every record of the active log in append order.
func (h *Handler) WAL(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	records, err := h.deps.WAL.ReadAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeWALIO, "Failed to read the WAL", err)
		return
	}
	if records == nil {
		records = []models.Record{}
	}
	respondSuccess(w, http.StatusOK, records, start)
}

// Commit replicates the posted record through two-phase commit.
//
// 503 means a phase did not reach quorum after all retries; the error
// details name the phase and carry the transaction id so that an operator
// can release prepared peers through /api/v1/abort.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := audit.ContextWithSource(r.Context(), audit.SourceFromRequest(r))

	var rec models.Record
	if err := decodeJSON(w, r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	result, err := h.deps.Coordinator.CommitRecord(ctx, h.deps.Peers, &rec)
	if err == nil {
		respondSuccess(w, http.StatusOK, result.Outcome(), start)
		return
	}

	details := map[string]interface{}{}
	if result != nil {
		details["transaction_id"] = result.TransactionID
		details["prepare_oks"] = result.Prepare.Oks
		details["commit_oks"] = result.Commit.Oks
	}

	var qerr *twopc.QuorumError
	switch {
	case errors.Is(err, twopc.ErrInvalidRecord):
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.As(err, &qerr):
		details["phase"] = string(qerr.Phase)
		details["oks"] = qerr.Oks
		details["peers"] = qerr.Peers
		details["attempts"] = qerr.Attempts
		respondErrorDetails(w, http.StatusServiceUnavailable, CodeQuorumNotReached, err.Error(), details, nil)
	case errors.Is(err, wal.ErrWALIO), errors.Is(err, wal.ErrStoreClosed):
		respondErrorDetails(w, http.StatusInternalServerError, CodeWALIO, "Peers committed but the local WAL update failed", details, err)
	default:
		respondErrorDetails(w, http.StatusInternalServerError, CodeInternal, "Commit failed", details, err)
	}
}
