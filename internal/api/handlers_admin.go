// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/twopc"
)

// Append logs a record locally if the admission policy admits it.
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := audit.ContextWithSource(r.Context(), audit.SourceFromRequest(r))

	var rec models.Record
	if err := decodeJSON(w, r, &rec); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	rec.Committed = false
	if apiErr := validateRequest(&rec); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}

	if h.deps.Filter != nil {
		if d := h.deps.Filter.Decide(rec.Path, rec.Operation, rec.User); !d.Admit {
			h.deps.Audit.LogPolicyRejected(ctx, &rec, string(d.Rule))
			respondErrorDetails(w, http.StatusForbidden, CodePolicyRejected, "Record rejected by admission policy",
				map[string]interface{}{"rule": string(d.Rule)}, nil)
			return
		}
	}

	if err := h.deps.WAL.Append(ctx, &rec); err != nil {
		respondError(w, http.StatusInternalServerError, CodeWALIO, "Failed to append to the WAL", err)
		return
	}
	respondSuccess(w, http.StatusCreated, AppendResponse{Record: rec}, start)
}

// Abort broadcasts an abort for a record to every peer.
func (h *Handler) Abort(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := audit.ContextWithSource(r.Context(), audit.SourceFromRequest(r))

	var req AbortRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}

	res, err := h.deps.Coordinator.Abort(ctx, h.deps.Peers, req.Record, req.TransactionID)
	data := AbortResponse{
		TransactionID: twopc.ResolveTransactionID(req.Record, req.TransactionID),
		Acks:          res.Oks,
		Peers:         res.Peers,
		Attempts:      res.Attempts,
	}

	var qerr *twopc.QuorumError
	switch {
	case err == nil:
		respondSuccess(w, http.StatusOK, data, start)
	case errors.Is(err, twopc.ErrInvalidRecord):
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.As(err, &qerr):
		respondErrorDetails(w, http.StatusServiceUnavailable, CodeQuorumNotReached, err.Error(),
			map[string]interface{}{"transaction_id": data.TransactionID, "acks": data.Acks, "peers": data.Peers}, nil)
	default:
		respondError(w, http.StatusInternalServerError, CodeInternal, "Abort failed", err)
	}
}

// ReloadPolicy re-reads the policy file and swaps the snapshot. A failed
// reload keeps the previous policy.
func (h *Handler) ReloadPolicy(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := audit.ContextWithSource(r.Context(), audit.SourceFromRequest(r))

	store := h.deps.Policy
	if store == nil || store.Path() == "" {
		respondError(w, http.StatusConflict, CodeUnavailable, ErrNoPolicyFile.Error(), nil)
		return
	}

	err := store.Reload()
	h.deps.Audit.LogPolicyReloaded(ctx, store.Path(), err)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, CodeValidation, "Policy reload failed: "+err.Error(), err)
		return
	}

	respondSuccess(w, http.StatusOK, PolicyReloadResponse{
		Path:     store.Path(),
		LoadedAt: store.LoadedAt(),
		Policy:   store.Current().Document(),
	}, start)
}

// Peers returns the last health probe result of every configured peer.
func (h *Handler) Peers(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	var statuses []models.PeerStatus
	if h.deps.Monitor != nil {
		statuses = h.deps.Monitor.Snapshot()
	} else {
		for _, p := range h.deps.Peers {
			statuses = append(statuses, models.PeerStatus{URL: p})
		}
	}
	if statuses == nil {
		statuses = []models.PeerStatus{}
	}
	respondSuccess(w, http.StatusOK, statuses, start)
}

// AuditEvents queries the audit log.
//
// Query parameters: type (comma-separated event types), correlation_id,
// limit (1-1000, default 100).
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := AuditQueryRequest{
		Types:         splitList(r.URL.Query().Get("type")),
		CorrelationID: r.URL.Query().Get("correlation_id"),
		Limit:         intQuery(r, "limit", 100),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondErrorDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}

	filter := audit.QueryFilter{CorrelationID: req.CorrelationID, Limit: req.Limit}
	for _, t := range req.Types {
		filter.Types = append(filter.Types, audit.EventType(t))
	}

	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to query audit events", err)
		return
	}
	filter.Limit = 0
	total, err := h.deps.Audit.Count(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to count audit events", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respondSuccess(w, http.StatusOK, AuditQueryResponse{Events: events, Total: total}, start)
}

// WALStats returns WAL counters and the archive list.
func (h *Handler) WALStats(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	resp := WALStatsResponse{Stats: h.deps.WAL.Stats(), Archives: []string{}}

	if lister, ok := h.deps.WAL.(ArchiveLister); ok {
		archives, err := lister.ArchiveFiles()
		if err != nil {
			respondError(w, http.StatusInternalServerError, CodeWALIO, "Failed to list WAL archives", err)
			return
		}
		if archives != nil {
			resp.Archives = archives
		}
	}
	respondSuccess(w, http.StatusOK, resp, start)
}

// Transaction returns the local registry state of one transaction id.
func (h *Handler) Transaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := chi.URLParam(r, "id")

	state, ok, err := h.deps.Registry.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, CodeInternal, "Failed to read the registry", err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, CodeNotFound, "Unknown transaction", nil)
		return
	}
	respondSuccess(w, http.StatusOK, TransactionResponse{ID: id, State: state.String()}, start)
}
