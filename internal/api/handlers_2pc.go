// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/telemetry"
	"github.com/tomtom215/intentd/internal/twopc"
)

// Participant returns the handler for one peer protocol phase. Replies are
// plain text: the vote on success, NOT_PREPARED with 409 on a commit
// conflict, or an error string with 400/500.
func (h *Handler) Participant(phase twopc.Phase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		var rec models.Record
		if err := decodeJSON(w, r, &rec); err != nil {
			respondText(w, http.StatusBadRequest, err.Error())
			return
		}

		txnID := twopc.ResolveTransactionID(&rec, r.Header.Get(twopc.TransactionIDHeader))
		ctx = logging.ContextWithTxnID(ctx, txnID)
		ctx, span := telemetry.StartSpan(ctx, "twopc.participant."+string(phase),
			attribute.String(telemetry.AttrTxnID, txnID),
			attribute.String(telemetry.AttrPhase, string(phase)),
		)
		defer span.End()

		vote, err := h.deps.Participant.Handle(ctx, phase, &rec, txnID)
		switch {
		case errors.Is(err, twopc.ErrInvalidRecord):
			respondText(w, http.StatusBadRequest, err.Error())
		case err != nil:
			telemetry.RecordError(ctx, err)
			logging.Ctx(ctx).Error().Err(err).Str("phase", string(phase)).Msg("Participant failed")
			respondText(w, http.StatusInternalServerError, err.Error())
		case vote == twopc.VoteNotPrepared:
			respondText(w, http.StatusConflict, string(vote))
		default:
			respondText(w, http.StatusOK, string(vote))
		}
	}
}
