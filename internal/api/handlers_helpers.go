// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
	"github.com/tomtom215/intentd/internal/validation"
)

// maxBodyBytes bounds every request body. A record is a few paths.
const maxBodyBytes = 1 << 20

// sanitizeLogValue replaces control characters so that a crafted path
// cannot forge log lines.
func sanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '?'
		}
		return r
	}, s)
}

// writeEnvelope marshals env and writes it with status. Responses are
// never cacheable: the log changes under every request.
func writeEnvelope(w http.ResponseWriter, status int, env *models.APIResponse) {
	body, err := json.Marshal(env)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logging.Debug().Err(err).Msg("Client went away before response was written")
	}
}

func respondSuccess(w http.ResponseWriter, status int, data interface{}, start time.Time) {
	writeEnvelope(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC(), QueryTimeMS: time.Since(start).Milliseconds()},
	})
}

// respondError writes an error envelope. err, when set, is logged and not
// shown to the caller.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondErrorDetails(w, status, code, message, nil, err)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}, err error) {
	if err != nil {
		logging.Error().Str("code", code).Str("error", sanitizeLogValue(err.Error())).
			Int("status", status).Msg("Request failed")
	}
	writeEnvelope(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: code, Message: message, Details: details},
	})
}

// respondText writes a plain text body, used by the peer protocol.
func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logging.Debug().Err(err).Msg("Failed to write text response")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// validateRequest returns nil when v passes its validate tags.
func validateRequest(v interface{}) *models.APIError {
	fields := validation.ValidateStruct(v)
	if fields == nil {
		return nil
	}
	return &models.APIError{
		Code:    CodeValidation,
		Message: fields.Summary(),
		Details: fields.Details(),
	}
}

// intQuery reads an integer query parameter, falling back to def when it
// is missing or malformed.
func intQuery(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return n
	}
	return def
}

// splitList splits "a, b,,c" into [a b c].
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
