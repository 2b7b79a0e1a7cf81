// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/intentd/internal/api"
)

// APIError is a non-2xx answer from the node.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// IsQuorumError reports whether err is a 503 QUORUM_NOT_REACHED answer.
func IsQuorumError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == api.CodeQuorumNotReached
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
