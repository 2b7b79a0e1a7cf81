// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package apiclient is the Go client of the intentd client-facing API.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/api"
	"github.com/tomtom215/intentd/internal/models"
)

// Client talks to one intentd node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the node at baseURL. A zero timeout means 30s.
// /commit can take several seconds when peers are slow, so keep the
// timeout above the coordinator's worst case.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope mirrors models.APIResponse with the payload left undecoded.
type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if result == nil {
		return nil
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// Health calls GET /health. The answer is plain JSON, not an envelope.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	var out api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &out, nil
}

// WAL returns every record of the node's active log.
func (c *Client) WAL(ctx context.Context) ([]models.Record, error) {
	var out []models.Record
	return out, c.do(ctx, http.MethodGet, "/wal", nil, &out)
}

// Commit asks the node to coordinate a cluster-wide commit of rec.
func (c *Client) Commit(ctx context.Context, rec *models.Record) (*models.CommitOutcome, error) {
	var out models.CommitOutcome
	if err := c.do(ctx, http.MethodPost, "/commit", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Append logs rec on the node without replication.
func (c *Client) Append(ctx context.Context, rec *models.Record) (*models.Record, error) {
	var out api.AppendResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/append", rec, &out); err != nil {
		return nil, err
	}
	return &out.Record, nil
}

// Abort broadcasts an abort of txnID. An empty txnID aborts the id derived
// from rec.
func (c *Client) Abort(ctx context.Context, rec *models.Record, txnID string) (*api.AbortResponse, error) {
	var out api.AbortResponse
	req := api.AbortRequest{Record: rec, TransactionID: txnID}
	if err := c.do(ctx, http.MethodPost, "/api/v1/abort", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Peers returns the node's view of peer health.
func (c *Client) Peers(ctx context.Context) ([]models.PeerStatus, error) {
	var out []models.PeerStatus
	return out, c.do(ctx, http.MethodGet, "/api/v1/peers", nil, &out)
}

// AuditQuery filters GET /api/v1/audit.
type AuditQuery struct {
	Types         []string
	CorrelationID string
	Limit         int
}

// Audit queries the node's audit log.
func (c *Client) Audit(ctx context.Context, q AuditQuery) (*api.AuditQueryResponse, error) {
	params := url.Values{}
	if len(q.Types) > 0 {
		params.Set("type", strings.Join(q.Types, ","))
	}
	if q.CorrelationID != "" {
		params.Set("correlation_id", q.CorrelationID)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/v1/audit"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var out api.AuditQueryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WALStats returns the node's WAL counters and archive files.
func (c *Client) WALStats(ctx context.Context) (*api.WALStatsResponse, error) {
	var out api.WALStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/wal/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReloadPolicy makes the node re-read its policy file.
func (c *Client) ReloadPolicy(ctx context.Context) (*api.PolicyReloadResponse, error) {
	var out api.PolicyReloadResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/policy/reload", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transaction returns the node's registry state for id.
func (c *Client) Transaction(ctx context.Context, id string) (*api.TransactionResponse, error) {
	var out api.TransactionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/transactions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
