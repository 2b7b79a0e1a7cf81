// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

// Transport delivers one phase message to one peer. A nil error means the
// peer answered with the vote expected for phase.
type Transport interface {
	Send(ctx context.Context, peer string, phase Phase, rec *models.Record, txnID string) error
}

// maxVoteBody bounds how much of a peer reply is read.
const maxVoteBody = 1024

// HTTPTransport speaks the /2pc/* endpoints over HTTP.
type HTTPTransport struct {
	client *http.Client

	// perPeerRate is requests per second allowed to one peer; 0 disables.
	perPeerRate float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPTransport returns a transport using client. Per-call deadlines
// come from the caller's context.
func NewHTTPTransport(client *http.Client, perPeerRate float64) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		client:      client,
		perPeerRate: perPeerRate,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (t *HTTPTransport) limiter(peer string) *rate.Limiter {
	if t.perPeerRate <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[peer]
	if !ok {
		burst := int(t.perPeerRate)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(t.perPeerRate), burst)
		t.limiters[peer] = lim
	}
	return lim
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, peer string, phase Phase, rec *models.Record, txnID string) error {
	if lim := t.limiter(peer); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return &TransportError{Peer: peer, Phase: phase, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peer+phase.Route(), bytes.NewReader(body))
	if err != nil {
		return &TransportError{Peer: peer, Phase: phase, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	if txnID != "" {
		req.Header.Set(TransactionIDHeader, txnID)
	}
	if rid := logging.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.client.Do(req)
	if err != nil {
		return &TransportError{Peer: peer, Phase: phase, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxVoteBody))
	if err != nil {
		return &TransportError{Peer: peer, Phase: phase, Err: fmt.Errorf("read reply: %w", err)}
	}
	vote := strings.TrimSpace(string(data))

	switch {
	case resp.StatusCode == http.StatusOK && Vote(vote) == phase.ExpectedVote():
		return nil
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusConflict:
		return &ConflictError{Peer: peer, Phase: phase, Status: resp.StatusCode, Body: vote}
	default:
		return &TransportError{
			Peer:  peer,
			Phase: phase,
			Err:   fmt.Errorf("unexpected status %d: %s", resp.StatusCode, vote),
		}
	}
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, peer string, phase Phase, rec *models.Record, txnID string) error

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, peer string, phase Phase, rec *models.Record, txnID string) error {
	return f(ctx, peer, phase, rec, txnID)
}
