// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package downstream delivers committed intents to the consumer that
// applies them. It is the production wal.Deliverer used by boot recovery.
package downstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/intentd/internal/config"
	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = errors.New("downstream circuit breaker open")

// StatusError is a non-2xx reply from the consumer.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream returned %d: %s", e.Status, e.Body)
}

// Client posts records to the consumer through a circuit breaker.
//
// The breaker uses real time for its interval and timeout. Tests drive it
// with failures, not with a fake clock.
type Client struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[struct{}]
	name   string
}

// NewClient builds a client from cfg. Zero fields take defaults: 5s request
// timeout, 5 consecutive failures to open, 30s before half-open.
func NewClient(cfg config.DownstreamConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	name := "downstream"
	CircuitBreakerState.WithLabelValues(name).Set(0)
	CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	threshold := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening downstream circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")

			CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &Client{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     cb,
		name:   name,
	}
}

// State reports the breaker state as closed, half-open or open.
func (c *Client) State() string {
	return stateToString(c.cb.State())
}

// Deliver implements wal.Deliverer. Any 2xx reply is success.
func (c *Client) Deliver(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("deliver: nil record")
	}

	_, err := c.cb.Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, rec)
	})
	if err == nil {
		CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
		CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(0)
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
		return fmt.Errorf("%w: %w", ErrBreakerOpen, err)
	}

	CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
	CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(float64(c.cb.Counts().ConsecutiveFailures))
	return err
}

func (c *Client) post(ctx context.Context, rec *models.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if rid := logging.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512)) //nolint:errcheck // best effort for the message
		return &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive
	return nil
}
