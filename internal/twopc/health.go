// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package twopc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

// HealthChecker probes GET <peer>/health with a fixed retry delay.
type HealthChecker struct {
	client  *http.Client
	retries int
	delay   time.Duration
}

// NewHealthChecker returns a checker making up to retries attempts.
func NewHealthChecker(client *http.Client, retries int, delay time.Duration) *HealthChecker {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	if retries <= 0 {
		retries = 3
	}
	return &HealthChecker{client: client, retries: retries, delay: delay}
}

// Check probes peer until it answers 200 or the retries run out.
func (h *HealthChecker) Check(ctx context.Context, peer string) models.PeerStatus {
	status := models.PeerStatus{URL: peer}

	var lastErr error
	for attempt := 1; attempt <= h.retries; attempt++ {
		status.Attempts = attempt
		lastErr = h.probe(ctx, peer)
		if lastErr == nil {
			status.Healthy = true
			break
		}
		if attempt == h.retries {
			break
		}
		if err := sleepContext(ctx, h.delay); err != nil {
			lastErr = err
			break
		}
	}

	status.CheckedAt = time.Now().UTC()
	if lastErr != nil {
		status.Error = lastErr.Error()
	}
	return status
}

func (h *HealthChecker) probe(ctx context.Context, peer string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain only

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// PeerMonitor probes every peer periodically and keeps the last result.
// It is a suture service.
type PeerMonitor struct {
	peers    []string
	checker  *HealthChecker
	interval time.Duration

	mu       sync.RWMutex
	statuses map[string]models.PeerStatus
}

// NewPeerMonitor returns a monitor for peers.
func NewPeerMonitor(peers []string, checker *HealthChecker, interval time.Duration) *PeerMonitor {
	return &PeerMonitor{
		peers:    peers,
		checker:  checker,
		interval: interval,
		statuses: make(map[string]models.PeerStatus, len(peers)),
	}
}

// CheckAll probes every peer concurrently and stores the results.
func (m *PeerMonitor) CheckAll(ctx context.Context) []models.PeerStatus {
	results := make([]models.PeerStatus, len(m.peers))

	var g errgroup.Group
	for i, peer := range m.peers {
		g.Go(func() error {
			results[i] = m.checker.Check(ctx, peer)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // probes never fail the group

	m.mu.Lock()
	for _, st := range results {
		prev, seen := m.statuses[st.URL]
		m.statuses[st.URL] = st
		UpdatePeerHealth(st.URL, st.Healthy)
		if !seen || prev.Healthy != st.Healthy {
			ev := logging.Info()
			if !st.Healthy {
				ev = logging.Warn()
			}
			ev.Str("peer", st.URL).Bool("healthy", st.Healthy).Int("attempts", st.Attempts).
				Str("error", st.Error).Msg("Peer health changed")
		}
	}
	m.mu.Unlock()

	return results
}

// Snapshot returns the last known status of every peer, sorted by URL.
func (m *PeerMonitor) Snapshot() []models.PeerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PeerStatus, 0, len(m.peers))
	for _, peer := range m.peers {
		if st, ok := m.statuses[peer]; ok {
			out = append(out, st)
		} else {
			out = append(out, models.PeerStatus{URL: peer})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Serve probes immediately, then every interval, until ctx is done.
func (m *PeerMonitor) Serve(ctx context.Context) error {
	if len(m.peers) == 0 || m.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

func (m *PeerMonitor) String() string {
	return "peer-monitor"
}
