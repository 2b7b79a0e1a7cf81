// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Layer selects the child supervisor a service runs under.
type Layer int

const (
	// LayerState holds services that only touch local state.
	LayerState Layer = iota
	// LayerCluster holds services that talk to peers or feed the WAL.
	LayerCluster
	// LayerAPI holds the HTTP server.
	LayerAPI

	numLayers
)

var layerNames = [numLayers]string{"state-layer", "cluster-layer", "api-layer"}

func (l Layer) String() string {
	if l < 0 || l >= numLayers {
		return "unknown-layer"
	}
	return layerNames[l]
}

// TreeConfig tunes restart backoff and shutdown. Zero fields take the
// values of DefaultTreeConfig.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64 // seconds
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig matches suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec() suture.Spec {
	return suture.Spec{
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Tree is the daemon's supervisor tree: one root with a child supervisor
// per Layer. A service that keeps failing is backed off inside its own
// layer, so a crashing ingest source never takes the peer endpoints down.
type Tree struct {
	root   *suture.Supervisor
	layers [numLayers]*suture.Supervisor
	config TreeConfig

	mu    sync.Mutex
	count [numLayers]int
}

// NewTree builds the tree. Supervisor events go to logger via sutureslog.
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	cfg = cfg.withDefaults()

	rootSpec := cfg.spec()
	hook := &sutureslog.Handler{Logger: logger}
	rootSpec.EventHook = hook.MustHook()

	t := &Tree{root: suture.New("intentd", rootSpec), config: cfg}
	for l := Layer(0); l < numLayers; l++ {
		// Layers inherit the root's event hook.
		t.layers[l] = suture.New(l.String(), cfg.spec())
		t.root.Add(t.layers[l])
	}
	return t
}

// Add runs svc under layer l.
func (t *Tree) Add(l Layer, svc suture.Service) suture.ServiceToken {
	t.mu.Lock()
	t.count[l]++
	t.mu.Unlock()
	return t.layers[l].Add(svc)
}

// Count is the number of services added to layer l.
func (t *Tree) Count(l Layer) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count[l]
}

// Serve runs the tree until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel yields the
// result once the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that outlived the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
