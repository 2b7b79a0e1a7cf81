// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/intentd/internal/ingest"
	"github.com/tomtom215/intentd/internal/registry"
)

// flakyService fails a fixed number of times, then runs until canceled.
type flakyService struct {
	name   string
	fails  int32
	starts atomic.Int32
}

func (f *flakyService) Serve(ctx context.Context) error {
	if f.starts.Add(1) <= f.fails {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *flakyService) String() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewTreeDefaults(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}

	tree = NewTree(testLogger(), TreeConfig{FailureThreshold: 2, ShutdownTimeout: time.Second})
	if tree.config.FailureThreshold != 2 || tree.config.ShutdownTimeout != time.Second || tree.config.FailureDecay != 30 {
		t.Errorf("config = %+v", tree.config)
	}
}

func TestLayerNames(t *testing.T) {
	if LayerCluster.String() != "cluster-layer" || Layer(9).String() != "unknown-layer" {
		t.Errorf("names = %s, %s", LayerCluster, Layer(9))
	}
}

func TestTreeRunsEveryLayer(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	reg := registry.NewMemoryRegistry(time.Millisecond)
	_ = reg.SetPrepared(context.Background(), "stale")

	cluster := &flakyService{name: "cluster"}
	api := &flakyService{name: "api"}
	tree.Add(LayerState, registry.NewSweeper(reg, 5*time.Millisecond))
	tree.Add(LayerCluster, cluster)
	tree.Add(LayerAPI, api)
	if tree.Count(LayerState) != 1 || tree.Count(LayerCluster) != 1 || tree.Count(LayerAPI) != 1 {
		t.Fatalf("counts = %d/%d/%d", tree.Count(LayerState), tree.Count(LayerCluster), tree.Count(LayerAPI))
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "sweeper", func() bool { return reg.Len() == 0 })
	waitFor(t, "cluster and api services", func() bool {
		return cluster.starts.Load() == 1 && api.starts.Load() == 1
	})

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not shut down")
	}
}

func TestTreeRestartsFailingService(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	flaky := &flakyService{name: "flaky", fails: 2}
	stable := &flakyService{name: "stable"}
	tree.Add(LayerCluster, flaky)
	tree.Add(LayerAPI, stable)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	waitFor(t, "third start of the flaky service", func() bool { return flaky.starts.Load() >= 3 })
	if stable.starts.Load() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts.Load())
	}
}

func TestTreeDoesNotRestartClosedIngest(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})

	src := ingest.NewChannelSource(1)
	loop := ingest.NewLoop(src, nil, nil, nil)
	tree.Add(LayerCluster, loop)
	stable := &flakyService{name: "stable"}
	tree.Add(LayerAPI, stable)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	waitFor(t, "api service", func() bool { return stable.starts.Load() == 1 })
	_ = src.Close()

	// The tree keeps running after the loop stops for good.
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-errCh:
		t.Fatalf("tree stopped: %v", err)
	default:
	}
	if stable.starts.Load() != 1 {
		t.Errorf("api service restarted, starts = %d", stable.starts.Load())
	}
}
