// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package main is the intentd daemon.
//
// intentd logs filesystem intent records to a local write-ahead log and
// replicates them to a static set of peers with two-phase commit. Every
// node serves both roles: it answers /2pc/prepare, /2pc/commit and
// /2pc/abort as a participant, and coordinates a commit when a client
// posts a record to /commit.
//
// # Startup
//
//  1. Configuration (Koanf v2: defaults, config.yaml, environment)
//  2. Logging and tracing
//  3. WAL, transaction registry, admission policy, audit log
//  4. Recovery: uncommitted WAL records are replayed to the downstream
//     consumer before the listener opens
//  5. Supervisor tree: HTTP server, registry sweeper, policy watcher,
//     peer monitor, ingest loop
//
// SIGINT and SIGTERM cancel the tree; the HTTP server drains for
// server.shutdown_timeout before the stores close.
//
// # Example
//
//	export NODE_ID=node-a
//	export PEERS=http://node-b:7070,http://node-c:7070
//	export WAL_PATH=/var/lib/intentd/intent.wal
//	./intentd
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/intentd/internal/api"
	"github.com/tomtom215/intentd/internal/config"
	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/metrics"
	"github.com/tomtom215/intentd/internal/supervisor"
	"github.com/tomtom215/intentd/internal/supervisor/services"
	"github.com/tomtom215/intentd/internal/telemetry"
	"github.com/tomtom215/intentd/internal/twopc"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("node_id", cfg.Node.ID).
		Str("version", version).
		Strs("peers", cfg.Cluster.Peers).
		Str("wal", cfg.WAL.Path).
		Str("registry", cfg.Registry.Backend).
		Msg("Starting intentd")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("intentd stopped with an error")
	}
	logging.Info().Msg("intentd stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.ServiceVersion = version
	if cfg.Telemetry.Endpoint != "" {
		tcfg.Endpoint = cfg.Telemetry.Endpoint
	}
	tcfg.Insecure = cfg.Telemetry.Insecure
	if cfg.Telemetry.SampleRate > 0 {
		tcfg.SampleRate = cfg.Telemetry.SampleRate
	}
	shutdownTracing, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logging.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	comps, err := openComponents(cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	// Replay finishes before the listener opens, so peers never see a
	// half-recovered log.
	runRecovery(ctx, cfg, comps)

	metrics.SetBuildInfo(version, cfg.Node.ID)
	watchLogLevel()

	tree := buildTree(cfg, comps)
	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	logging.Info().Msg("Shutdown signal received")

	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
	case <-time.After(cfg.Server.ShutdownTimeout + 5*time.Second):
		report, _ := tree.UnstoppedServiceReport()
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	return nil
}

func buildTree(cfg *config.Config, c *components) *supervisor.Tree {
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.Add(supervisor.LayerState, c.sweeper)
	if c.policyWatcher != nil {
		tree.Add(supervisor.LayerState, c.policyWatcher)
	}
	if c.monitor != nil {
		tree.Add(supervisor.LayerCluster, c.monitor)
	}
	if c.ingest != nil {
		tree.Add(supervisor.LayerCluster, c.ingest)
	}

	handler := api.NewHandler(api.Dependencies{
		NodeID:      cfg.Node.ID,
		Version:     version,
		WAL:         c.wal,
		Registry:    c.registry,
		Participant: c.participant,
		Coordinator: c.coordinator,
		Peers:       cfg.Cluster.Peers,
		Policy:      c.policy,
		Filter:      c.filter,
		Monitor:     c.monitor,
		Audit:       c.audit,
	})
	router := api.NewRouter(handler, api.MiddlewareConfigFromSecurity(cfg.Security))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
	tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	return tree
}

// watchLogLevel applies logging.level changes from the config file
// without a restart. Other settings still need one.
func watchLogLevel() {
	path := config.FindConfigFile()
	if path == "" {
		return
	}
	err := config.WatchConfigFile(path, func() {
		cfg, err := config.Load()
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Ignoring invalid config change")
			return
		}
		logging.SetLevelString(cfg.Logging.Level)
		logging.Info().Str("level", cfg.Logging.Level).Msg("Log level reloaded")
	})
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Config file watch disabled")
	}
}

// peerChecker builds the health checker shared by the monitor.
func peerChecker(cfg *config.Config) *twopc.HealthChecker {
	return twopc.NewHealthChecker(
		&http.Client{Timeout: cfg.Cluster.PeerTimeout},
		cfg.Cluster.HealthRetries,
		cfg.Cluster.HealthRetryDelay,
	)
}
