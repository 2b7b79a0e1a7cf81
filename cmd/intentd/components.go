// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/intentd/internal/audit"
	"github.com/tomtom215/intentd/internal/config"
	"github.com/tomtom215/intentd/internal/downstream"
	"github.com/tomtom215/intentd/internal/ingest"
	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/policy"
	"github.com/tomtom215/intentd/internal/registry"
	"github.com/tomtom215/intentd/internal/twopc"
	"github.com/tomtom215/intentd/internal/wal"
)

// components are the stores and services main wires together.
type components struct {
	wal      *wal.FileStore
	registry registry.Registry
	policy   *policy.Store
	filter   *policy.Filter
	audit    *audit.Logger

	participant *twopc.Participant
	coordinator *twopc.Coordinator
	downstream  *downstream.Client

	sweeper       *registry.Sweeper
	policyWatcher *policy.Watcher
	monitor       *twopc.PeerMonitor
	ingest        *ingest.Loop
}

func openComponents(cfg *config.Config) (c *components, err error) {
	c = &components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.wal, err = wal.Open(wal.Config{
		Path:        cfg.WAL.Path,
		ArchiveDir:  cfg.WAL.ArchiveDir,
		RotateBytes: cfg.WAL.RotateBytes,
		SyncWrites:  cfg.WAL.SyncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}

	c.registry, err = registry.New(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	c.sweeper = registry.NewSweeper(c.registry, cfg.Registry.SweepInterval)

	if cfg.Policy.Path != "" {
		c.policy, err = policy.NewStore(cfg.Policy.Path)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		if cfg.Policy.Watch {
			c.policyWatcher = policy.NewWatcher(c.policy)
		}
	} else {
		c.policy = policy.NewStaticStore(policy.AllowAll())
	}
	c.filter = policy.NewFilter(c.policy)

	auditCfg := audit.DefaultConfig()
	auditCfg.Enabled = cfg.Audit.Enabled
	auditCfg.NodeID = cfg.Node.ID
	auditCfg.LogToStdout = cfg.Audit.LogToStdout
	if cfg.Audit.BufferSize > 0 {
		auditCfg.BufferSize = cfg.Audit.BufferSize
	}
	c.audit = audit.NewLogger(audit.NewMemoryStore(cfg.Audit.MaxEvents), auditCfg)

	c.participant = twopc.NewParticipant(c.registry, c.wal, c.audit)
	c.coordinator = twopc.NewCoordinator(
		twopc.NewHTTPTransport(nil, cfg.Cluster.PeerRateLimit),
		c.wal,
		c.audit,
		twopc.Config{
			PeerTimeout: cfg.Cluster.PeerTimeout,
			MaxAttempts: cfg.Coordinator.MaxAttempts,
			BaseBackoff: cfg.Coordinator.BaseBackoff,
		},
	)

	if cfg.Downstream.URL != "" {
		c.downstream = downstream.NewClient(cfg.Downstream)
	}

	if len(cfg.Cluster.Peers) > 0 && cfg.Cluster.HealthInterval > 0 {
		c.monitor = twopc.NewPeerMonitor(cfg.Cluster.Peers, peerChecker(cfg), cfg.Cluster.HealthInterval)
	}

	if cfg.Ingest.Enabled {
		src, err := ingest.NewFSNotifySource(cfg.Ingest.WatchPaths, cfg.Ingest.DefaultUser, cfg.Ingest.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("start ingest: %w", err)
		}
		c.ingest = ingest.NewLoop(src, c.filter, c.wal, c.audit)
	}

	return c, nil
}

// Close releases the stores. The audit logger goes last so that events
// raised while closing still land.
func (c *components) Close() {
	if c.wal != nil {
		if err := c.wal.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing WAL")
		}
	}
	if c.registry != nil {
		if err := c.registry.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing registry")
		}
	}
	if c.audit != nil {
		if err := c.audit.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit log")
		}
	}
}

// runRecovery replays uncommitted WAL records to the downstream consumer.
// Failures are logged; the daemon starts regardless and the records wait
// for the next boot.
func runRecovery(ctx context.Context, cfg *config.Config, c *components) {
	if !cfg.Recovery.Enabled {
		return
	}
	if c.downstream == nil {
		logging.Info().Msg("WAL recovery skipped, no downstream consumer configured")
		return
	}

	result, err := wal.RecoverUncommitted(ctx, c.wal, c.downstream)
	if err != nil {
		logging.Error().Err(err).Msg("WAL recovery aborted")
	}
	if result == nil {
		return
	}
	c.audit.LogRecovery(ctx, result.Total, result.Uncommitted, result.Recovered, result.Failed, result.Duration)
	for _, rerr := range result.Errors {
		logging.Warn().Err(rerr).Msg("Record left uncommitted for the next boot")
	}
}
