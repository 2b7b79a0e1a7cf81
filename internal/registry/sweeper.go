// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/intentd/internal/config"
	"github.com/tomtom215/intentd/internal/logging"
)

// New opens the backend selected by cfg.
func New(cfg config.RegistryConfig) (Registry, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryRegistry(cfg.TTL), nil
	case "badger":
		return OpenBadgerRegistry(cfg.Path, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}

// Sweeper periodically expires registry rows. It is a suture service.
type Sweeper struct {
	reg      Registry
	interval time.Duration
}

// NewSweeper returns a Sweeper running every interval.
func NewSweeper(reg Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{reg: reg, interval: interval}
}

// Serve blocks until ctx is done.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.reg.Sweep(ctx)
			if err != nil {
				logging.Warn().Err(err).Msg("Registry sweep failed")
				continue
			}
			if n > 0 {
				logging.Debug().Int("removed", n).Int("live", s.reg.Len()).Msg("Registry swept")
			}
		}
	}
}

func (s *Sweeper) String() string {
	return "registry-sweeper"
}
