// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	maxCoordinatorTries  = 100
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateCluster(); err != nil {
		return err
	}
	if err := c.validateCoordinator(); err != nil {
		return err
	}
	if err := c.validateWAL(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateDownstream(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateCluster() error {
	if c.Node.AdvertiseURL != "" {
		if err := validateHTTPURL(c.Node.AdvertiseURL, "NODE_ADVERTISE_URL"); err != nil {
			return err
		}
	}
	for _, peer := range c.Cluster.Peers {
		if err := validateHTTPURL(peer, "PEERS"); err != nil {
			return err
		}
	}
	if c.Cluster.PeerTimeout <= 0 {
		return fmt.Errorf("PEER_TIMEOUT must be positive")
	}
	if c.Cluster.PeerRateLimit < 0 {
		return fmt.Errorf("PEER_RATE_LIMIT must not be negative")
	}
	if c.Cluster.HealthRetries < 1 {
		return fmt.Errorf("HEALTH_RETRIES must be at least 1")
	}
	if c.Cluster.HealthRetryDelay < 0 || c.Cluster.HealthInterval < 0 {
		return fmt.Errorf("HEALTH_RETRY_DELAY and HEALTH_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) validateCoordinator() error {
	if c.Coordinator.MaxAttempts < 1 || c.Coordinator.MaxAttempts > maxCoordinatorTries {
		return fmt.Errorf("COORD_MAX_ATTEMPTS must be between 1 and %d", maxCoordinatorTries)
	}
	if c.Coordinator.BaseBackoff <= 0 {
		return fmt.Errorf("COORD_BASE_BACKOFF must be positive")
	}
	return nil
}

func (c *Config) validateWAL() error {
	if strings.TrimSpace(c.WAL.Path) == "" {
		return fmt.Errorf("WAL_PATH is required")
	}
	if c.WAL.RotateBytes < 0 {
		return fmt.Errorf("WAL_ROTATE_BYTES must not be negative")
	}
	if c.WAL.RotateBytes > 0 && strings.TrimSpace(c.WAL.ArchiveDir) == "" {
		return fmt.Errorf("WAL_ARCHIVE_DIR is required when rotation is enabled")
	}
	return nil
}

func (c *Config) validateRegistry() error {
	switch c.Registry.Backend {
	case "memory":
	case "badger":
		if strings.TrimSpace(c.Registry.Path) == "" {
			return fmt.Errorf("REGISTRY_PATH is required when REGISTRY_BACKEND=badger")
		}
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be one of: memory, badger")
	}
	if c.Registry.TTL < 0 {
		return fmt.Errorf("REGISTRY_TTL must not be negative")
	}
	return nil
}

func (c *Config) validateDownstream() error {
	if c.Downstream.URL == "" {
		return nil
	}
	if _, err := url.ParseRequestURI(c.Downstream.URL); err != nil {
		return fmt.Errorf("DOWNSTREAM_URL is invalid: %w", err)
	}
	if c.Downstream.Timeout <= 0 {
		return fmt.Errorf("DOWNSTREAM_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.Enabled && len(c.Ingest.WatchPaths) == 0 {
		return fmt.Errorf("INGEST_WATCH_PATHS is required when INGEST_ENABLED=true")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateHTTPURL accepts http(s) base URLs without query strings.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %q", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required: %q", fieldName, rawURL)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters: %q", fieldName, rawURL)
	}
	return nil
}
