// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package config loads intentd configuration.
//
// Values are layered, later layers winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. YAML file (CONFIG_PATH, or config.yaml / config.yml / /etc/intentd/config.yaml)
//  3. Environment variables named <SECTION>_<KEY> (see newEnvMapper)
package config

import (
	"time"
)

// Config is the complete daemon configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Node        NodeConfig        `koanf:"node"`
	Cluster     ClusterConfig     `koanf:"cluster"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	WAL         WALConfig         `koanf:"wal"`
	Registry    RegistryConfig    `koanf:"registry"`
	Policy      PolicyConfig      `koanf:"policy"`
	Downstream  DownstreamConfig  `koanf:"downstream"`
	Recovery    RecoveryConfig    `koanf:"recovery"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Audit       AuditConfig       `koanf:"audit"`
	Security    SecurityConfig    `koanf:"security"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NodeConfig identifies this daemon in logs and audit entries.
type NodeConfig struct {
	ID string `koanf:"id"`

	// AdvertiseURL is the base URL peers reach this node at. An entry of
	// cluster.peers equal to it is dropped on load.
	AdvertiseURL string `koanf:"advertise_url"`
}

// ClusterConfig describes the peer set used by the coordinator.
// Peers never include this node.
type ClusterConfig struct {
	Peers []string `koanf:"peers"`

	// PeerTimeout bounds every single peer RPC.
	PeerTimeout time.Duration `koanf:"peer_timeout"`

	// PeerRateLimit caps outbound requests per second to one peer. 0 disables.
	PeerRateLimit float64 `koanf:"peer_rate_limit"`

	HealthRetries    int           `koanf:"health_retries"`
	HealthRetryDelay time.Duration `koanf:"health_retry_delay"`

	// HealthInterval is the peer monitor period. 0 disables the monitor.
	HealthInterval time.Duration `koanf:"health_interval"`
}

// CoordinatorConfig controls the prepare/commit retry loop.
type CoordinatorConfig struct {
	MaxAttempts int           `koanf:"max_attempts"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
}

// WALConfig locates the intent log.
type WALConfig struct {
	Path       string `koanf:"path"`
	ArchiveDir string `koanf:"archive_dir"`

	// RotateBytes is the active-file size above which the next append
	// rotates. 0 disables rotation.
	RotateBytes int64 `koanf:"rotate_bytes"`

	// SyncWrites fsyncs after every append.
	SyncWrites bool `koanf:"sync_writes"`
}

// RegistryConfig selects the transaction registry backend.
type RegistryConfig struct {
	// Backend is "memory" or "badger".
	Backend       string        `koanf:"backend"`
	Path          string        `koanf:"path"`
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// PolicyConfig locates the admission policy file.
type PolicyConfig struct {
	Path  string `koanf:"path"`
	Watch bool   `koanf:"watch"`
}

// DownstreamConfig describes the consumer that applies committed intents.
type DownstreamConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`

	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// RecoveryConfig controls the boot-time replay.
type RecoveryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// IngestConfig controls the local file event source.
type IngestConfig struct {
	Enabled     bool     `koanf:"enabled"`
	WatchPaths  []string `koanf:"watch_paths"`
	DefaultUser string   `koanf:"default_user"`
	BufferSize  int      `koanf:"buffer_size"`
}

// AuditConfig controls the audit logger.
type AuditConfig struct {
	Enabled     bool `koanf:"enabled"`
	BufferSize  int  `koanf:"buffer_size"`
	LogToStdout bool `koanf:"log_to_stdout"`
	MaxEvents   int  `koanf:"max_events"`
}

// SecurityConfig holds HTTP hardening options for the client-facing routes.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	Caller bool `koanf:"caller"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// Load reads configuration from defaults, file and environment, then
// validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
