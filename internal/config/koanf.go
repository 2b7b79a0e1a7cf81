// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/intentd/internal/logging"
)

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset or names
// a missing file.
var DefaultConfigPaths = []string{"config.yaml", "config.yml", "/etc/intentd/config.yaml", "/etc/intentd/config.yml"}

// ConfigPathEnvVar names the variable holding an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig lists every value that is not the zero value. The node id
// falls back to the host name.
func defaultConfig() *Config {
	nodeID, err := os.Hostname()
	if err != nil || nodeID == "" {
		nodeID = "intentd"
	}

	const dataDir = "/data/intentd"
	cfg := &Config{}
	cfg.Node.ID = nodeID

	cfg.Server = ServerConfig{Host: "0.0.0.0", Port: 7070, Timeout: 30 * time.Second, ShutdownTimeout: 10 * time.Second}
	cfg.Cluster = ClusterConfig{
		Peers:            []string{},
		PeerTimeout:      3 * time.Second,
		HealthRetries:    3,
		HealthRetryDelay: 200 * time.Millisecond,
		HealthInterval:   30 * time.Second,
	}
	// Five attempts from 100ms, doubling.
	cfg.Coordinator = CoordinatorConfig{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond}

	cfg.WAL = WALConfig{
		Path:        dataDir + "/intent.wal",
		ArchiveDir:  dataDir + "/archive",
		RotateBytes: 64 << 20,
		SyncWrites:  true,
	}
	cfg.Registry = RegistryConfig{Backend: "memory", Path: dataDir + "/registry", TTL: 24 * time.Hour, SweepInterval: 10 * time.Minute}
	cfg.Downstream = DownstreamConfig{Timeout: 5 * time.Second, BreakerFailures: 5, BreakerTimeout: 30 * time.Second}
	cfg.Recovery.Enabled = true
	cfg.Ingest = IngestConfig{WatchPaths: []string{}, BufferSize: 1024}
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 1000, MaxEvents: 10000}

	cfg.Security = SecurityConfig{RateLimitReqs: 100, RateLimitWindow: time.Minute, CORSOrigins: []string{}}
	cfg.Logging = LoggingConfig{Level: "info", Format: "json"}
	cfg.Telemetry = TelemetryConfig{Endpoint: "localhost:4317", Insecure: true, SampleRate: 1.0}
	return cfg
}

// loadDefaults returns a koanf instance holding only the built-in defaults.
func loadDefaults() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	return k, nil
}

// LoadWithKoanf layers defaults, the YAML file and the environment, in that
// order, and validates the result.
func LoadWithKoanf() (*Config, error) {
	k, err := loadDefaults()
	if err != nil {
		return nil, err
	}
	envKey := newEnvMapper(k.Keys())

	if path := FindConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitListValues(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Cluster.Peers = normalizePeers(cfg.Cluster.Peers, cfg.Node.AdvertiseURL)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// FindConfigFile returns the YAML file Load reads, or "" when there is none.
func FindConfigFile() string {
	candidates := DefaultConfigPaths
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		candidates = append([]string{p}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// listKeys arrive from the environment as one comma separated string.
var listKeys = []string{"cluster.peers", "ingest.watch_paths", "security.cors_origins"}

func splitListValues(k *koanf.Koanf) error {
	for _, key := range listKeys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if items == nil {
			items = []string{}
		}
		if err := k.Set(key, items); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

// normalizePeers strips trailing slashes and drops duplicates, keeping
// order. An entry naming self is dropped so the node never votes for
// itself.
func normalizePeers(peers []string, self string) []string {
	self = trimPeer(self)
	seen := make(map[string]struct{}, len(peers))
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		p = trimPeer(p)
		if p == "" {
			continue
		}
		if self != "" && strings.EqualFold(p, self) {
			logging.Warn().Str("peer", p).Msg("Dropping this node's own URL from the peer list")
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func trimPeer(p string) string {
	return strings.TrimRight(strings.TrimSpace(p), "/")
}

// Environment variables are named <SECTION>_<KEY>, so WAL_ROTATE_BYTES
// sets wal.rotate_bytes. A few sections answer to a shorter word, and the
// cluster and security keys need no section at all (PEERS, CORS_ORIGINS).
var (
	sectionAliases = map[string]string{
		"http":  "server",
		"log":   "logging",
		"coord": "coordinator",
		"otlp":  "telemetry",
	}
	bareSections = []string{"cluster", "security"}
	envAliases   = map[string]string{
		"shutdown_timeout":    "server.shutdown_timeout",
		"wal_sync":            "wal.sync_writes",
		"rate_limit_requests": "security.rate_limit_reqs",
		"disable_rate_limit":  "security.rate_limit_disabled",
	}
)

// newEnvMapper returns an env.Provider callback that maps a variable name
// to one of known, or to "" so that koanf skips it.
func newEnvMapper(known []string) func(string) string {
	keys := make(map[string]bool, len(known)+len(listKeys))
	for _, k := range known {
		keys[k] = true
	}
	for _, k := range listKeys {
		keys[k] = true
	}

	return func(name string) string {
		name = strings.ToLower(name)
		if key, ok := envAliases[name]; ok {
			return key
		}
		for _, section := range bareSections {
			if key := section + "." + name; keys[key] {
				return key
			}
		}

		section, leaf, ok := strings.Cut(name, "_")
		if !ok {
			return ""
		}
		if alias, ok := sectionAliases[section]; ok {
			section = alias
		}
		if key := section + "." + leaf; keys[key] {
			return key
		}
		return ""
	}
}

// WatchConfigFile runs onChange after each write to path. Watch errors are
// dropped; the next successful event still fires.
func WatchConfigFile(path string, onChange func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err == nil {
			onChange()
		}
	})
}
