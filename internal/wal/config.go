// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package wal

import (
	"path/filepath"
	"strings"
)

// Config locates the active log and its archive directory.
//
// The archive directory must live on the same filesystem as the active
// file: rotation is a rename.
type Config struct {
	// Path is the active log file.
	Path string

	// ArchiveDir receives rotated files named <base>.<UTC timestamp>.<seq>.
	ArchiveDir string

	// RotateBytes triggers rotation on the next append once the active
	// file is larger than this. 0 disables rotation.
	RotateBytes int64

	// SyncWrites fsyncs the active file after each append.
	SyncWrites bool
}

// DefaultConfig returns defaults matching config.defaultConfig.
func DefaultConfig() Config {
	return Config{
		Path:        "/data/intentd/intent.wal",
		ArchiveDir:  "/data/intentd/archive",
		RotateBytes: 64 << 20,
		SyncWrites:  true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return &ConfigError{Field: "Path", Message: "WAL path is required"}
	}
	if c.RotateBytes < 0 {
		return &ConfigError{Field: "RotateBytes", Message: "must not be negative"}
	}
	if c.RotateBytes > 0 && strings.TrimSpace(c.ArchiveDir) == "" {
		return &ConfigError{Field: "ArchiveDir", Message: "required when rotation is enabled"}
	}
	if c.ArchiveDir != "" && filepath.Clean(c.ArchiveDir) == filepath.Clean(filepath.Dir(c.Path)) {
		return &ConfigError{Field: "ArchiveDir", Message: "must differ from the directory of the active log"}
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "WAL config error: " + e.Field + ": " + e.Message
}
