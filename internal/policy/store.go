// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package policy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/intentd/internal/logging"
)

// Load reads and compiles a YAML policy file.
func Load(path string) (*Policy, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load policy %s: %w", path, err)
	}

	var doc Document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("decode policy %s: %w", path, err)
	}
	p, err := Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("compile policy %s: %w", path, err)
	}
	return p, nil
}

// Store holds the current policy snapshot. Readers never block; reloads
// replace the snapshot atomically and keep no history.
type Store struct {
	path     string
	current  atomic.Pointer[Policy]
	reloadMu sync.Mutex
	loadedAt atomic.Int64
	reloads  atomic.Int64
}

// NewStore loads path. An empty path yields an admit-all policy that
// Reload keeps in place.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		s.swap(AllowAll())
		return s, nil
	}
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.swap(p)
	return s, nil
}

// NewStaticStore wraps an already compiled policy. Reload is a no-op.
func NewStaticStore(p *Policy) *Store {
	s := &Store{}
	s.swap(p)
	return s
}

func (s *Store) swap(p *Policy) {
	s.current.Store(p)
	s.loadedAt.Store(time.Now().UnixNano())
}

// Current returns the active snapshot.
func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Replace installs p as the active snapshot.
func (s *Store) Replace(p *Policy) {
	s.swap(p)
}

// Path returns the backing file, or "" for static stores.
func (s *Store) Path() string {
	return s.path
}

// LoadedAt returns when the active snapshot was installed.
func (s *Store) LoadedAt() time.Time {
	return time.Unix(0, s.loadedAt.Load()).UTC()
}

// Reload re-reads the backing file. On error the previous snapshot stays
// active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	p, err := Load(s.path)
	if err != nil {
		logging.Warn().Err(err).Str("path", s.path).Msg("Policy reload failed, keeping previous snapshot")
		return err
	}
	s.swap(p)
	s.reloads.Add(1)
	logging.Info().Str("path", s.path).Int64("reloads", s.reloads.Load()).Msg("Policy reloaded")
	return nil
}

// Watcher reloads a Store whenever its file changes. It is a suture
// service.
type Watcher struct {
	store *Store
}

// NewWatcher returns a Watcher for store.
func NewWatcher(store *Store) *Watcher {
	return &Watcher{store: store}
}

// Serve blocks until ctx is done.
func (w *Watcher) Serve(ctx context.Context) error {
	if w.store.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	provider := file.Provider(w.store.path)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			logging.Warn().Err(err).Str("path", w.store.path).Msg("Policy watch error")
			return
		}
		_ = w.store.Reload() //nolint:errcheck // logged inside Reload
	})
	if err != nil {
		return fmt.Errorf("watch policy %s: %w", w.store.path, err)
	}

	logging.Info().Str("path", w.store.path).Msg("Watching policy file")
	<-ctx.Done()
	if uerr := provider.Unwatch(); uerr != nil {
		logging.Debug().Err(uerr).Msg("Policy unwatch")
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (w *Watcher) String() string {
	return "policy-watcher"
}
