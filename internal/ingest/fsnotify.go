// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package ingest

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

// FSNotifySource watches directories with fsnotify. fsnotify does not
// report who made a change, so every event carries the configured user.
// Watches are not recursive.
type FSNotifySource struct {
	watcher *fsnotify.Watcher
	user    string

	events chan Event
	errors chan error
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFSNotifySource starts watching paths.
func NewFSNotifySource(paths []string, user string, buffer int) (*FSNotifySource, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no watch paths configured")
	}
	if buffer <= 0 {
		buffer = 256
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			_ = watcher.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	s := &FSNotifySource{
		watcher: watcher,
		user:    user,
		events:  make(chan Event, buffer),
		errors:  make(chan error, 16),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()

	logging.Info().Strs("paths", paths).Msg("File event source started")
	return s, nil
}

func (s *FSNotifySource) run() {
	defer s.wg.Done()
	defer close(s.events)
	defer close(s.errors)

	for {
		select {
		case <-s.done:
			return
		case fe, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			ev, ok := translate(fe, s.user)
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			default:
				logging.Warn().Err(err).Msg("File watcher error dropped")
			}
		}
	}
}

// translate maps an fsnotify event to an Event. A new directory becomes
// MKDIR. A removed path cannot be inspected any more and is always DELETE.
func translate(fe fsnotify.Event, user string) (Event, bool) {
	ev := Event{Path: fe.Name, User: user}
	switch {
	case fe.Has(fsnotify.Create):
		ev.Operation = models.OpCreate
		if info, err := os.Stat(fe.Name); err == nil && info.IsDir() {
			ev.Operation = models.OpMkdir
		}
	case fe.Has(fsnotify.Write):
		ev.Operation = models.OpWrite
	case fe.Has(fsnotify.Remove):
		ev.Operation = models.OpDelete
	case fe.Has(fsnotify.Rename):
		ev.Operation = models.OpRename
	case fe.Has(fsnotify.Chmod):
		ev.Operation = models.OpOther
	default:
		return Event{}, false
	}
	return ev, true
}

func (s *FSNotifySource) Events() <-chan Event { return s.events }
func (s *FSNotifySource) Errors() <-chan error { return s.errors }

// Close stops the watcher and waits for the translation goroutine.
func (s *FSNotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
	})
	return err
}
