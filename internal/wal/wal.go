// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package wal is the durable intent log: newline-delimited JSON records in
// one active file, with size-based rotation into an archive directory and
// an in-place commit marker.
//
// All mutations (append, rotate, markCommitted) hold a single mutex. The
// markCommitted rewrite is a whole-file read/flip/replace and must never
// interleave with an append.
package wal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

// Store is the intent log used by the ingest loop, the 2PC participant,
// the coordinator and the recovery runner.
type Store interface {
	// Append writes rec as one line, rotating first when the active file
	// has grown past the configured threshold.
	Append(ctx context.Context, rec *models.Record) error

	// ReadAll returns every parseable record of the active file in append
	// order. Malformed lines are skipped.
	ReadAll(ctx context.Context) ([]models.Record, error)

	// MarkCommitted flips the first uncommitted record sharing rec's
	// identity. It reports false, with no write, when there is none.
	MarkCommitted(ctx context.Context, rec *models.Record) (bool, error)

	// Stats returns counters for monitoring.
	Stats() Stats

	// Close releases the active file handle.
	Close() error
}

// Stats contains WAL counters for monitoring.
type Stats struct {
	Appends        int64 `json:"appends"`
	Rotations      int64 `json:"rotations"`
	CommitsMarked  int64 `json:"commits_marked"`
	MalformedLines int64 `json:"malformed_lines"`
	// ArchivedUncommitted counts records rotation moved out of the active
	// file while still uncommitted.
	ArchivedUncommitted int64     `json:"archived_uncommitted"`
	ActiveBytes         int64     `json:"active_bytes"`
	LastWrite           time.Time `json:"last_write,omitempty"`
}

// FileStore implements Store on a single append-mode file.
type FileStore struct {
	config Config

	mu          sync.Mutex
	file        *os.File
	closed      bool
	rotationSeq uint64

	appends        atomic.Int64
	rotations      atomic.Int64
	commitsMarked  atomic.Int64
	malformedLines atomic.Int64
	archivedOpen   atomic.Int64
	lastWrite      atomic.Int64 // unix nanos
}

// maxLineBytes bounds a single record line when reading.
const maxLineBytes = 1 << 20

// Open validates cfg, creates the parent directories and opens (or creates)
// the active file.
func Open(cfg Config) (*FileStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, ioErr("mkdir", filepath.Dir(cfg.Path), err)
	}
	if cfg.ArchiveDir != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o750); err != nil {
			return nil, ioErr("mkdir", cfg.ArchiveDir, err)
		}
	}

	s := &FileStore{config: cfg}
	if err := s.openActiveLocked(); err != nil {
		return nil, err
	}

	if info, err := s.file.Stat(); err == nil {
		UpdateWALActiveSize(info.Size())
	}

	logging.Info().
		Str("path", cfg.Path).
		Str("archive_dir", cfg.ArchiveDir).
		Int64("rotate_bytes", cfg.RotateBytes).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("WAL opened")

	return s, nil
}

func (s *FileStore) openActiveLocked() error {
	f, err := os.OpenFile(s.config.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return ioErr("open", s.config.Path, err)
	}
	s.file = f
	return nil
}

// Append implements Store.
func (s *FileStore) Append(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return ErrNilRecord
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	line := *rec
	if line.LoggedAt.IsZero() {
		line.LoggedAt = start.UTC()
	}
	data, err := json.Marshal(&line)
	if err != nil {
		RecordWALAppendFailure()
		return fmt.Errorf("marshal record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	info, err := s.file.Stat()
	if err != nil {
		RecordWALAppendFailure()
		return ioErr("stat", s.config.Path, err)
	}
	size := info.Size()

	if s.config.RotateBytes > 0 && size > s.config.RotateBytes {
		if err := s.rotateLocked(); err != nil {
			RecordWALAppendFailure()
			return err
		}
		size = 0
	}

	if _, err := s.file.Write(data); err != nil {
		RecordWALAppendFailure()
		// Drop any partial line so the next reader does not see it.
		if terr := s.file.Truncate(size); terr != nil {
			logging.Error().Err(terr).Str("path", s.config.Path).Msg("WAL truncate after failed append")
		}
		return ioErr("append", s.config.Path, err)
	}
	if s.config.SyncWrites {
		if err := s.file.Sync(); err != nil {
			RecordWALAppendFailure()
			return ioErr("fsync", s.config.Path, err)
		}
	}

	s.appends.Add(1)
	s.lastWrite.Store(time.Now().UnixNano())
	RecordWALAppend()
	RecordWALAppendLatency(time.Since(start).Seconds())
	UpdateWALActiveSize(size + int64(len(data)))

	return nil
}

// rotateLocked moves the active file into the archive directory and opens a
// fresh one. On failure the original active file stays in place.
func (s *FileStore) rotateLocked() error {
	if err := os.MkdirAll(s.config.ArchiveDir, 0o750); err != nil {
		return ioErr("mkdir", s.config.ArchiveDir, err)
	}

	target, err := s.nextArchivePathLocked()
	if err != nil {
		return err
	}
	pending := s.countUncommittedLocked()

	if err := s.file.Close(); err != nil {
		return ioErr("close", s.config.Path, err)
	}
	if err := os.Rename(s.config.Path, target); err != nil {
		if reopenErr := s.openActiveLocked(); reopenErr != nil {
			return errors.Join(ioErr("rotate", target, err), reopenErr)
		}
		return ioErr("rotate", target, err)
	}
	if err := s.openActiveLocked(); err != nil {
		return err
	}
	syncDir(s.config.ArchiveDir)
	syncDir(filepath.Dir(s.config.Path))

	s.rotations.Add(1)
	RecordWALRotation()
	logging.Info().Str("archive", target).Msg("WAL rotated")

	if pending > 0 {
		s.archivedOpen.Add(int64(pending))
		RecordWALArchivedUncommitted(pending)
		logging.Warn().Int("uncommitted", pending).Str("archive", target).
			Msg("WAL rotated with uncommitted records, commit marking and recovery no longer reach them")
	}
	return nil
}

// countUncommittedLocked counts uncommitted records in the active file.
// Malformed lines are not tallied again here.
func (s *FileStore) countUncommittedLocked() int {
	records, _, err := readRecordsFile(s.config.Path)
	if err != nil {
		logging.Warn().Err(err).Str("path", s.config.Path).Msg("Cannot count uncommitted records before rotation")
		return 0
	}
	n := 0
	for i := range records {
		if !records[i].Committed {
			n++
		}
	}
	return n
}

// nextArchivePathLocked returns an archive name that does not exist yet.
// The sequence suffix keeps names unique within the same clock tick.
func (s *FileStore) nextArchivePathLocked() (string, error) {
	base := filepath.Base(s.config.Path)
	stamp := time.Now().UTC().Format("20060102T150405.000000000Z")
	for i := 0; i < 1000; i++ {
		s.rotationSeq++
		name := fmt.Sprintf("%s.%s.%06d", base, stamp, s.rotationSeq)
		target := filepath.Join(s.config.ArchiveDir, name)
		_, err := os.Stat(target)
		if errors.Is(err, fs.ErrNotExist) {
			return target, nil
		}
		if err != nil {
			return "", ioErr("stat", target, err)
		}
	}
	return "", ioErr("rotate", s.config.ArchiveDir, errors.New("no free archive name"))
}

// ReadAll implements Store.
func (s *FileStore) ReadAll(ctx context.Context) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	return s.readActiveLocked()
}

func (s *FileStore) readActiveLocked() ([]models.Record, error) {
	records, skipped, err := readRecordsFile(s.config.Path)
	if skipped > 0 {
		s.malformedLines.Add(int64(skipped))
	}
	return records, err
}

// readRecordsFile parses a WAL file. A missing file is empty. It returns
// the number of skipped malformed lines.
func readRecordsFile(path string) ([]models.Record, int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Record{}, 0, nil
	}
	if err != nil {
		return nil, 0, ioErr("open", path, err)
	}
	defer func() { _ = f.Close() }() //nolint:errcheck // read-only handle

	records, skipped, err := decodeRecords(f, path)
	if err != nil {
		return nil, skipped, err
	}
	return records, skipped, nil
}

func decodeRecords(r io.Reader, path string) ([]models.Record, int, error) {
	records := make([]models.Record, 0, 64)
	skipped := 0
	reader := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var rec models.Record
				if len(trimmed) > maxLineBytes {
					skipped++
					RecordWALMalformedLine()
					logging.Warn().Str("path", path).Int("line", lineNo).Int("bytes", len(trimmed)).Msg("Skipping oversized WAL line")
				} else if uerr := json.Unmarshal(trimmed, &rec); uerr != nil {
					skipped++
					RecordWALMalformedLine()
					logging.Warn().Err(uerr).Str("path", path).Int("line", lineNo).Msg("Skipping malformed WAL line")
				} else {
					records = append(records, rec)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return records, skipped, nil
		}
		if err != nil {
			return nil, skipped, ioErr("read", path, err)
		}
	}
}

// MarkCommitted implements Store.
func (s *FileStore) MarkCommitted(ctx context.Context, rec *models.Record) (bool, error) {
	if rec == nil {
		return false, ErrNilRecord
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	start := time.Now()
	records, err := s.readActiveLocked()
	if err != nil {
		return false, err
	}

	idx := -1
	for i := range records {
		if !records[i].Committed && records[i].SameIdentity(rec) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	records[idx].Committed = true

	if err := s.rewriteLocked(records); err != nil {
		return false, err
	}

	s.commitsMarked.Add(1)
	s.lastWrite.Store(time.Now().UnixNano())
	RecordWALCommitMarked()
	RecordWALRewriteLatency(time.Since(start).Seconds())

	logging.Debug().
		Str("operation", rec.Operation.String()).
		Str("path", rec.Path).
		Int("index", idx).
		Msg("WAL record marked committed")
	return true, nil
}

// rewriteLocked replaces the active file with records via a temp file and
// rename, then reopens the append handle on the new inode.
func (s *FileStore) rewriteLocked(records []models.Record) error {
	dir := filepath.Dir(s.config.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.config.Path)+".rewrite-*")
	if err != nil {
		return ioErr("rewrite", dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()        //nolint:errcheck // best effort on failure path
		_ = os.Remove(tmpPath) //nolint:errcheck // best effort on failure path
	}

	w := bufio.NewWriter(tmp)
	var size int64
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			cleanup()
			return fmt.Errorf("marshal record: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			cleanup()
			return ioErr("rewrite", tmpPath, err)
		}
		size += int64(len(data))
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return ioErr("rewrite", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return ioErr("fsync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best effort on failure path
		return ioErr("close", tmpPath, err)
	}

	if err := s.file.Close(); err != nil {
		logging.Warn().Err(err).Str("path", s.config.Path).Msg("Closing WAL before rewrite")
	}
	if err := os.Rename(tmpPath, s.config.Path); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best effort on failure path
		if reopenErr := s.openActiveLocked(); reopenErr != nil {
			return errors.Join(ioErr("rename", s.config.Path, err), reopenErr)
		}
		return ioErr("rename", s.config.Path, err)
	}
	syncDir(dir)
	UpdateWALActiveSize(size)
	return s.openActiveLocked()
}

// Stats implements Store.
func (s *FileStore) Stats() Stats {
	st := Stats{
		Appends:        s.appends.Load(),
		Rotations:      s.rotations.Load(),
		CommitsMarked:  s.commitsMarked.Load(),
		MalformedLines: s.malformedLines.Load(),

		ArchivedUncommitted: s.archivedOpen.Load(),
	}
	if ns := s.lastWrite.Load(); ns > 0 {
		st.LastWrite = time.Unix(0, ns).UTC()
	}
	if info, err := os.Stat(s.config.Path); err == nil {
		st.ActiveBytes = info.Size()
	}
	return st
}

// ArchiveFiles lists rotated files, oldest first.
func (s *FileStore) ArchiveFiles() ([]string, error) {
	if s.config.ArchiveDir == "" {
		return []string{}, nil
	}
	entries, err := os.ReadDir(s.config.ArchiveDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, ioErr("readdir", s.config.ArchiveDir, err)
	}

	prefix := filepath.Base(s.config.Path) + "."
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), prefix) {
			files = append(files, filepath.Join(s.config.ArchiveDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ReadArchive parses one archived file.
func ReadArchive(path string) ([]models.Record, error) {
	records, _, err := readRecordsFile(path)
	return records, err
}

// Close implements Store. It is safe to call more than once.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.file.Sync(); err != nil {
		logging.Warn().Err(err).Str("path", s.config.Path).Msg("WAL fsync on close")
	}
	if err := s.file.Close(); err != nil {
		return ioErr("close", s.config.Path, err)
	}
	logging.Info().Str("path", s.config.Path).Msg("WAL closed")
	return nil
}

// syncDir makes a rename durable. Failures are logged, not returned: some
// filesystems do not support fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	if err := d.Sync(); err != nil {
		logging.Debug().Err(err).Str("dir", dir).Msg("Directory fsync unsupported")
	}
	_ = d.Close() //nolint:errcheck // read-only handle
}
