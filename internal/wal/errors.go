// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package wal

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("WAL store is closed")

	// ErrNilRecord is returned when a nil record is appended or marked.
	ErrNilRecord = errors.New("record cannot be nil")

	// ErrWALIO matches every *IOError via errors.Is.
	ErrWALIO = errors.New("WAL I/O error")
)

// IOError is a disk failure while touching the log. It is never fatal to
// the process; callers decide whether to retry or surface it.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("WAL %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrWALIO and the underlying cause.
func (e *IOError) Unwrap() []error {
	return []error{ErrWALIO, e.Err}
}

func ioErr(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
