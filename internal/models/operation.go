// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package models

import (
	"fmt"
	"strings"
)

// Operation is the kind of filesystem change an intent describes.
// The set is closed: values outside it are rejected at every boundary
// instead of being folded into OpOther.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpWrite  Operation = "WRITE"
	OpDelete Operation = "DELETE"
	OpRename Operation = "RENAME"
	OpMkdir  Operation = "MKDIR"
	OpRmdir  Operation = "RMDIR"
	OpOther  Operation = "OTHER"
)

// Operations lists every valid operation in declaration order.
var Operations = []Operation{OpCreate, OpWrite, OpDelete, OpRename, OpMkdir, OpRmdir, OpOther}

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpWrite, OpDelete, OpRename, OpMkdir, OpRmdir, OpOther:
		return true
	default:
		return false
	}
}

func (o Operation) String() string {
	return string(o)
}

// UnmarshalText normalizes case and surrounding whitespace. Unknown names
// are kept verbatim so that validation can report them.
func (o *Operation) UnmarshalText(b []byte) error {
	*o = Operation(strings.ToUpper(strings.TrimSpace(string(b))))
	return nil
}

// ParseOperation converts a case-insensitive name into an Operation.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	if !op.Valid() {
		return "", fmt.Errorf("unknown operation %q", s)
	}
	return op, nil
}

// OperationList joins Operations with ", " for messages.
func OperationList() string {
	names := make([]string, len(Operations))
	for i, op := range Operations {
		names[i] = string(op)
	}
	return strings.Join(names, ", ")
}
