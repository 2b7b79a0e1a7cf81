// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package policy decides which raw file events are admitted to the WAL.
//
// A policy file has four dimensions, each with optional allow and deny
// lists:
//
//	extensions:
//	  deny: [tmp, swp]
//	paths:
//	  allow: ["^/srv/", "/home/"]
//	  deny:  ["\\.git/"]
//	users:
//	  deny: [nobody]
//	operations:
//	  allow: [CREATE, WRITE, DELETE, RENAME]
//
// An absent or empty list places no constraint. A non-empty allow list
// makes its dimension mandatory. Deny is always checked first.
package policy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tomtom215/intentd/internal/models"
)

// Rules is one allow/deny pair.
type Rules struct {
	Allow []string `koanf:"allow" json:"allow,omitempty"`
	Deny  []string `koanf:"deny" json:"deny,omitempty"`
}

// Document is the on-disk policy shape.
type Document struct {
	Extensions Rules `koanf:"extensions" json:"extensions"`
	Paths      Rules `koanf:"paths" json:"paths"`
	Users      Rules `koanf:"users" json:"users"`
	Operations Rules `koanf:"operations" json:"operations"`
}

// pathPattern matches by regular expression, or by literal prefix when the
// pattern is not a valid expression.
type pathPattern struct {
	raw    string
	re     *regexp.Regexp
	prefix string
}

func compilePathPattern(raw string) pathPattern {
	if re, err := regexp.Compile(raw); err == nil {
		return pathPattern{raw: raw, re: re}
	}
	return pathPattern{raw: raw, prefix: raw}
}

func (p pathPattern) match(path string) bool {
	if p.re != nil {
		return p.re.MatchString(path)
	}
	return strings.HasPrefix(path, p.prefix)
}

// Policy is an immutable compiled snapshot. A nil set means "no list".
type Policy struct {
	allowExt  map[string]struct{}
	denyExt   map[string]struct{}
	allowPath []pathPattern
	denyPath  []pathPattern
	allowUser map[string]struct{}
	denyUser  map[string]struct{}
	allowOp   map[models.Operation]struct{}
	denyOp    map[models.Operation]struct{}

	doc Document
}

// AllowAll returns a policy with no lists.
func AllowAll() *Policy {
	return &Policy{}
}

// Compile validates doc and builds a Policy. Unknown operation names are
// an error; everything else is normalized.
func Compile(doc Document) (*Policy, error) {
	p := &Policy{
		allowExt:  extSet(doc.Extensions.Allow),
		denyExt:   extSet(doc.Extensions.Deny),
		allowPath: pathPatterns(doc.Paths.Allow),
		denyPath:  pathPatterns(doc.Paths.Deny),
		allowUser: stringSet(doc.Users.Allow),
		denyUser:  stringSet(doc.Users.Deny),
		doc:       doc,
	}

	var err error
	if p.allowOp, err = opSet(doc.Operations.Allow); err != nil {
		return nil, fmt.Errorf("operations.allow: %w", err)
	}
	if p.denyOp, err = opSet(doc.Operations.Deny); err != nil {
		return nil, fmt.Errorf("operations.deny: %w", err)
	}
	return p, nil
}

// Document returns the source document of the snapshot.
func (p *Policy) Document() Document {
	return p.doc
}

// Extension returns the lowercase extension of path without its dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func extSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = normalizeExt(v); v != "" {
			set[v] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func pathPatterns(values []string) []pathPattern {
	var out []pathPattern
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, compilePathPattern(v))
	}
	return out
}

func opSet(values []string) (map[models.Operation]struct{}, error) {
	set := make(map[models.Operation]struct{}, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		op, err := models.ParseOperation(v)
		if err != nil {
			return nil, err
		}
		set[op] = struct{}{}
	}
	if len(set) == 0 {
		return nil, nil
	}
	return set, nil
}

func contains[K comparable](set map[K]struct{}, key K) bool {
	_, ok := set[key]
	return ok
}

func anyMatch(patterns []pathPattern, path string) bool {
	for _, p := range patterns {
		if p.match(path) {
			return true
		}
	}
	return false
}
