// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package policy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/intentd/internal/models"
)

// Rule names the check that rejected an event.
type Rule string

const (
	RuleNone          Rule = ""
	RuleDenyExtension Rule = "deny_extension"
	RuleAllowExt      Rule = "allow_extension"
	RuleDenyPath      Rule = "deny_path"
	RuleAllowPath     Rule = "allow_path"
	RuleDenyUser      Rule = "deny_user"
	RuleAllowUser     Rule = "allow_user"
	RuleDenyOperation Rule = "deny_operation"
	RuleAllowOp       Rule = "allow_operation"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Admit bool
	Rule  Rule
}

var decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "policy_decisions_total",
	Help: "Admission decisions by result and rejecting rule",
}, []string{"result", "rule"})

// Filter evaluates events against the current snapshot of a Store.
type Filter struct {
	store *Store
}

// NewFilter returns a Filter reading from store.
func NewFilter(store *Store) *Filter {
	return &Filter{store: store}
}

// Admit reports whether the event may enter the WAL. It has no side
// effects besides a metric.
func (f *Filter) Admit(path string, op models.Operation, user string) bool {
	return f.Decide(path, op, user).Admit
}

// Decide is Admit plus the rule that rejected.
func (f *Filter) Decide(path string, op models.Operation, user string) Decision {
	d := f.store.Current().Evaluate(path, op, user)
	if d.Admit {
		decisionsTotal.WithLabelValues("admit", "").Inc()
	} else {
		decisionsTotal.WithLabelValues("reject", string(d.Rule)).Inc()
	}
	return d
}

// Evaluate applies the rules in order: extension deny, extension allow,
// path deny, path allow, user deny, user allow, operation deny, operation
// allow. An empty user skips both user checks.
func (p *Policy) Evaluate(path string, op models.Operation, user string) Decision {
	ext := Extension(path)

	if contains(p.denyExt, ext) {
		return Decision{Rule: RuleDenyExtension}
	}
	if p.allowExt != nil && !contains(p.allowExt, ext) {
		return Decision{Rule: RuleAllowExt}
	}

	if anyMatch(p.denyPath, path) {
		return Decision{Rule: RuleDenyPath}
	}
	if len(p.allowPath) > 0 && !anyMatch(p.allowPath, path) {
		return Decision{Rule: RuleAllowPath}
	}

	if user != "" {
		if contains(p.denyUser, user) {
			return Decision{Rule: RuleDenyUser}
		}
		if p.allowUser != nil && !contains(p.allowUser, user) {
			return Decision{Rule: RuleAllowUser}
		}
	}

	if contains(p.denyOp, op) {
		return Decision{Rule: RuleDenyOperation}
	}
	if p.allowOp != nil && !contains(p.allowOp, op) {
		return Decision{Rule: RuleAllowOp}
	}

	return Decision{Admit: true}
}
