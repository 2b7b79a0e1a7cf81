// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

// Package validation wraps go-playground/validator for intent records and
// admin request bodies.
//
// One engine is shared by the process. Besides the stock tags it knows
// "operation", which accepts only the closed set of models.Operation values.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/intentd/internal/models"
)

var (
	engine     *validator.Validate
	engineOnce sync.Once
)

// FieldError is one rejected field.
type FieldError struct {
	Field   string
	Rule    string
	Param   string
	Value   any
	Message string
}

func (f FieldError) Error() string { return f.Message }

// Errors is the list of rejected fields of one struct. A nil Errors means
// the struct passed.
type Errors []FieldError

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, f := range e {
		parts[i] = f.Message
	}
	return strings.Join(parts, "; ")
}

// First returns the first rejected field.
func (e Errors) First() FieldError {
	if len(e) == 0 {
		return FieldError{Field: "unknown", Rule: "unknown", Message: "validation failed"}
	}
	return e[0]
}

// Details renders the errors for an API error body. A single field is
// flattened; several are listed under "fields".
func (e Errors) Details() map[string]any {
	if len(e) == 1 {
		return map[string]any{"field": e[0].Field, "tag": e[0].Rule, "value": e[0].Value}
	}
	fields := make([]map[string]any, len(e))
	for i, f := range e {
		fields[i] = map[string]any{"field": f.Field, "tag": f.Rule, "message": f.Message}
	}
	return map[string]any{"fields": fields}
}

// Summary is a message naming every field, suited to a response body.
func (e Errors) Summary() string {
	if len(e) == 1 {
		return e[0].Message
	}
	parts := make([]string, len(e))
	for i, f := range e {
		parts[i] = f.Field + ": " + f.Message
	}
	return strings.Join(parts, "; ")
}

// Engine returns the shared validator.
func Engine() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New(validator.WithRequiredStructEnabled())
		// Only an empty tag or nil func can fail here.
		_ = engine.RegisterValidation("operation", isOperation) //nolint:errcheck
	})
	return engine
}

func isOperation(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case models.Operation:
		return v.Valid()
	case string:
		return models.Operation(v).Valid()
	}
	return false
}

// ValidateStruct checks v against its validate tags.
func ValidateStruct(v any) Errors {
	err := Engine().Struct(v)
	if err == nil {
		return nil
	}

	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return Errors{{Field: "unknown", Rule: "unknown", Message: err.Error()}}
	}

	out := make(Errors, len(fes))
	for i, fe := range fes {
		out[i] = FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: describe(fe),
		}
	}
	return out
}

func describe(fe validator.FieldError) string {
	name, param := fe.Field(), fe.Param()
	unit := ""
	if fe.Kind().String() == "string" {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "operation":
		return name + " must be one of " + models.OperationList()
	case "url":
		return name + " must be a valid URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, param)
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s%s", name, param, unit)
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s%s", name, param, unit)
	}
	return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
}
