// Intentd - Distributed Filesystem Intent Log and Commit Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intentd

package wal

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/intentd/internal/logging"
	"github.com/tomtom215/intentd/internal/models"
)

// Deliverer hands a record to the downstream consumer that applies it.
type Deliverer interface {
	Deliver(ctx context.Context, rec *models.Record) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, rec *models.Record) error

// Deliver implements Deliverer.
func (f DelivererFunc) Deliver(ctx context.Context, rec *models.Record) error {
	return f(ctx, rec)
}

// RecoveryResult summarizes one recovery pass.
type RecoveryResult struct {
	// Total is the number of records in the active log.
	Total int

	// Uncommitted is the number of records found with committed=false.
	Uncommitted int

	// Recovered were delivered and then marked committed.
	Recovered int

	// Failed were left uncommitted for the next boot.
	Failed int

	// Errors holds one entry per failed record.
	Errors []error

	Duration time.Duration
}

// RecoverUncommitted redelivers every uncommitted record once. A record is
// marked committed only after the deliverer accepts it. Failures are
// logged and left for the next process start; there is no retry within a
// pass.
//
// It is meant to run once at boot, before the HTTP listener starts.
func RecoverUncommitted(ctx context.Context, store Store, deliverer Deliverer) (*RecoveryResult, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer cannot be nil")
	}

	start := time.Now()
	result := &RecoveryResult{}

	records, err := store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read WAL: %w", err)
	}
	result.Total = len(records)

	pending := make([]models.Record, 0, len(records))
	for i := range records {
		if !records[i].Committed {
			pending = append(pending, records[i])
		}
	}
	result.Uncommitted = len(pending)

	if result.Uncommitted == 0 {
		logging.Info().Int("records", result.Total).Msg("WAL recovery: no uncommitted records")
		result.Duration = time.Since(start)
		return result, nil
	}

	logging.Info().Int("uncommitted", result.Uncommitted).Msg("WAL recovery found uncommitted records")

	for i := range pending {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, err)
			result.Duration = time.Since(start)
			return result, err
		}
		recoverOne(ctx, store, deliverer, &pending[i], result)
	}

	result.Duration = time.Since(start)

	logging.Info().
		Int("recovered", result.Recovered).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("WAL recovery complete")

	return result, nil
}

func recoverOne(ctx context.Context, store Store, deliverer Deliverer, rec *models.Record, result *RecoveryResult) {
	if err := deliverer.Deliver(ctx, rec); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("deliver %s %s: %w", rec.Operation, rec.Path, err))
		RecordWALRecoveryFailure()
		logging.Warn().
			Err(err).
			Str("operation", rec.Operation.String()).
			Str("path", rec.Path).
			Msg("WAL recovery: redelivery failed, record left uncommitted")
		return
	}

	if _, err := store.MarkCommitted(ctx, rec); err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("mark committed %s %s: %w", rec.Operation, rec.Path, err))
		RecordWALRecoveryFailure()
		logging.Error().
			Err(err).
			Str("operation", rec.Operation.String()).
			Str("path", rec.Path).
			Msg("WAL recovery: delivered but could not mark committed")
		return
	}

	result.Recovered++
	RecordWALRecovered()
}
