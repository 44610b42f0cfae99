package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wagercourt/internal/escrow"
)

// callLedger runs one custody operation with bounded retries. Contract
// errors from the ledger are deterministic and returned on the first
// attempt; only transport-level failures are retried. Exhaustion surfaces
// ErrEscrowFailure so handlers can flag the error retryable.
func callLedger(ctx context.Context, logger *zap.Logger, attempts int, backoff time.Duration, op string, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if mapped := mapLedgerErr(err); mapped != nil {
			return fmt.Errorf("%s: %w", op, mapped)
		}
		if logger != nil {
			logger.Warn("ledger call failed",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %w", op, ErrEscrowFailure, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrEscrowFailure, err)
}

// mapLedgerErr translates escrow contract errors into service error kinds.
// Returns nil for anything retryable.
func mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, escrow.ErrAlreadySettled):
		return ErrAlreadySettled
	case errors.Is(err, escrow.ErrOutcomeConflict):
		return ErrConflict
	case errors.Is(err, escrow.ErrExists),
		errors.Is(err, escrow.ErrAmountMismatch),
		errors.Is(err, escrow.ErrAlreadyMatched),
		errors.Is(err, escrow.ErrNotMatched),
		errors.Is(err, escrow.ErrAlreadyRefunded),
		errors.Is(err, escrow.ErrUnknownParty):
		return ErrInvalidState
	case errors.Is(err, escrow.ErrNotFound):
		return ErrNotFound
	}
	return nil
}
