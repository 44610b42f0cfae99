package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"wagercourt/internal/escrow"
)

func TestCallLedgerRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := callLedger(context.Background(), zap.NewNop(), 3, time.Millisecond, "settle", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("gateway timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want success after retries", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestCallLedgerExhaustionIsEscrowFailure(t *testing.T) {
	calls := 0
	err := callLedger(context.Background(), zap.NewNop(), 3, time.Millisecond, "deposit", func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	if !errors.Is(err, ErrEscrowFailure) {
		t.Fatalf("err = %v, want ErrEscrowFailure", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want all 3 attempts used", calls)
	}
}

func TestCallLedgerContractErrorsNotRetried(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"already settled", escrow.ErrAlreadySettled, ErrAlreadySettled},
		{"outcome conflict", escrow.ErrOutcomeConflict, ErrConflict},
		{"already matched", escrow.ErrAlreadyMatched, ErrInvalidState},
		{"amount mismatch", escrow.ErrAmountMismatch, ErrInvalidState},
		{"not found", escrow.ErrNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := callLedger(context.Background(), zap.NewNop(), 3, time.Millisecond, "op", func(context.Context) error {
				calls++
				return tc.in
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, contract errors must not be retried", calls)
			}
		})
	}
}

func TestCallLedgerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := callLedger(ctx, zap.NewNop(), 5, 10*time.Second, "deposit", func(context.Context) error {
		calls++
		return errors.New("gateway timeout")
	})
	if !errors.Is(err, ErrEscrowFailure) {
		t.Fatalf("err = %v, want ErrEscrowFailure", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 before the context stopped the backoff", calls)
	}
}
