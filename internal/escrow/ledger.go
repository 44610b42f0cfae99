package escrow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Outcome is the settlement instruction for a dispute's escrowed funds.
// When Draw is false, Winner receives the whole pot; on a draw each
// depositor gets their own stake back.
type Outcome struct {
	Draw   bool
	Winner string
}

var (
	ErrExists          = errors.New("escrow: deposit already exists for dispute")
	ErrNotFound        = errors.New("escrow: no custody record for dispute")
	ErrAmountMismatch  = errors.New("escrow: match amount does not equal deposit")
	ErrAlreadyMatched  = errors.New("escrow: deposit already matched")
	ErrNotMatched      = errors.New("escrow: deposit not matched")
	ErrAlreadyRefunded = errors.New("escrow: deposit already refunded")
	ErrAlreadySettled  = errors.New("escrow: dispute already settled")
	ErrOutcomeConflict = errors.New("escrow: settle retried with a different outcome")
	ErrUnknownParty    = errors.New("escrow: party holds no funds in this dispute")
)

// Ledger is the fund-custody boundary. Implementations must serialize all
// operations on the same dispute id and keep every operation idempotent per
// dispute, so the lifecycle manager can retry blindly. Settle with the same
// outcome twice is a no-op success; a conflicting outcome is
// ErrOutcomeConflict.
type Ledger interface {
	// Deposit opens custody with the creator's stake. Fails with ErrExists
	// if a record for the dispute already exists.
	Deposit(ctx context.Context, disputeID, party string, amount decimal.Decimal) error

	// MatchDeposit adds the opponent's equal stake. Requires an existing
	// single-party deposit of the same amount.
	MatchDeposit(ctx context.Context, disputeID, party string, amount decimal.Decimal) error

	// Refund returns the sole depositor's stake. Permitted only while the
	// deposit is unmatched; fails loudly otherwise.
	Refund(ctx context.Context, disputeID, party string) error

	// Settle releases the pot per outcome, exactly once per dispute.
	Settle(ctx context.Context, disputeID string, outcome Outcome) error

	// Balance reports the total value currently custodied for the dispute:
	// zero, one stake, or two stakes.
	Balance(ctx context.Context, disputeID string) (decimal.Decimal, error)
}
