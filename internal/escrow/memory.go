package escrow

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type account struct {
	depositor string
	amount    decimal.Decimal

	matcher string
	matched bool

	refunded bool
	settled  bool
	outcome  Outcome
}

// Memory is the in-process Ledger. A single mutex guards the account map;
// account-level guards make each operation idempotent, so the engine meets
// the contract without any cooperation from callers.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]*account
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*account)}
}

func (m *Memory) Deposit(_ context.Context, disputeID, party string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[disputeID]; ok {
		return ErrExists
	}
	m.accounts[disputeID] = &account{depositor: party, amount: amount}
	return nil
}

func (m *Memory) MatchDeposit(_ context.Context, disputeID, party string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[disputeID]
	if !ok {
		return ErrNotFound
	}
	if acc.refunded || acc.settled {
		return ErrAlreadySettled
	}
	if acc.matched {
		if acc.matcher == party {
			// Retry of a confirmed match.
			return nil
		}
		return ErrAlreadyMatched
	}
	if !acc.amount.Equal(amount) {
		return ErrAmountMismatch
	}
	acc.matcher = party
	acc.matched = true
	return nil
}

func (m *Memory) Refund(_ context.Context, disputeID, party string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[disputeID]
	if !ok {
		return ErrNotFound
	}
	if acc.matched {
		return ErrAlreadyMatched
	}
	if acc.refunded {
		return ErrAlreadyRefunded
	}
	if acc.depositor != party {
		return ErrUnknownParty
	}
	acc.refunded = true
	return nil
}

func (m *Memory) Settle(_ context.Context, disputeID string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[disputeID]
	if !ok {
		return ErrNotFound
	}
	if acc.refunded {
		return ErrAlreadyRefunded
	}
	if !acc.matched {
		return ErrNotMatched
	}
	if acc.settled {
		if acc.outcome == outcome {
			return nil
		}
		return ErrOutcomeConflict
	}
	if !outcome.Draw && outcome.Winner != acc.depositor && outcome.Winner != acc.matcher {
		return ErrUnknownParty
	}
	acc.settled = true
	acc.outcome = outcome
	return nil
}

func (m *Memory) Balance(_ context.Context, disputeID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[disputeID]
	if !ok {
		return decimal.Zero, nil
	}
	if acc.refunded || acc.settled {
		return decimal.Zero, nil
	}
	if acc.matched {
		return acc.amount.Mul(decimal.NewFromInt(2)), nil
	}
	return acc.amount, nil
}
