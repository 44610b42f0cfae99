package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wagercourt/internal/escrow"
	"wagercourt/internal/models"
	"wagercourt/internal/notify"
	"wagercourt/internal/repository"
)

// DisputeService owns the dispute lifecycle: creation with the creator's
// stake in custody, the opponent's accept/reject decision, pre-acceptance
// refunds and payout claims. No transition commits before the matching
// ledger call has succeeded.
type DisputeService struct {
	Repo     repository.Repository
	Ledger   escrow.Ledger
	Notifier notify.Sender
	Events   Publisher
	Logger   *zap.Logger
	Locks    *KeyedMutex

	RetryAttempts int
	RetryBackoff  time.Duration
}

func NewDisputeService(repo repository.Repository, ledger escrow.Ledger, notifier notify.Sender, events Publisher, logger *zap.Logger, locks *KeyedMutex, retryAttempts int, retryBackoff time.Duration) *DisputeService {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &DisputeService{
		Repo:          repo,
		Ledger:        ledger,
		Notifier:      notifier,
		Events:        events,
		Logger:        logger,
		Locks:         locks,
		RetryAttempts: retryAttempts,
		RetryBackoff:  retryBackoff,
	}
}

type CreateDisputeInput struct {
	Opponent    string
	Title       string
	Description string
	ImageRef    string
	Currency    string
	Stake       decimal.Decimal
}

// Create opens a dispute against the named opponent and places the
// creator's stake in custody. The opponent must exist, accept disputes and
// accept stakes of this size.
func (s *DisputeService) Create(ctx context.Context, creator string, in CreateDisputeInput) (*models.Dispute, error) {
	switch {
	case in.Opponent == "":
		return nil, fmt.Errorf("%w: opponent is required", ErrValidation)
	case in.Opponent == creator:
		return nil, fmt.Errorf("%w: cannot open a dispute against yourself", ErrValidation)
	case in.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	case !in.Stake.IsPositive():
		return nil, fmt.Errorf("%w: stake must be positive", ErrValidation)
	}

	if _, err := s.Repo.EnsureUser(ctx, creator); err != nil {
		return nil, err
	}
	opponent, err := s.Repo.GetUserByUsername(ctx, in.Opponent)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: opponent %q is unknown", ErrNotFound, in.Opponent)
		}
		return nil, err
	}
	if !opponent.DisputeReadiness {
		return nil, fmt.Errorf("%w: opponent is not accepting disputes", ErrInvalidState)
	}
	if in.Stake.LessThan(opponent.MinStake) {
		return nil, fmt.Errorf("%w: stake below opponent minimum of %s", ErrInvalidState, opponent.MinStake)
	}

	d := models.NewDispute(creator, in.Opponent, in.Title, in.Description, in.ImageRef, in.Currency, in.Stake)

	err = callLedger(ctx, s.Logger, s.RetryAttempts, s.RetryBackoff, "deposit", func(ctx context.Context) error {
		return s.Ledger.Deposit(ctx, d.ID.String(), creator, d.Stake)
	})
	if err != nil {
		return nil, err
	}

	if err := s.Repo.InsertDispute(ctx, &d); err != nil {
		// Custody was opened; return the stake rather than strand it.
		if rerr := s.Ledger.Refund(context.WithoutCancel(ctx), d.ID.String(), creator); rerr != nil {
			s.Logger.Error("refund after failed insert",
				zap.String("dispute_id", d.ID.String()),
				zap.Error(rerr),
			)
		}
		return nil, err
	}

	notify.BestEffort(s.Notifier, s.Logger, d.Opponent,
		fmt.Sprintf("%s opened a dispute against you: %s (stake %s %s)", d.Creator, d.Title, d.Stake, d.Currency))
	publish(s.Events, Event{Type: EventDisputeCreated, DisputeID: d.ID.String(), Status: string(d.Status)})

	s.Logger.Info("dispute created",
		zap.String("dispute_id", d.ID.String()),
		zap.String("creator", d.Creator),
		zap.String("opponent", d.Opponent),
		zap.String("stake", d.Stake.String()),
	)
	return &d, nil
}

// Respond records the opponent's accept or reject decision on a fresh
// dispute. Accepting matches the stake; rejecting refunds the creator.
func (s *DisputeService) Respond(ctx context.Context, id uuid.UUID, username string, accept bool) (*models.Dispute, error) {
	unlock := s.Locks.Lock(id.String())
	defer unlock()

	d, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Opponent != username {
		return nil, fmt.Errorf("%w: only the opponent may respond", ErrUnauthorized)
	}
	if d.Status != models.DisputeCreated {
		return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidState, d.Status)
	}

	if accept {
		err = callLedger(ctx, s.Logger, s.RetryAttempts, s.RetryBackoff, "match deposit", func(ctx context.Context) error {
			return s.Ledger.MatchDeposit(ctx, d.ID.String(), username, d.Stake)
		})
		if err != nil {
			return nil, err
		}
		d.Status = models.DisputeAwaitingEvidence
		if err := s.Repo.SaveDispute(ctx, d); err != nil {
			return nil, err
		}
		notify.BestEffort(s.Notifier, s.Logger, d.Creator,
			fmt.Sprintf("%s accepted your dispute: %s", d.Opponent, d.Title))
		publish(s.Events, Event{Type: EventDisputeAccepted, DisputeID: d.ID.String(), Status: string(d.Status)})
		return d, nil
	}

	err = callLedger(ctx, s.Logger, s.RetryAttempts, s.RetryBackoff, "refund", func(ctx context.Context) error {
		return s.Ledger.Refund(ctx, d.ID.String(), d.Creator)
	})
	if err != nil {
		return nil, err
	}
	d.Status = models.DisputeRejected
	if err := s.Repo.SaveDispute(ctx, d); err != nil {
		return nil, err
	}
	notify.BestEffort(s.Notifier, s.Logger, d.Creator,
		fmt.Sprintf("%s rejected your dispute: %s", d.Opponent, d.Title))
	publish(s.Events, Event{Type: EventDisputeRejected, DisputeID: d.ID.String(), Status: string(d.Status)})
	return d, nil
}

// Refund lets the creator withdraw a dispute the opponent has not answered
// yet. The stake leaves custody before the row transitions.
func (s *DisputeService) Refund(ctx context.Context, id uuid.UUID, username string) (*models.Dispute, error) {
	unlock := s.Locks.Lock(id.String())
	defer unlock()

	d, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Creator != username {
		return nil, fmt.Errorf("%w: only the creator may withdraw", ErrUnauthorized)
	}
	if d.Status != models.DisputeCreated {
		return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidState, d.Status)
	}

	err = callLedger(ctx, s.Logger, s.RetryAttempts, s.RetryBackoff, "refund", func(ctx context.Context) error {
		return s.Ledger.Refund(ctx, d.ID.String(), d.Creator)
	})
	if err != nil {
		return nil, err
	}
	d.Status = models.DisputeRefunded
	if err := s.Repo.SaveDispute(ctx, d); err != nil {
		return nil, err
	}
	notify.BestEffort(s.Notifier, s.Logger, d.Opponent,
		fmt.Sprintf("%s withdrew the dispute: %s", d.Creator, d.Title))
	publish(s.Events, Event{Type: EventDisputeRefunded, DisputeID: d.ID.String(), Status: string(d.Status)})
	return d, nil
}

// Claim collects the caller's payout on a resolved dispute. When every
// payout has been collected the dispute moves to its final claimed state.
func (s *DisputeService) Claim(ctx context.Context, id uuid.UUID, username string) (*models.Dispute, error) {
	unlock := s.Locks.Lock(id.String())
	defer unlock()

	d, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsParty(username) {
		return nil, fmt.Errorf("%w: not a party to this dispute", ErrUnauthorized)
	}
	if d.Status != models.DisputeResolved && d.Status != models.DisputeClaimed {
		return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidState, d.Status)
	}

	switch username {
	case d.Creator:
		if !d.CreatorClaimable {
			return nil, fmt.Errorf("%w: no payout for %s", ErrInvalidState, username)
		}
		if d.CreatorClaimed {
			return nil, fmt.Errorf("%w: payout already claimed", ErrAlreadySettled)
		}
		d.CreatorClaimed = true
	case d.Opponent:
		if !d.OpponentClaimable {
			return nil, fmt.Errorf("%w: no payout for %s", ErrInvalidState, username)
		}
		if d.OpponentClaimed {
			return nil, fmt.Errorf("%w: payout already claimed", ErrAlreadySettled)
		}
		d.OpponentClaimed = true
	}

	if !d.Claimable(d.Creator) && !d.Claimable(d.Opponent) {
		d.Status = models.DisputeClaimed
	}
	if err := s.Repo.SaveDispute(ctx, d); err != nil {
		return nil, err
	}
	publish(s.Events, Event{Type: EventDisputeClaimed, DisputeID: d.ID.String(), Status: string(d.Status)})
	return d, nil
}

// Get returns a dispute to one of its parties.
func (s *DisputeService) Get(ctx context.Context, id uuid.UUID, username string) (*models.Dispute, error) {
	d, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsParty(username) {
		return nil, fmt.Errorf("%w: not a party to this dispute", ErrUnauthorized)
	}
	return d, nil
}

// List pages through the caller's disputes, newest first.
func (s *DisputeService) List(ctx context.Context, username string, status *models.DisputeStatus, limit, offset int) ([]models.Dispute, int64, error) {
	params := repository.ListDisputesParams{
		Party:  username,
		Status: status,
		Limit:  limit,
		Offset: offset,
	}
	items, err := s.Repo.ListDisputes(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountDisputes(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *DisputeService) getLocked(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, err := s.Repo.GetDisputeByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: dispute %s", ErrNotFound, id)
		}
		return nil, err
	}
	return d, nil
}

// finalize settles custody per outcome and marks the winning side's payout
// claimable. Callers hold the dispute lock.
func (s *DisputeService) finalize(ctx context.Context, d *models.Dispute, outcome models.Outcome) error {
	settlement := escrow.Outcome{}
	switch outcome {
	case models.OutcomeDraw:
		settlement.Draw = true
	case models.OutcomeCreator:
		settlement.Winner = d.Creator
	case models.OutcomeOpponent:
		settlement.Winner = d.Opponent
	default:
		return fmt.Errorf("%w: outcome %q", ErrValidation, outcome)
	}

	err := callLedger(ctx, s.Logger, s.RetryAttempts, s.RetryBackoff, "settle", func(ctx context.Context) error {
		return s.Ledger.Settle(ctx, d.ID.String(), settlement)
	})
	if err != nil && !errors.Is(err, ErrAlreadySettled) {
		return err
	}

	d.Outcome = outcome
	d.Status = models.DisputeResolved
	switch outcome {
	case models.OutcomeDraw:
		d.CreatorClaimable = true
		d.OpponentClaimable = true
	case models.OutcomeCreator:
		d.CreatorClaimable = true
	case models.OutcomeOpponent:
		d.OpponentClaimable = true
	}
	if err := s.Repo.SaveDispute(ctx, d); err != nil {
		return err
	}

	text := fmt.Sprintf("Dispute resolved: %s. Outcome: %s.", d.Title, outcome)
	notify.BestEffort(s.Notifier, s.Logger, d.Creator, text)
	notify.BestEffort(s.Notifier, s.Logger, d.Opponent, text)
	publish(s.Events, Event{
		Type:      EventDisputeResolved,
		DisputeID: d.ID.String(),
		Status:    string(d.Status),
		Outcome:   string(outcome),
	})

	s.Logger.Info("dispute resolved",
		zap.String("dispute_id", d.ID.String()),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
