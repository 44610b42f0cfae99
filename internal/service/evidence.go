package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wagercourt/internal/models"
	"wagercourt/internal/repository"
)

// EvidenceService handles the post-acceptance answer protocol: each party
// submits evidence plus a self-vote ("I won"). Once both parties have
// answered, the votes decide the outcome or escalate to an investigation.
type EvidenceService struct {
	Repo           repository.Repository
	Disputes       *DisputeService
	Investigations *InvestigationService
	Logger         *zap.Logger
}

func NewEvidenceService(repo repository.Repository, disputes *DisputeService, investigations *InvestigationService, logger *zap.Logger) *EvidenceService {
	return &EvidenceService{
		Repo:           repo,
		Disputes:       disputes,
		Investigations: investigations,
		Logger:         logger,
	}
}

type SubmitEvidenceInput struct {
	Description string
	ImageRef    string
	SelfVote    bool
}

// Submit records a party's evidence and self-vote. Resubmission overwrites
// the party's own evidence only while the counterpart has not answered;
// afterwards the dispute has moved on and the submission is rejected.
func (s *EvidenceService) Submit(ctx context.Context, disputeID uuid.UUID, party string, in SubmitEvidenceInput) (*models.Dispute, error) {
	if in.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}

	unlock := s.Disputes.Locks.Lock(disputeID.String())
	defer unlock()

	d, err := s.answerable(ctx, disputeID, party)
	if err != nil {
		return nil, err
	}

	ev := models.NewEvidence(d.ID, party, in.Description, in.ImageRef)
	if err := s.Repo.UpsertEvidence(ctx, &ev); err != nil {
		return nil, err
	}

	return s.recordVote(ctx, d, party, in.SelfVote)
}

// Vote records or changes a party's self-vote without touching evidence.
// The same overwrite window applies.
func (s *EvidenceService) Vote(ctx context.Context, disputeID uuid.UUID, party string, selfVote bool) (*models.Dispute, error) {
	unlock := s.Disputes.Locks.Lock(disputeID.String())
	defer unlock()

	d, err := s.answerable(ctx, disputeID, party)
	if err != nil {
		return nil, err
	}
	return s.recordVote(ctx, d, party, selfVote)
}

// ListByDispute returns both parties' submissions ordered by submission
// time. Rows are immutable once the dispute leaves the answer phase.
func (s *EvidenceService) ListByDispute(ctx context.Context, disputeID uuid.UUID) ([]models.Evidence, error) {
	return s.Repo.ListEvidenceByDispute(ctx, disputeID)
}

// answerable loads the dispute and checks that party may still answer.
// Callers hold the dispute lock.
func (s *EvidenceService) answerable(ctx context.Context, disputeID uuid.UUID, party string) (*models.Dispute, error) {
	d, err := s.Disputes.getLocked(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !d.IsParty(party) {
		return nil, fmt.Errorf("%w: not a party to this dispute", ErrUnauthorized)
	}
	switch d.Status {
	case models.DisputeAwaitingEvidence, models.DisputePartiallyAnswered:
		return d, nil
	case models.DisputeUnderInvestigation, models.DisputeResolved, models.DisputeClaimed:
		return nil, fmt.Errorf("%w: both parties have answered", ErrConflict)
	}
	return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidState, d.Status)
}

// recordVote stores the party's self-vote and, when both parties have
// answered, applies the decision: agreement resolves the dispute, mutual
// victory claims escalate to an investigation.
func (s *EvidenceService) recordVote(ctx context.Context, d *models.Dispute, party string, selfVote bool) (*models.Dispute, error) {
	vote := selfVote
	var counterpart *bool
	if party == d.Creator {
		d.CreatorVote = &vote
		counterpart = d.OpponentVote
	} else {
		d.OpponentVote = &vote
		counterpart = d.CreatorVote
	}

	if counterpart == nil {
		d.Status = models.DisputePartiallyAnswered
		if err := s.Repo.SaveDispute(ctx, d); err != nil {
			return nil, err
		}
		publish(s.Disputes.Events, Event{Type: EventDisputeAnswered, DisputeID: d.ID.String(), Status: string(d.Status)})
		return d, nil
	}

	// Both answered: two victory claims need jurors, anything else resolves
	// directly.
	creatorWon := d.CreatorVote != nil && *d.CreatorVote
	opponentWon := d.OpponentVote != nil && *d.OpponentVote
	switch {
	case creatorWon && opponentWon:
		if err := s.Investigations.openForDispute(ctx, d); err != nil {
			return nil, err
		}
	case !creatorWon && !opponentWon:
		if err := s.Disputes.finalize(ctx, d, models.OutcomeDraw); err != nil {
			return nil, err
		}
	case creatorWon:
		if err := s.Disputes.finalize(ctx, d, models.OutcomeCreator); err != nil {
			return nil, err
		}
	default:
		if err := s.Disputes.finalize(ctx, d, models.OutcomeOpponent); err != nil {
			return nil, err
		}
	}
	return d, nil
}
