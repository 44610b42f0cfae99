package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"wagercourt/internal/models"
)

var (
	ErrNotFound  = errors.New("repository: not found")
	ErrDuplicate = errors.New("repository: duplicate")
)

// Leaderboard scoring modes. Correct-count is the default; accuracy ranks by
// correct/total.
const (
	ScoreByCorrect  = "correct"
	ScoreByAccuracy = "accuracy"
)

type ListDisputesParams struct {
	Party  string
	Status *models.DisputeStatus
	Limit  int
	Offset int
}

type ListInvestigationsParams struct {
	Status *models.InvestigationStatus
	// ExcludeParty hides investigations the given user is a party to, so a
	// juror listing never offers a user their own dispute.
	ExcludeParty string
	Limit        int
	Offset       int
}

// Repository is the persistence boundary shared by all services. The gorm
// implementation backs production; the memory implementation backs tests and
// single-process dev runs.
type Repository interface {
	// Users
	EnsureUser(ctx context.Context, username string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUserSettings(ctx context.Context, username string, updates map[string]any) error
	CountUsers(ctx context.Context) (int64, error)

	// Disputes
	InsertDispute(ctx context.Context, item *models.Dispute) error
	GetDisputeByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	SaveDispute(ctx context.Context, item *models.Dispute) error
	ListDisputes(ctx context.Context, params ListDisputesParams) ([]models.Dispute, error)
	CountDisputes(ctx context.Context, params ListDisputesParams) (int64, error)

	// Evidence
	UpsertEvidence(ctx context.Context, item *models.Evidence) error
	GetEvidence(ctx context.Context, disputeID uuid.UUID, party string) (*models.Evidence, error)
	ListEvidenceByDispute(ctx context.Context, disputeID uuid.UUID) ([]models.Evidence, error)

	// Investigations
	InsertInvestigation(ctx context.Context, item *models.Investigation) error
	GetInvestigationByID(ctx context.Context, id uuid.UUID) (*models.Investigation, error)
	GetInvestigationByDisputeID(ctx context.Context, disputeID uuid.UUID) (*models.Investigation, error)
	SaveInvestigation(ctx context.Context, item *models.Investigation) error
	ListInvestigations(ctx context.Context, params ListInvestigationsParams) ([]models.Investigation, error)
	ListDueOpenInvestigations(ctx context.Context, now time.Time, limit int) ([]models.Investigation, error)

	// CloseInvestigation persists the closed investigation row and applies
	// the juror rating increments in one transaction, so a verdict is never
	// recorded without its rating updates.
	CloseInvestigation(ctx context.Context, item *models.Investigation, correct, all []string) error

	// Juror votes
	InsertJurorVote(ctx context.Context, item *models.JurorVote) error
	ListJurorVotes(ctx context.Context, investigationID uuid.UUID) ([]models.JurorVote, error)
	HasJurorVoted(ctx context.Context, investigationID uuid.UUID, juror string) (bool, error)

	// Juror ratings. IncrementJurorRatings bumps total_count for every juror
	// in all and correct_count for the subset in correct, as atomic
	// per-row increments.
	IncrementJurorRatings(ctx context.Context, correct, all []string) error
	GetJurorRating(ctx context.Context, juror string) (*models.JurorRating, error)
	ListTopJurors(ctx context.Context, scoring string, limit int) ([]models.JurorRating, error)
}
