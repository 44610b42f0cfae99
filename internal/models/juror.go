package models

import (
	"time"

	"github.com/google/uuid"
)

// JurorVote records one juror's choice on one investigation. Duplicate votes
// from the same juror are rejected, never overwritten.
type JurorVote struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InvestigationID uuid.UUID `gorm:"type:uuid;not null;index:idx_vote_investigation_juror,unique" json:"investigation_id"`
	Juror           string    `gorm:"type:varchar(64);not null;index:idx_vote_investigation_juror,unique" json:"juror"`
	Choice          string    `gorm:"type:varchar(10);not null" json:"choice"`
	CreatedAt       time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (JurorVote) TableName() string {
	return "juror_votes"
}

func NewJurorVote(investigationID uuid.UUID, juror, choice string) JurorVote {
	return JurorVote{
		ID:              uuid.New(),
		InvestigationID: investigationID,
		Juror:           juror,
		Choice:          choice,
	}
}

// JurorRating is the cumulative correctness aggregate per juror. Written only
// when an investigation closes, as atomic increments.
type JurorRating struct {
	Juror        string    `gorm:"type:varchar(64);primaryKey" json:"juror"`
	CorrectCount int64     `gorm:"not null;default:0" json:"correct_count"`
	TotalCount   int64     `gorm:"not null;default:0" json:"total_count"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (JurorRating) TableName() string {
	return "juror_ratings"
}

// Accuracy is correct/total, zero when the juror has not voted yet.
func (r JurorRating) Accuracy() float64 {
	if r.TotalCount == 0 {
		return 0
	}
	return float64(r.CorrectCount) / float64(r.TotalCount)
}
