package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type InvestigationStatus string

const (
	InvestigationOpen   InvestigationStatus = "open"
	InvestigationClosed InvestigationStatus = "closed"
)

// Juror vote choices. Party1 is always the dispute creator, party2 the
// opponent; the mapping is fixed when the investigation opens.
const (
	ChoiceParty1 = "party1"
	ChoiceParty2 = "party2"
	ChoiceDraw   = "draw"
)

type Investigation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DisputeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"dispute_id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`

	Party1 string `gorm:"type:varchar(64);not null" json:"party1"`
	Party2 string `gorm:"type:varchar(64);not null" json:"party2"`

	Status InvestigationStatus `gorm:"type:varchar(10);not null;index;default:'open'" json:"status"`

	CountP1   int `gorm:"not null;default:0" json:"count_party1"`
	CountP2   int `gorm:"not null;default:0" json:"count_party2"`
	CountDraw int `gorm:"not null;default:0" json:"count_draw"`

	// Quorum is the vote count that closes the investigation early; the
	// deadline closes it regardless.
	Quorum int `gorm:"not null" json:"quorum"`

	// Verdict is set exactly once, when the investigation closes.
	Verdict string `gorm:"type:varchar(10)" json:"verdict,omitempty"`

	// EvidenceSnapshot holds both parties' submissions as they were when the
	// investigation opened, so later overwrites cannot change what jurors saw.
	EvidenceSnapshot datatypes.JSON `gorm:"type:jsonb" json:"evidence_snapshot,omitempty"`

	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	EndsAt    time.Time  `gorm:"type:timestamptz;not null;index" json:"ends_at"`
	ClosedAt  *time.Time `gorm:"type:timestamptz" json:"closed_at,omitempty"`
}

func (Investigation) TableName() string {
	return "investigations"
}

// Due reports whether the review window has elapsed.
func (inv *Investigation) Due(now time.Time) bool {
	return !now.Before(inv.EndsAt)
}

// TotalVotes is the number of juror votes tallied so far.
func (inv *Investigation) TotalVotes() int {
	return inv.CountP1 + inv.CountP2 + inv.CountDraw
}

func NewInvestigation(disputeID uuid.UUID, title, party1, party2 string, quorum int, window time.Duration) Investigation {
	return Investigation{
		ID:        uuid.New(),
		DisputeID: disputeID,
		Title:     title,
		Party1:    party1,
		Party2:    party2,
		Status:    InvestigationOpen,
		Quorum:    quorum,
		EndsAt:    time.Now().UTC().Add(window),
	}
}
