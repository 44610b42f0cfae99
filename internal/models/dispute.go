package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DisputeStatus is the closed set of lifecycle states. Transitions are owned
// by service.DisputeService; rows never move backwards.
type DisputeStatus string

const (
	DisputeCreated            DisputeStatus = "created"
	DisputeRejected           DisputeStatus = "rejected"
	DisputeRefunded           DisputeStatus = "refunded"
	DisputeAwaitingEvidence   DisputeStatus = "awaiting_evidence"
	DisputePartiallyAnswered  DisputeStatus = "partially_answered"
	DisputeUnderInvestigation DisputeStatus = "under_investigation"
	DisputeResolved           DisputeStatus = "resolved"
	DisputeClaimed            DisputeStatus = "claimed"
)

// Outcome is the resolution payload. Empty until the dispute is resolved.
type Outcome string

const (
	OutcomeCreator  Outcome = "creator"
	OutcomeOpponent Outcome = "opponent"
	OutcomeDraw     Outcome = "draw"
)

type Dispute struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Creator  string    `gorm:"type:varchar(64);not null;index" json:"creator"`
	Opponent string    `gorm:"type:varchar(64);not null;index" json:"opponent"`

	Title       string `gorm:"type:varchar(200);not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	ImageRef    string `gorm:"type:varchar(200)" json:"image_ref,omitempty"`

	Currency string          `gorm:"type:varchar(10);not null;default:'TON'" json:"currency"`
	Stake    decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"stake"`

	Status  DisputeStatus `gorm:"type:varchar(30);not null;index;default:'created'" json:"status"`
	Outcome Outcome       `gorm:"type:varchar(10)" json:"outcome,omitempty"`

	// Self-votes are relative to the submitting party: true means "I won".
	// Nil until that party has answered.
	CreatorVote  *bool `json:"creator_vote,omitempty"`
	OpponentVote *bool `json:"opponent_vote,omitempty"`

	CreatorClaimable  bool `gorm:"not null;default:false" json:"creator_claimable"`
	OpponentClaimable bool `gorm:"not null;default:false" json:"opponent_claimable"`
	CreatorClaimed    bool `gorm:"not null;default:false" json:"creator_claimed"`
	OpponentClaimed   bool `gorm:"not null;default:false" json:"opponent_claimed"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Dispute) TableName() string {
	return "disputes"
}

// IsParty reports whether username is one of the two disputing parties.
func (d *Dispute) IsParty(username string) bool {
	return username == d.Creator || username == d.Opponent
}

// Terminal reports whether the dispute can no longer change state, other
// than outstanding claims being collected.
func (d *Dispute) Terminal() bool {
	switch d.Status {
	case DisputeRejected, DisputeRefunded, DisputeResolved, DisputeClaimed:
		return true
	}
	return false
}

// Vote returns the recorded self-vote for the given party.
func (d *Dispute) Vote(username string) *bool {
	if username == d.Creator {
		return d.CreatorVote
	}
	if username == d.Opponent {
		return d.OpponentVote
	}
	return nil
}

// Claimable reports whether the given party currently holds an unclaimed
// payout on this dispute.
func (d *Dispute) Claimable(username string) bool {
	if username == d.Creator {
		return d.CreatorClaimable && !d.CreatorClaimed
	}
	if username == d.Opponent {
		return d.OpponentClaimable && !d.OpponentClaimed
	}
	return false
}

func NewDispute(creator, opponent, title, description, imageRef, currency string, stake decimal.Decimal) Dispute {
	if currency == "" {
		currency = "TON"
	}
	return Dispute{
		ID:          uuid.New(),
		Creator:     creator,
		Opponent:    opponent,
		Title:       title,
		Description: description,
		ImageRef:    imageRef,
		Currency:    currency,
		Stake:       stake,
		Status:      DisputeCreated,
	}
}
