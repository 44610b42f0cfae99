package models

import (
	"time"

	"github.com/google/uuid"
)

// Evidence is one party's account of the outcome. At most one row per
// (dispute, party); resubmission overwrites while the counterpart has not
// answered yet.
type Evidence struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DisputeID uuid.UUID `gorm:"type:uuid;not null;index:idx_evidence_dispute_party,unique" json:"dispute_id"`
	Party     string    `gorm:"type:varchar(64);not null;index:idx_evidence_dispute_party,unique" json:"party"`

	Description string `gorm:"type:text;not null" json:"description"`
	ImageRef    string `gorm:"type:varchar(200)" json:"image_ref,omitempty"`

	SubmittedAt time.Time `gorm:"type:timestamptz;not null" json:"submitted_at"`
}

func (Evidence) TableName() string {
	return "evidence_submissions"
}

func NewEvidence(disputeID uuid.UUID, party, description, imageRef string) Evidence {
	return Evidence{
		ID:          uuid.New(),
		DisputeID:   disputeID,
		Party:       party,
		Description: description,
		ImageRef:    imageRef,
		SubmittedAt: time.Now().UTC(),
	}
}
