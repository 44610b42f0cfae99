package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User carries the per-user settings the dispute flow consults: whether the
// user accepts new disputes, the smallest stake they accept, and whether they
// want push notifications. Identity/session handling lives outside this
// service.
type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"username"`

	DisputeReadiness     bool            `gorm:"not null;default:false" json:"dispute_readiness"`
	MinStake             decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"min_stake"`
	NotificationsEnabled bool            `gorm:"not null;default:false" json:"notifications_enabled"`
	ChatID               int64           `gorm:"not null;default:0" json:"chat_id,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func NewUser(username string) User {
	return User{
		ID:       uuid.New(),
		Username: username,
		MinStake: decimal.Zero,
	}
}
