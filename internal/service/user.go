package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wagercourt/internal/models"
	"wagercourt/internal/repository"
)

// UserService exposes the per-user settings the dispute flow consults.
type UserService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func NewUserService(repo repository.Repository, logger *zap.Logger) *UserService {
	return &UserService{Repo: repo, Logger: logger}
}

// Me returns the caller's settings, provisioning the row on first contact.
func (s *UserService) Me(ctx context.Context, username string) (*models.User, error) {
	return s.Repo.EnsureUser(ctx, username)
}

type UpdateSettingsInput struct {
	DisputeReadiness     *bool
	MinStake             *decimal.Decimal
	NotificationsEnabled *bool
	ChatID               *int64
}

// UpdateSettings applies only the fields present in the request.
func (s *UserService) UpdateSettings(ctx context.Context, username string, in UpdateSettingsInput) (*models.User, error) {
	if _, err := s.Repo.EnsureUser(ctx, username); err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if in.DisputeReadiness != nil {
		updates["dispute_readiness"] = *in.DisputeReadiness
	}
	if in.MinStake != nil {
		if in.MinStake.IsNegative() {
			return nil, fmt.Errorf("%w: min_stake cannot be negative", ErrValidation)
		}
		updates["min_stake"] = *in.MinStake
	}
	if in.NotificationsEnabled != nil {
		updates["notifications_enabled"] = *in.NotificationsEnabled
	}
	if in.ChatID != nil {
		updates["chat_id"] = *in.ChatID
	}

	if len(updates) > 0 {
		if err := s.Repo.UpdateUserSettings(ctx, username, updates); err != nil {
			return nil, err
		}
	}
	return s.Repo.GetUserByUsername(ctx, username)
}
