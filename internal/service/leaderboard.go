package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"wagercourt/internal/models"
	"wagercourt/internal/repository"
)

// LeaderboardService ranks jurors by their closed-investigation record.
// Scoring is configured once at startup: raw correct-vote count (default)
// or accuracy.
type LeaderboardService struct {
	Repo   repository.Repository
	Logger *zap.Logger

	Scoring      string
	DefaultLimit int
}

func NewLeaderboardService(repo repository.Repository, logger *zap.Logger, scoring string, defaultLimit int) *LeaderboardService {
	if scoring != repository.ScoreByAccuracy {
		scoring = repository.ScoreByCorrect
	}
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &LeaderboardService{
		Repo:         repo,
		Logger:       logger,
		Scoring:      scoring,
		DefaultLimit: defaultLimit,
	}
}

func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]models.JurorRating, error) {
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	return s.Repo.ListTopJurors(ctx, s.Scoring, limit)
}

// Rating returns one juror's record; a juror who never voted has a zero
// record rather than an error.
func (s *LeaderboardService) Rating(ctx context.Context, juror string) (*models.JurorRating, error) {
	rating, err := s.Repo.GetJurorRating(ctx, juror)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &models.JurorRating{Juror: juror}, nil
		}
		return nil, err
	}
	return rating, nil
}
