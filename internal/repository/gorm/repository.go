package gormrepository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wagercourt/internal/models"
	"wagercourt/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	}
	return err
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// --- Users ------------------------------------------------------------------

func (s *Store) EnsureUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	item := models.NewUser(username)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&item).Error; err != nil {
		return nil, translate(err)
	}
	return s.GetUserByUsername(ctx, username)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var item models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) UpdateUserSettings(ctx context.Context, username string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, translate(err)
}

// --- Disputes ---------------------------------------------------------------

func (s *Store) InsertDispute(ctx context.Context, item *models.Dispute) error {
	return translate(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetDisputeByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var item models.Dispute
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) SaveDispute(ctx context.Context, item *models.Dispute) error {
	// Full-row save; callers hold the per-dispute lock, so last-write-wins
	// cannot interleave two transitions.
	return translate(s.db.WithContext(ctx).Save(item).Error)
}

func disputeListQuery(db *gorm.DB, params repository.ListDisputesParams) *gorm.DB {
	query := db.Model(&models.Dispute{})
	if params.Party != "" {
		query = query.Where("creator = ? OR opponent = ?", params.Party, params.Party)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	return query
}

func (s *Store) ListDisputes(ctx context.Context, params repository.ListDisputesParams) ([]models.Dispute, error) {
	query := disputeListQuery(s.db.WithContext(ctx), params).
		Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 50)).
		Offset(normalizeOffset(params.Offset))
	var items []models.Dispute
	if err := query.Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) CountDisputes(ctx context.Context, params repository.ListDisputesParams) (int64, error) {
	var n int64
	err := disputeListQuery(s.db.WithContext(ctx), params).Count(&n).Error
	return n, translate(err)
}

// --- Evidence ---------------------------------------------------------------

func (s *Store) UpsertEvidence(ctx context.Context, item *models.Evidence) error {
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dispute_id"}, {Name: "party"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description",
			"image_ref",
			"submitted_at",
		}),
	}).Create(item).Error)
}

func (s *Store) GetEvidence(ctx context.Context, disputeID uuid.UUID, party string) (*models.Evidence, error) {
	var item models.Evidence
	err := s.db.WithContext(ctx).
		Where("dispute_id = ? AND party = ?", disputeID, party).
		First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) ListEvidenceByDispute(ctx context.Context, disputeID uuid.UUID) ([]models.Evidence, error) {
	var items []models.Evidence
	err := s.db.WithContext(ctx).
		Where("dispute_id = ?", disputeID).
		Order("submitted_at asc").
		Find(&items).Error
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// --- Investigations ---------------------------------------------------------

func (s *Store) InsertInvestigation(ctx context.Context, item *models.Investigation) error {
	return translate(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) GetInvestigationByID(ctx context.Context, id uuid.UUID) (*models.Investigation, error) {
	var item models.Investigation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) GetInvestigationByDisputeID(ctx context.Context, disputeID uuid.UUID) (*models.Investigation, error) {
	var item models.Investigation
	err := s.db.WithContext(ctx).Where("dispute_id = ?", disputeID).First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) SaveInvestigation(ctx context.Context, item *models.Investigation) error {
	return translate(s.db.WithContext(ctx).Save(item).Error)
}

func (s *Store) ListInvestigations(ctx context.Context, params repository.ListInvestigationsParams) ([]models.Investigation, error) {
	query := s.db.WithContext(ctx).Model(&models.Investigation{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.ExcludeParty != "" {
		query = query.Where("party1 <> ? AND party2 <> ?", params.ExcludeParty, params.ExcludeParty)
	}
	query = query.Order("created_at desc").
		Limit(normalizeLimit(params.Limit, 50)).
		Offset(normalizeOffset(params.Offset))
	var items []models.Investigation
	if err := query.Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) ListDueOpenInvestigations(ctx context.Context, now time.Time, limit int) ([]models.Investigation, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.Investigation
	err := s.db.WithContext(ctx).
		Where("status = ?", models.InvestigationOpen).
		Where("ends_at <= ?", now).
		Order("ends_at asc").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) CloseInvestigation(ctx context.Context, item *models.Investigation, correct, all []string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(item).Error; err != nil {
			return err
		}
		return incrementRatings(tx, correct, all)
	}))
}

// --- Juror votes ------------------------------------------------------------

func (s *Store) InsertJurorVote(ctx context.Context, item *models.JurorVote) error {
	return translate(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) ListJurorVotes(ctx context.Context, investigationID uuid.UUID) ([]models.JurorVote, error) {
	var items []models.JurorVote
	err := s.db.WithContext(ctx).
		Where("investigation_id = ?", investigationID).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) HasJurorVoted(ctx context.Context, investigationID uuid.UUID, juror string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.JurorVote{}).
		Where("investigation_id = ? AND juror = ?", investigationID, juror).
		Count(&n).Error
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// --- Juror ratings ----------------------------------------------------------

func (s *Store) IncrementJurorRatings(ctx context.Context, correct, all []string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return incrementRatings(tx, correct, all)
	}))
}

func incrementRatings(tx *gorm.DB, correct, all []string) error {
	if len(all) == 0 {
		return nil
	}
	rows := make([]models.JurorRating, 0, len(all))
	for _, juror := range all {
		rows = append(rows, models.JurorRating{Juror: juror})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "juror"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.JurorRating{}).
		Where("juror IN ?", all).
		UpdateColumn("total_count", gorm.Expr("total_count + 1")).Error; err != nil {
		return err
	}
	if len(correct) == 0 {
		return nil
	}
	return tx.Model(&models.JurorRating{}).
		Where("juror IN ?", correct).
		UpdateColumn("correct_count", gorm.Expr("correct_count + 1")).Error
}

func (s *Store) GetJurorRating(ctx context.Context, juror string) (*models.JurorRating, error) {
	var item models.JurorRating
	err := s.db.WithContext(ctx).Where("juror = ?", juror).First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) ListTopJurors(ctx context.Context, scoring string, limit int) ([]models.JurorRating, error) {
	query := s.db.WithContext(ctx).Model(&models.JurorRating{})
	switch scoring {
	case repository.ScoreByAccuracy:
		query = query.Order("CASE WHEN total_count = 0 THEN 0 ELSE correct_count::numeric / total_count END DESC").
			Order("total_count desc")
	default:
		query = query.Order("correct_count desc").Order("total_count asc")
	}
	var items []models.JurorRating
	err := query.Limit(normalizeLimit(limit, 20)).Find(&items).Error
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}
