package memoryrepository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"wagercourt/internal/models"
	"wagercourt/internal/repository"
)

// Store is the map-backed Repository used by tests and dev mode. All methods
// copy on the way in and out, so callers never share rows.
type Store struct {
	mu sync.Mutex

	users          map[string]models.User
	disputes       map[uuid.UUID]models.Dispute
	evidence       map[uuid.UUID]map[string]models.Evidence
	investigations map[uuid.UUID]models.Investigation
	votes          map[uuid.UUID]map[string]models.JurorVote
	ratings        map[string]models.JurorRating
}

func New() *Store {
	return &Store{
		users:          make(map[string]models.User),
		disputes:       make(map[uuid.UUID]models.Dispute),
		evidence:       make(map[uuid.UUID]map[string]models.Evidence),
		investigations: make(map[uuid.UUID]models.Investigation),
		votes:          make(map[uuid.UUID]map[string]models.JurorVote),
		ratings:        make(map[string]models.JurorRating),
	}
}

// --- Users ------------------------------------------------------------------

func (s *Store) EnsureUser(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[username]; ok {
		out := user
		return &out, nil
	}
	user := models.NewUser(username)
	user.CreatedAt = time.Now().UTC()
	s.users[username] = user
	out := user
	return &out, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *Store) UpdateUserSettings(_ context.Context, username string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return repository.ErrNotFound
	}
	for key, value := range updates {
		switch key {
		case "dispute_readiness":
			if v, ok := value.(bool); ok {
				user.DisputeReadiness = v
			}
		case "min_stake":
			if v, ok := value.(decimal.Decimal); ok {
				user.MinStake = v
			}
		case "notifications_enabled":
			if v, ok := value.(bool); ok {
				user.NotificationsEnabled = v
			}
		case "chat_id":
			if v, ok := value.(int64); ok {
				user.ChatID = v
			}
		}
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[username] = user
	return nil
}

func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

// --- Disputes ---------------------------------------------------------------

func (s *Store) InsertDispute(_ context.Context, item *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[item.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.disputes[item.ID] = *item
	return nil
}

func (s *Store) GetDisputeByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.disputes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := item
	return &out, nil
}

func (s *Store) SaveDispute(_ context.Context, item *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[item.ID]; !ok {
		return repository.ErrNotFound
	}
	item.UpdatedAt = time.Now().UTC()
	s.disputes[item.ID] = *item
	return nil
}

func (s *Store) matchDispute(item models.Dispute, params repository.ListDisputesParams) bool {
	if params.Party != "" && item.Creator != params.Party && item.Opponent != params.Party {
		return false
	}
	if params.Status != nil && item.Status != *params.Status {
		return false
	}
	return true
}

func (s *Store) ListDisputes(_ context.Context, params repository.ListDisputesParams) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Dispute
	for _, item := range s.disputes {
		if s.matchDispute(item, params) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginate(items, params.Limit, params.Offset), nil
}

func (s *Store) CountDisputes(_ context.Context, params repository.ListDisputesParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.disputes {
		if s.matchDispute(item, params) {
			n++
		}
	}
	return n, nil
}

// --- Evidence ---------------------------------------------------------------

func (s *Store) UpsertEvidence(_ context.Context, item *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byParty, ok := s.evidence[item.DisputeID]
	if !ok {
		byParty = make(map[string]models.Evidence)
		s.evidence[item.DisputeID] = byParty
	}
	if existing, ok := byParty[item.Party]; ok {
		item.ID = existing.ID
	}
	byParty[item.Party] = *item
	return nil
}

func (s *Store) GetEvidence(_ context.Context, disputeID uuid.UUID, party string) (*models.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.evidence[disputeID][party]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := item
	return &out, nil
}

func (s *Store) ListEvidenceByDispute(_ context.Context, disputeID uuid.UUID) ([]models.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Evidence
	for _, item := range s.evidence[disputeID] {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].SubmittedAt.Before(items[j].SubmittedAt)
	})
	return items, nil
}

// --- Investigations ---------------------------------------------------------

func (s *Store) InsertInvestigation(_ context.Context, item *models.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.investigations {
		if existing.DisputeID == item.DisputeID {
			return repository.ErrDuplicate
		}
	}
	item.CreatedAt = time.Now().UTC()
	s.investigations[item.ID] = *item
	return nil
}

func (s *Store) GetInvestigationByID(_ context.Context, id uuid.UUID) (*models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.investigations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := item
	return &out, nil
}

func (s *Store) GetInvestigationByDisputeID(_ context.Context, disputeID uuid.UUID) (*models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.investigations {
		if item.DisputeID == disputeID {
			out := item
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) SaveInvestigation(_ context.Context, item *models.Investigation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.investigations[item.ID]; !ok {
		return repository.ErrNotFound
	}
	s.investigations[item.ID] = *item
	return nil
}

func (s *Store) ListInvestigations(_ context.Context, params repository.ListInvestigationsParams) ([]models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Investigation
	for _, item := range s.investigations {
		if params.Status != nil && item.Status != *params.Status {
			continue
		}
		if params.ExcludeParty != "" &&
			(item.Party1 == params.ExcludeParty || item.Party2 == params.ExcludeParty) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return paginateInv(items, params.Limit, params.Offset), nil
}

func (s *Store) ListDueOpenInvestigations(_ context.Context, now time.Time, limit int) ([]models.Investigation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var items []models.Investigation
	for _, item := range s.investigations {
		if item.Status == models.InvestigationOpen && !now.Before(item.EndsAt) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].EndsAt.Before(items[j].EndsAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) CloseInvestigation(_ context.Context, item *models.Investigation, correct, all []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.investigations[item.ID]; !ok {
		return repository.ErrNotFound
	}
	s.investigations[item.ID] = *item
	s.applyRatings(correct, all)
	return nil
}

// --- Juror votes ------------------------------------------------------------

func (s *Store) InsertJurorVote(_ context.Context, item *models.JurorVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byJuror, ok := s.votes[item.InvestigationID]
	if !ok {
		byJuror = make(map[string]models.JurorVote)
		s.votes[item.InvestigationID] = byJuror
	}
	if _, ok := byJuror[item.Juror]; ok {
		return repository.ErrDuplicate
	}
	item.CreatedAt = time.Now().UTC()
	byJuror[item.Juror] = *item
	return nil
}

func (s *Store) ListJurorVotes(_ context.Context, investigationID uuid.UUID) ([]models.JurorVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.JurorVote
	for _, item := range s.votes[investigationID] {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) HasJurorVoted(_ context.Context, investigationID uuid.UUID, juror string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.votes[investigationID][juror]
	return ok, nil
}

// --- Juror ratings ----------------------------------------------------------

func (s *Store) IncrementJurorRatings(_ context.Context, correct, all []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyRatings(correct, all)
	return nil
}

func (s *Store) applyRatings(correct, all []string) {
	correctSet := make(map[string]struct{}, len(correct))
	for _, juror := range correct {
		correctSet[juror] = struct{}{}
	}
	now := time.Now().UTC()
	for _, juror := range all {
		rating := s.ratings[juror]
		rating.Juror = juror
		rating.TotalCount++
		if _, ok := correctSet[juror]; ok {
			rating.CorrectCount++
		}
		rating.UpdatedAt = now
		s.ratings[juror] = rating
	}
}

func (s *Store) GetJurorRating(_ context.Context, juror string) (*models.JurorRating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rating, ok := s.ratings[juror]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := rating
	return &out, nil
}

func (s *Store) ListTopJurors(_ context.Context, scoring string, limit int) ([]models.JurorRating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.JurorRating, 0, len(s.ratings))
	for _, rating := range s.ratings {
		items = append(items, rating)
	}
	switch scoring {
	case repository.ScoreByAccuracy:
		sort.Slice(items, func(i, j int) bool {
			if items[i].Accuracy() != items[j].Accuracy() {
				return items[i].Accuracy() > items[j].Accuracy()
			}
			return items[i].TotalCount > items[j].TotalCount
		})
	default:
		sort.Slice(items, func(i, j int) bool {
			if items[i].CorrectCount != items[j].CorrectCount {
				return items[i].CorrectCount > items[j].CorrectCount
			}
			return items[i].TotalCount < items[j].TotalCount
		})
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func paginate(items []models.Dispute, limit, offset int) []models.Dispute {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func paginateInv(items []models.Investigation, limit, offset int) []models.Investigation {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
