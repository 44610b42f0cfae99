package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wagercourt/internal/models"
	"wagercourt/internal/notify"
	"wagercourt/internal/repository"
)

// InvestigationService runs the juror stage: opening with a frozen evidence
// snapshot, vote ingestion, and the single guarded close path shared by the
// quorum trigger, the deadline sweep and the lazy due-check.
type InvestigationService struct {
	Repo     repository.Repository
	Disputes *DisputeService
	Notifier notify.Sender
	Events   Publisher
	Logger   *zap.Logger

	Quorum       int
	ReviewWindow time.Duration
	SweepBatch   int
	SweepWorkers int
}

func NewInvestigationService(repo repository.Repository, disputes *DisputeService, notifier notify.Sender, events Publisher, logger *zap.Logger, quorum int, reviewWindow time.Duration, sweepBatch, sweepWorkers int) *InvestigationService {
	if quorum <= 0 {
		quorum = 5
	}
	if reviewWindow <= 0 {
		reviewWindow = 24 * time.Hour
	}
	if sweepBatch <= 0 {
		sweepBatch = 100
	}
	if sweepWorkers <= 0 {
		sweepWorkers = 4
	}
	return &InvestigationService{
		Repo:         repo,
		Disputes:     disputes,
		Notifier:     notifier,
		Events:       events,
		Logger:       logger,
		Quorum:       quorum,
		ReviewWindow: reviewWindow,
		SweepBatch:   sweepBatch,
		SweepWorkers: sweepWorkers,
	}
}

// openForDispute escalates a dispute where both parties claim victory.
// Callers hold the dispute lock. The evidence snapshot is frozen here so
// later writes can never change what jurors saw.
func (s *InvestigationService) openForDispute(ctx context.Context, d *models.Dispute) error {
	evidence, err := s.Repo.ListEvidenceByDispute(ctx, d.ID)
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(evidence)
	if err != nil {
		return err
	}

	inv := models.NewInvestigation(d.ID, d.Title, d.Creator, d.Opponent, s.Quorum, s.ReviewWindow)
	inv.EvidenceSnapshot = snapshot
	if err := s.Repo.InsertInvestigation(ctx, &inv); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		// An earlier escalation inserted the investigation but crashed
		// before the dispute transition. Adopt it and finish the flip.
		existing, gerr := s.Repo.GetInvestigationByDisputeID(ctx, d.ID)
		if gerr != nil {
			return gerr
		}
		inv = *existing
	}

	d.Status = models.DisputeUnderInvestigation
	if err := s.Repo.SaveDispute(ctx, d); err != nil {
		return err
	}

	text := fmt.Sprintf("Your dispute %q went to investigation. Jurors decide by %s.", d.Title, inv.EndsAt.Format(time.RFC3339))
	notify.BestEffort(s.Notifier, s.Logger, d.Creator, text)
	notify.BestEffort(s.Notifier, s.Logger, d.Opponent, text)
	publish(s.Events, Event{
		Type:            EventInvestigationOpened,
		DisputeID:       d.ID.String(),
		InvestigationID: inv.ID.String(),
		Status:          string(inv.Status),
	})

	s.Logger.Info("investigation opened",
		zap.String("investigation_id", inv.ID.String()),
		zap.String("dispute_id", d.ID.String()),
		zap.Time("ends_at", inv.EndsAt),
	)
	return nil
}

// Get returns the investigation, closing it first if its deadline already
// elapsed. Closed investigations re-enter the close path too, so a
// settlement that failed after the verdict committed is re-driven on read.
func (s *InvestigationService) Get(ctx context.Context, id uuid.UUID) (*models.Investigation, error) {
	inv, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InvestigationClosed || inv.Due(time.Now().UTC()) {
		if err := s.closeByID(ctx, id); err != nil {
			return nil, err
		}
		return s.getByID(ctx, id)
	}
	return inv, nil
}

// List pages open investigations available to the given juror. Due entries
// are closed on sight and dropped from the page.
func (s *InvestigationService) List(ctx context.Context, juror string, limit, offset int) ([]models.Investigation, error) {
	open := models.InvestigationOpen
	items, err := s.Repo.ListInvestigations(ctx, repository.ListInvestigationsParams{
		Status:       &open,
		ExcludeParty: juror,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := items[:0]
	for i := range items {
		if items[i].Due(now) {
			if err := s.closeByID(ctx, items[i].ID); err != nil {
				s.Logger.Warn("lazy close failed",
					zap.String("investigation_id", items[i].ID.String()),
					zap.Error(err),
				)
			}
			continue
		}
		out = append(out, items[i])
	}
	return out, nil
}

// Evidence returns the submissions jurors review, ordered by submission
// time.
func (s *InvestigationService) Evidence(ctx context.Context, id uuid.UUID) ([]models.Evidence, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListEvidenceByDispute(ctx, inv.DisputeID)
}

// CastVote ingests one juror vote. Parties cannot vote on their own
// dispute, duplicates are rejected, and a vote arriving after the deadline
// closes the investigation instead of counting.
func (s *InvestigationService) CastVote(ctx context.Context, id uuid.UUID, juror, choice string) (*models.Investigation, error) {
	switch choice {
	case models.ChoiceParty1, models.ChoiceParty2, models.ChoiceDraw:
	default:
		return nil, fmt.Errorf("%w: choice %q", ErrValidation, choice)
	}

	inv, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.Disputes.Locks.Lock(inv.DisputeID.String())
	defer unlock()

	inv, err = s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvestigationOpen {
		if err := s.settlePending(ctx, inv); err != nil {
			s.Logger.Warn("settlement re-drive failed",
				zap.String("investigation_id", inv.ID.String()),
				zap.Error(err),
			)
		}
		return nil, fmt.Errorf("%w: investigation is closed", ErrInvalidState)
	}
	if juror == inv.Party1 || juror == inv.Party2 {
		return nil, fmt.Errorf("%w: parties cannot vote on their own dispute", ErrUnauthorized)
	}
	if inv.Due(time.Now().UTC()) {
		// The window elapsed before this vote arrived: close on the tallied
		// votes and reject the late one.
		if err := s.closeLocked(ctx, inv); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: review window has ended", ErrInvalidState)
	}

	vote := models.NewJurorVote(inv.ID, juror, choice)
	if err := s.Repo.InsertJurorVote(ctx, &vote); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: juror already voted", ErrConflict)
		}
		return nil, err
	}

	switch choice {
	case models.ChoiceParty1:
		inv.CountP1++
	case models.ChoiceParty2:
		inv.CountP2++
	case models.ChoiceDraw:
		inv.CountDraw++
	}
	if err := s.Repo.SaveInvestigation(ctx, inv); err != nil {
		return nil, err
	}
	publish(s.Events, Event{
		Type:            EventInvestigationVote,
		DisputeID:       inv.DisputeID.String(),
		InvestigationID: inv.ID.String(),
		Status:          string(inv.Status),
	})

	if inv.TotalVotes() >= inv.Quorum {
		if err := s.closeLocked(ctx, inv); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

// Sweep closes every open investigation whose deadline elapsed, then
// re-drives disputes whose settlement failed after the verdict committed.
// Scheduled by cron so neither depends on traffic.
func (s *InvestigationService) Sweep(ctx context.Context) error {
	due, err := s.Repo.ListDueOpenInvestigations(ctx, time.Now().UTC(), s.SweepBatch)
	if err != nil {
		return err
	}
	if len(due) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.SweepWorkers)
		for i := range due {
			id := due[i].ID
			g.Go(func() error {
				if err := s.closeByID(gctx, id); err != nil {
					s.Logger.Warn("sweep close failed",
						zap.String("investigation_id", id.String()),
						zap.Error(err),
					)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		s.Logger.Info("investigation sweep", zap.Int("due", len(due)))
	}

	under := models.DisputeUnderInvestigation
	stuck, err := s.Repo.ListDisputes(ctx, repository.ListDisputesParams{
		Status: &under,
		Limit:  s.SweepBatch,
	})
	if err != nil {
		return err
	}
	for i := range stuck {
		inv, err := s.Repo.GetInvestigationByDisputeID(ctx, stuck[i].ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return err
		}
		if inv.Status != models.InvestigationClosed {
			continue
		}
		if err := s.closeByID(ctx, inv.ID); err != nil {
			s.Logger.Warn("settlement re-drive failed",
				zap.String("investigation_id", inv.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// closeByID takes the dispute lock, re-checks the status and closes.
// Concurrent triggers funnel here; only the first one past the open check
// fixes the verdict. An already-closed investigation still re-drives its
// dispute settlement, which may have failed after the verdict committed.
func (s *InvestigationService) closeByID(ctx context.Context, id uuid.UUID) error {
	inv, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.Disputes.Locks.Lock(inv.DisputeID.String())
	defer unlock()

	inv, err = s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != models.InvestigationOpen {
		return s.settlePending(ctx, inv)
	}
	return s.closeLocked(ctx, inv)
}

// closeLocked fixes the verdict, bumps juror ratings and resolves the
// dispute. Callers hold the dispute lock and have verified the
// investigation is open.
func (s *InvestigationService) closeLocked(ctx context.Context, inv *models.Investigation) error {
	verdict := verdictOf(inv)

	votes, err := s.Repo.ListJurorVotes(ctx, inv.ID)
	if err != nil {
		return err
	}
	all := make([]string, 0, len(votes))
	correct := make([]string, 0, len(votes))
	for _, v := range votes {
		all = append(all, v.Juror)
		if v.Choice == verdict {
			correct = append(correct, v.Juror)
		}
	}

	now := time.Now().UTC()
	inv.Status = models.InvestigationClosed
	inv.Verdict = verdict
	inv.ClosedAt = &now
	if err := s.Repo.CloseInvestigation(ctx, inv, correct, all); err != nil {
		return err
	}

	publish(s.Events, Event{
		Type:            EventInvestigationClosed,
		DisputeID:       inv.DisputeID.String(),
		InvestigationID: inv.ID.String(),
		Status:          string(inv.Status),
		Verdict:         verdict,
	})
	s.Logger.Info("investigation closed",
		zap.String("investigation_id", inv.ID.String()),
		zap.String("verdict", verdict),
		zap.Int("votes", len(votes)),
	)

	// Settlement runs after the verdict commit and can fail on its own; the
	// error surfaces here and the get/vote/sweep paths re-drive it later.
	return s.settlePending(ctx, inv)
}

// settlePending resolves the dispute attached to a closed investigation.
// A no-op once the dispute has left under_investigation, so every trigger
// can call it blindly. Callers hold the dispute lock.
func (s *InvestigationService) settlePending(ctx context.Context, inv *models.Investigation) error {
	d, err := s.Disputes.getLocked(ctx, inv.DisputeID)
	if err != nil {
		return err
	}
	if d.Status != models.DisputeUnderInvestigation {
		return nil
	}
	return s.Disputes.finalize(ctx, d, outcomeOf(inv.Verdict))
}

func outcomeOf(verdict string) models.Outcome {
	switch verdict {
	case models.ChoiceParty1:
		return models.OutcomeCreator
	case models.ChoiceParty2:
		return models.OutcomeOpponent
	}
	return models.OutcomeDraw
}

func (s *InvestigationService) getByID(ctx context.Context, id uuid.UUID) (*models.Investigation, error) {
	inv, err := s.Repo.GetInvestigationByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: investigation %s", ErrNotFound, id)
		}
		return nil, err
	}
	return inv, nil
}

// verdictOf is the plurality rule: the choice with the most votes wins, any
// tie among the leaders is a draw. Zero votes is a three-way tie.
func verdictOf(inv *models.Investigation) string {
	switch {
	case inv.CountP1 > inv.CountP2 && inv.CountP1 > inv.CountDraw:
		return models.ChoiceParty1
	case inv.CountP2 > inv.CountP1 && inv.CountP2 > inv.CountDraw:
		return models.ChoiceParty2
	}
	return models.ChoiceDraw
}
