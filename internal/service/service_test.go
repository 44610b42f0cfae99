package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wagercourt/internal/escrow"
	"wagercourt/internal/models"
	memoryrepository "wagercourt/internal/repository/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyLedger fails Settle a configured number of times before delegating,
// standing in for a settlement gateway with a transient outage.
type flakyLedger struct {
	escrow.Ledger

	mu          sync.Mutex
	settleFails int
}

func (f *flakyLedger) Settle(ctx context.Context, disputeID string, outcome escrow.Outcome) error {
	f.mu.Lock()
	if f.settleFails > 0 {
		f.settleFails--
		f.mu.Unlock()
		return errors.New("gateway timeout")
	}
	f.mu.Unlock()
	return f.Ledger.Settle(ctx, disputeID, outcome)
}

func (f *flakyLedger) recover() {
	f.mu.Lock()
	f.settleFails = 0
	f.mu.Unlock()
}

type fixture struct {
	repo           *memoryrepository.Store
	ledger         escrow.Ledger
	events         *recordingPublisher
	disputes       *DisputeService
	evidence       *EvidenceService
	investigations *InvestigationService
	leaderboard    *LeaderboardService
	users          *UserService
}

func newFixture(t *testing.T, quorum int) *fixture {
	return newFixtureWithLedger(t, quorum, escrow.NewMemory())
}

func newFixtureWithLedger(t *testing.T, quorum int, ledger escrow.Ledger) *fixture {
	t.Helper()
	repo := memoryrepository.New()
	events := &recordingPublisher{}
	logger := zap.NewNop()
	locks := NewKeyedMutex()

	disputes := NewDisputeService(repo, ledger, nil, events, logger, locks, 2, time.Millisecond)
	investigations := NewInvestigationService(repo, disputes, nil, events, logger, quorum, time.Hour, 10, 2)
	evidence := NewEvidenceService(repo, disputes, investigations, logger)
	leaderboard := NewLeaderboardService(repo, logger, "correct", 20)
	users := NewUserService(repo, logger)

	return &fixture{
		repo:           repo,
		ledger:         ledger,
		events:         events,
		disputes:       disputes,
		evidence:       evidence,
		investigations: investigations,
		leaderboard:    leaderboard,
		users:          users,
	}
}

func (f *fixture) readyUser(t *testing.T, username string, minStake decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.repo.EnsureUser(ctx, username); err != nil {
		t.Fatalf("ensure user %s: %v", username, err)
	}
	err := f.repo.UpdateUserSettings(ctx, username, map[string]any{
		"dispute_readiness": true,
		"min_stake":         minStake,
	})
	if err != nil {
		t.Fatalf("update settings %s: %v", username, err)
	}
}

// openDispute creates alice-vs-bob with stake 10 and has bob accept.
func (f *fixture) openDispute(t *testing.T) *models.Dispute {
	t.Helper()
	ctx := context.Background()
	f.readyUser(t, "bob", decimal.Zero)

	d, err := f.disputes.Create(ctx, "alice", CreateDisputeInput{
		Opponent: "bob",
		Title:    "who won the race",
		Stake:    decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d, err = f.disputes.Respond(ctx, d.ID, "bob", true)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if d.Status != models.DisputeAwaitingEvidence {
		t.Fatalf("status after accept = %s, want %s", d.Status, models.DisputeAwaitingEvidence)
	}
	return d
}
