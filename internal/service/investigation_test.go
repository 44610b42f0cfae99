package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wagercourt/internal/escrow"
	"wagercourt/internal/models"
)

// escalate runs a dispute to the point where both parties claim victory.
func escalate(t *testing.T, f *fixture) *models.Investigation {
	t.Helper()
	ctx := context.Background()
	d := f.openDispute(t)

	if _, err := f.evidence.Submit(ctx, d.ID, "alice", SubmitEvidenceInput{
		Description: "i crossed the line first", SelfVote: true,
	}); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	d2, err := f.evidence.Submit(ctx, d.ID, "bob", SubmitEvidenceInput{
		Description: "no, i did", SelfVote: true,
	})
	if err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	if d2.Status != models.DisputeUnderInvestigation {
		t.Fatalf("status = %s, want %s", d2.Status, models.DisputeUnderInvestigation)
	}

	inv, err := f.repo.GetInvestigationByDisputeID(ctx, d.ID)
	if err != nil {
		t.Fatalf("get investigation: %v", err)
	}
	if inv.Party1 != "alice" || inv.Party2 != "bob" {
		t.Fatalf("parties = %s/%s, want alice/bob", inv.Party1, inv.Party2)
	}
	if len(inv.EvidenceSnapshot) == 0 {
		t.Fatal("evidence snapshot should be frozen at open")
	}
	return inv
}

func TestQuorumClosesInvestigation(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	inv := escalate(t, f)

	if _, err := f.investigations.CastVote(ctx, inv.ID, "alice", models.ChoiceParty1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("party voting: err = %v, want ErrUnauthorized", err)
	}

	if _, err := f.investigations.CastVote(ctx, inv.ID, "j1", models.ChoiceParty1); err != nil {
		t.Fatalf("j1 vote: %v", err)
	}
	if _, err := f.investigations.CastVote(ctx, inv.ID, "j2", models.ChoiceParty1); err != nil {
		t.Fatalf("j2 vote: %v", err)
	}
	if _, err := f.investigations.CastVote(ctx, inv.ID, "j3", models.ChoiceDraw); err != nil {
		t.Fatalf("j3 vote: %v", err)
	}

	closed, err := f.investigations.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if closed.Status != models.InvestigationClosed {
		t.Fatalf("status = %s, want %s", closed.Status, models.InvestigationClosed)
	}
	if closed.Verdict != models.ChoiceParty1 {
		t.Fatalf("verdict = %s, want %s", closed.Verdict, models.ChoiceParty1)
	}

	d, err := f.repo.GetDisputeByID(ctx, closed.DisputeID)
	if err != nil {
		t.Fatalf("get dispute: %v", err)
	}
	if d.Status != models.DisputeResolved || d.Outcome != models.OutcomeCreator {
		t.Fatalf("dispute = %s/%s, want resolved/creator", d.Status, d.Outcome)
	}

	for juror, correct := range map[string]int64{"j1": 1, "j2": 1, "j3": 0} {
		rating, err := f.leaderboard.Rating(ctx, juror)
		if err != nil {
			t.Fatalf("rating %s: %v", juror, err)
		}
		if rating.TotalCount != 1 || rating.CorrectCount != correct {
			t.Fatalf("rating %s = %d/%d, want %d/1", juror, rating.CorrectCount, rating.TotalCount, correct)
		}
	}

	top, err := f.leaderboard.Top(ctx, 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("leaderboard size = %d, want 3", len(top))
	}
	if top[0].CorrectCount != 1 {
		t.Fatalf("leaderboard head correct = %d, want 1", top[0].CorrectCount)
	}
}

func TestDuplicateJurorVote(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	inv := escalate(t, f)

	if _, err := f.investigations.CastVote(ctx, inv.ID, "j1", models.ChoiceParty2); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if _, err := f.investigations.CastVote(ctx, inv.ID, "j1", models.ChoiceDraw); !errors.Is(err, ErrConflict) {
		t.Fatalf("second vote: err = %v, want ErrConflict", err)
	}

	got, err := f.investigations.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CountP2 != 1 || got.TotalVotes() != 1 {
		t.Fatalf("tallies = p1:%d p2:%d draw:%d, duplicate must not count",
			got.CountP1, got.CountP2, got.CountDraw)
	}
}

func TestLateVoteClosesOnDeadline(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	inv := escalate(t, f)

	if _, err := f.investigations.CastVote(ctx, inv.ID, "j1", models.ChoiceParty2); err != nil {
		t.Fatalf("j1 vote: %v", err)
	}

	inv, err := f.repo.GetInvestigationByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	inv.EndsAt = time.Now().UTC().Add(-time.Minute)
	if err := f.repo.SaveInvestigation(ctx, inv); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := f.investigations.CastVote(ctx, inv.ID, "j2", models.ChoiceParty1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("late vote: err = %v, want ErrInvalidState", err)
	}

	closed, err := f.investigations.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if closed.Status != models.InvestigationClosed {
		t.Fatalf("status = %s, want closed", closed.Status)
	}
	// Only j1's vote was tallied before the deadline.
	if closed.Verdict != models.ChoiceParty2 {
		t.Fatalf("verdict = %s, want %s", closed.Verdict, models.ChoiceParty2)
	}

	d, err := f.repo.GetDisputeByID(ctx, closed.DisputeID)
	if err != nil {
		t.Fatalf("get dispute: %v", err)
	}
	if d.Outcome != models.OutcomeOpponent {
		t.Fatalf("outcome = %s, want %s", d.Outcome, models.OutcomeOpponent)
	}
}

func TestTieVerdictIsDraw(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	inv := escalate(t, f)

	if _, err := f.investigations.CastVote(ctx, inv.ID, "j1", models.ChoiceParty1); err != nil {
		t.Fatalf("j1 vote: %v", err)
	}
	if _, err := f.investigations.CastVote(ctx, inv.ID, "j2", models.ChoiceParty2); err != nil {
		t.Fatalf("j2 vote: %v", err)
	}

	inv, _ = f.repo.GetInvestigationByID(ctx, inv.ID)
	inv.EndsAt = time.Now().UTC().Add(-time.Minute)
	if err := f.repo.SaveInvestigation(ctx, inv); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.investigations.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	closed, err := f.investigations.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if closed.Status != models.InvestigationClosed || closed.Verdict != models.ChoiceDraw {
		t.Fatalf("closed = %s/%s, want closed/draw", closed.Status, closed.Verdict)
	}

	d, _ := f.repo.GetDisputeByID(ctx, closed.DisputeID)
	if d.Outcome != models.OutcomeDraw {
		t.Fatalf("outcome = %s, want draw", d.Outcome)
	}
	if !d.CreatorClaimable || !d.OpponentClaimable {
		t.Fatal("both parties should hold a claimable payout on a draw verdict")
	}
}

func TestSweepClosesDueInvestigations(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	inv := escalate(t, f)

	if err := f.investigations.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := f.repo.GetInvestigationByID(ctx, inv.ID)
	if got.Status != models.InvestigationOpen {
		t.Fatal("sweep must not close an investigation whose window is still open")
	}

	got.EndsAt = time.Now().UTC().Add(-time.Second)
	if err := f.repo.SaveInvestigation(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.investigations.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, _ = f.repo.GetInvestigationByID(ctx, inv.ID)
	if got.Status != models.InvestigationClosed {
		t.Fatalf("status after sweep = %s, want closed", got.Status)
	}
	if got.ClosedAt == nil {
		t.Fatal("closed_at should be set")
	}
}

func TestListHidesOwnAndDueInvestigations(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	inv := escalate(t, f)

	items, err := f.investigations.List(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatal("a party must not be offered its own dispute")
	}

	items, err = f.investigations.List(ctx, "j1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != inv.ID {
		t.Fatalf("juror listing = %d items, want the open investigation", len(items))
	}

	got, _ := f.repo.GetInvestigationByID(ctx, inv.ID)
	got.EndsAt = time.Now().UTC().Add(-time.Second)
	if err := f.repo.SaveInvestigation(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}
	items, err = f.investigations.List(ctx, "j1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatal("due investigations must be closed on sight, not listed")
	}
}

func TestSettlementRedriveAfterEscrowFailure(t *testing.T) {
	flaky := &flakyLedger{Ledger: escrow.NewMemory(), settleFails: 10}
	f := newFixtureWithLedger(t, 1, flaky)
	ctx := context.Background()
	inv := escalate(t, f)

	// Quorum of one: this vote fixes the verdict, then settlement exhausts
	// its retries against the failing gateway.
	_, err := f.investigations.CastVote(ctx, inv.ID, "j1", models.ChoiceParty1)
	if !errors.Is(err, ErrEscrowFailure) {
		t.Fatalf("vote during outage: err = %v, want ErrEscrowFailure", err)
	}

	closed, _ := f.repo.GetInvestigationByID(ctx, inv.ID)
	if closed.Status != models.InvestigationClosed || closed.Verdict != models.ChoiceParty1 {
		t.Fatalf("investigation = %s/%s, want closed/party1", closed.Status, closed.Verdict)
	}
	d, _ := f.repo.GetDisputeByID(ctx, inv.DisputeID)
	if d.Status != models.DisputeUnderInvestigation {
		t.Fatalf("dispute = %s, settlement must stay pending", d.Status)
	}
	balance, _ := f.ledger.Balance(ctx, inv.DisputeID.String())
	if balance.IsZero() {
		t.Fatal("stakes must stay in custody while settlement is pending")
	}

	flaky.recover()
	if err := f.investigations.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	d, _ = f.repo.GetDisputeByID(ctx, inv.DisputeID)
	if d.Status != models.DisputeResolved || d.Outcome != models.OutcomeCreator {
		t.Fatalf("dispute after re-drive = %s/%s, want resolved/creator", d.Status, d.Outcome)
	}
	balance, _ = f.ledger.Balance(ctx, inv.DisputeID.String())
	if !balance.IsZero() {
		t.Fatalf("custody balance after re-drive = %s, want 0", balance)
	}
	if _, err := f.disputes.Claim(ctx, d.ID, "alice"); err != nil {
		t.Fatalf("claim after re-drive: %v", err)
	}
}

func TestSettlementRedriveOnRead(t *testing.T) {
	flaky := &flakyLedger{Ledger: escrow.NewMemory(), settleFails: 10}
	f := newFixtureWithLedger(t, 1, flaky)
	ctx := context.Background()
	inv := escalate(t, f)

	if _, err := f.investigations.CastVote(ctx, inv.ID, "j1", models.ChoiceDraw); !errors.Is(err, ErrEscrowFailure) {
		t.Fatalf("vote during outage: err = %v, want ErrEscrowFailure", err)
	}

	flaky.recover()
	if _, err := f.investigations.Get(ctx, inv.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	d, _ := f.repo.GetDisputeByID(ctx, inv.DisputeID)
	if d.Status != models.DisputeResolved || d.Outcome != models.OutcomeDraw {
		t.Fatalf("dispute after lazy re-drive = %s/%s, want resolved/draw", d.Status, d.Outcome)
	}
	if !d.CreatorClaimable || !d.OpponentClaimable {
		t.Fatal("both parties should hold a claimable payout on a draw verdict")
	}
}

func TestEscalationResumesAfterPartialOpen(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	d := f.openDispute(t)

	if _, err := f.evidence.Submit(ctx, d.ID, "alice", SubmitEvidenceInput{
		Description: "i won", SelfVote: true,
	}); err != nil {
		t.Fatalf("alice submit: %v", err)
	}

	// A prior escalation inserted the investigation but died before the
	// dispute transition.
	orphan := models.NewInvestigation(d.ID, d.Title, "alice", "bob", 3, time.Hour)
	if err := f.repo.InsertInvestigation(ctx, &orphan); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}

	d2, err := f.evidence.Submit(ctx, d.ID, "bob", SubmitEvidenceInput{
		Description: "no, i won", SelfVote: true,
	})
	if err != nil {
		t.Fatalf("bob submit after partial open: %v", err)
	}
	if d2.Status != models.DisputeUnderInvestigation {
		t.Fatalf("status = %s, want %s", d2.Status, models.DisputeUnderInvestigation)
	}

	inv, err := f.repo.GetInvestigationByDisputeID(ctx, d.ID)
	if err != nil {
		t.Fatalf("get investigation: %v", err)
	}
	if inv.ID != orphan.ID {
		t.Fatal("the existing investigation must be adopted, not duplicated")
	}
}

func TestInvestigationEvidenceVisibleToJurors(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	inv := escalate(t, f)

	evidence, err := f.investigations.Evidence(ctx, inv.ID)
	if err != nil {
		t.Fatalf("evidence: %v", err)
	}
	if len(evidence) != 2 {
		t.Fatalf("evidence items = %d, want 2", len(evidence))
	}
	if !evidence[0].SubmittedAt.Before(evidence[1].SubmittedAt) &&
		!evidence[0].SubmittedAt.Equal(evidence[1].SubmittedAt) {
		t.Fatal("evidence should be ordered by submission time")
	}
}
