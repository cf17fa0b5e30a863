package waiver

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"waiverflow/league"
	"waiverflow/notify"
)

var engineNow = time.Date(2026, 9, 2, 3, 0, 0, 0, time.UTC)

func TestEngine_HighestBidWinsAndLosersRejected(t *testing.T) {
	f := newEngineFixture()
	drop := "player-drop"
	f.claims.due = []Claim{
		dueClaim("claim-x", "team-x", "contested", 50, 1, &drop),
		dueClaim("claim-y", "team-y", "contested", 30, 2, nil),
	}

	result, err := f.engine.Process(context.Background(), "league-1", false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if result.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", result.Processed)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected one group, got %d", len(result.Results))
	}
	group := result.Results[0]
	if group.WinnerTeamID == nil || *group.WinnerTeamID != "team-x" {
		t.Fatalf("expected team-x to win, got %+v", group)
	}
	if group.Amount == nil || *group.Amount != 50 {
		t.Fatalf("expected winning amount 50, got %+v", group.Amount)
	}

	if len(f.claims.executed) != 1 || f.claims.executed[0] != "claim-x" {
		t.Fatalf("expected claim-x executed, got %v", f.claims.executed)
	}
	if len(f.claims.rejected) != 1 || f.claims.rejected[0] != "claim-y" {
		t.Fatalf("expected claim-y rejected, got %v", f.claims.rejected)
	}
	if len(f.roster.removed) != 1 || f.roster.removed[0] != "team-x/player-drop" {
		t.Fatalf("expected drop applied, got %v", f.roster.removed)
	}
	if len(f.roster.added) != 1 || f.roster.added[0] != "team-x/contested" {
		t.Fatalf("expected pickup applied, got %v", f.roster.added)
	}

	if len(f.pool.txs) != 1 || !f.pool.txs[0].committed {
		t.Fatal("expected one committed group transaction")
	}

	topics := eventTopics(f.outbox.events)
	if topics[notify.TopicWaiverSuccess] != 1 || topics[notify.TopicWaiverFailed] != 1 {
		t.Fatalf("expected success and outbid events, got %v", topics)
	}
	if f.views.invalidated == 0 {
		t.Fatal("expected views invalidated after the run")
	}
}

func TestEngine_UnaffordableWinnerFallsThrough(t *testing.T) {
	// team-x already spent down to 20, so its 50 bid loses to team-y's 30.
	f := newEngineFixture()
	f.ledger.remaining["team-x"] = 20
	f.claims.due = []Claim{
		dueClaim("claim-x", "team-x", "contested", 50, 1, nil),
		dueClaim("claim-y", "team-y", "contested", 30, 2, nil),
	}

	result, err := f.engine.Process(context.Background(), "league-1", false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	group := result.Results[0]
	if group.WinnerTeamID == nil || *group.WinnerTeamID != "team-y" {
		t.Fatalf("expected team-y to win after fall-through, got %+v", group)
	}
	if len(f.claims.rejected) != 1 || f.claims.rejected[0] != "claim-x" {
		t.Fatalf("expected unaffordable claim-x rejected, got %v", f.claims.rejected)
	}
	if len(f.roster.added) != 1 || f.roster.added[0] != "team-y/contested" {
		t.Fatalf("expected team-y pickup only, got %v", f.roster.added)
	}

	topics := eventTopics(f.outbox.events)
	if topics[notify.TopicWaiverRejected] != 1 {
		t.Fatalf("expected one budget-rejected event, got %v", topics)
	}
}

func TestEngine_UnresolvedGroupRejectsAll(t *testing.T) {
	f := newEngineFixture()
	f.ledger.remaining["team-x"] = 0
	f.ledger.remaining["team-y"] = 0
	f.claims.due = []Claim{
		dueClaim("claim-x", "team-x", "contested", 50, 1, nil),
		dueClaim("claim-y", "team-y", "contested", 30, 2, nil),
	}

	result, err := f.engine.Process(context.Background(), "league-1", false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	group := result.Results[0]
	if group.WinnerTeamID != nil {
		t.Fatalf("expected no winner, got %s", *group.WinnerTeamID)
	}
	if group.Reason != "insufficient_budget" {
		t.Fatalf("expected insufficient_budget reason, got %q", group.Reason)
	}
	if len(f.claims.rejected) != 2 {
		t.Fatalf("expected both claims rejected, got %v", f.claims.rejected)
	}
	if len(f.roster.added) != 0 {
		t.Fatalf("expected no roster changes, got %v", f.roster.added)
	}

	topics := eventTopics(f.outbox.events)
	if topics[notify.TopicWaiverUnresolved] != 1 || topics[notify.TopicWaiverRejected] != 2 {
		t.Fatalf("expected unresolved plus two rejections, got %v", topics)
	}
}

func TestEngine_EmptySnapshotIsNoop(t *testing.T) {
	f := newEngineFixture()

	result, err := f.engine.Process(context.Background(), "league-1", false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected no work, processed %d", result.Processed)
	}
	if len(f.pool.txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(f.pool.txs))
	}
}

func TestEngine_ConcurrentRunRejected(t *testing.T) {
	f := newEngineFixture()
	if !f.engine.acquire("league-1") {
		t.Fatal("expected to acquire the run guard")
	}
	defer f.engine.release("league-1")

	if _, err := f.engine.Process(context.Background(), "league-1", false); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestEngine_ContinualPolicyRotatesWinner(t *testing.T) {
	f := newEngineFixture()
	f.leagues.policy.BidType = league.BidTypeContinual
	f.leagues.policy.BudgetPool = 0
	f.claims.due = []Claim{
		dueClaim("claim-x", "team-x", "contested", 0, 1, nil),
		dueClaim("claim-y", "team-y", "contested", 0, 2, nil),
	}

	result, err := f.engine.Process(context.Background(), "league-1", false)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	group := result.Results[0]
	if group.WinnerTeamID == nil || *group.WinnerTeamID != "team-x" {
		t.Fatalf("expected best priority to win, got %+v", group)
	}
	if len(f.leagues.moved) != 1 || f.leagues.moved[0] != "team-x" {
		t.Fatalf("expected winner rotated to back, got %v", f.leagues.moved)
	}
}

func TestEngine_RollingPolicyKeepsPriority(t *testing.T) {
	f := newEngineFixture()
	f.leagues.policy.BidType = league.BidTypeRolling
	f.claims.due = []Claim{
		dueClaim("claim-x", "team-x", "contested", 0, 1, nil),
	}

	if _, err := f.engine.Process(context.Background(), "league-1", false); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(f.leagues.moved) != 0 {
		t.Fatalf("expected no rotation under rolling policy, got %v", f.leagues.moved)
	}
}

func TestEngine_ExpiresStaleClaims(t *testing.T) {
	f := newEngineFixture()
	f.leagues.policy.PeriodDays = 2

	if _, err := f.engine.Process(context.Background(), "league-1", false); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	want := engineNow.Add(-48 * time.Hour)
	if !f.claims.expiredBefore.Equal(want) {
		t.Fatalf("expected expiry cutoff %v, got %v", want, f.claims.expiredBefore)
	}
}

func TestEngine_GroupFailureNotifiesCommissioner(t *testing.T) {
	f := newEngineFixture()
	f.roster.addErr = errors.New("roster write failed")
	f.claims.due = []Claim{
		dueClaim("claim-x", "team-x", "contested", 10, 1, nil),
	}

	_, err := f.engine.Process(context.Background(), "league-1", false)
	if err == nil {
		t.Fatal("expected processing error")
	}

	topics := eventTopics(f.outbox.events)
	if topics[notify.TopicSystemError] != 1 {
		t.Fatalf("expected commissioner notice, got %v", topics)
	}
	// The failed group tx rolled back; the notice got its own committed tx.
	if len(f.pool.txs) != 2 {
		t.Fatalf("expected group tx plus notice tx, got %d", len(f.pool.txs))
	}
	if f.pool.txs[0].committed {
		t.Fatal("expected failed group transaction not to commit")
	}
	if !f.pool.txs[1].committed {
		t.Fatal("expected failure notice transaction to commit")
	}
}

func dueClaim(id, teamID, playerID string, bid int64, priority int, drop *string) Claim {
	return Claim{
		ID:           id,
		LeagueID:     "league-1",
		TeamID:       teamID,
		PlayerID:     playerID,
		DropPlayerID: drop,
		BidAmount:    bid,
		Priority:     priority,
		Status:       StatusPending,
		ProcessAt:    engineNow.Add(-time.Hour),
		CreatedAt:    engineNow.Add(-24 * time.Hour),
	}
}

func eventTopics(events []notify.Event) map[string]int {
	topics := make(map[string]int)
	for _, ev := range events {
		topics[ev.Topic]++
	}
	return topics
}

type engineFixture struct {
	engine  *Engine
	pool    *fakePool
	claims  *fakeBatchStore
	roster  *fakeRosterMutator
	leagues *fakeLeagueSource
	ledger  *fakeTeamLedger
	outbox  *fakeOutbox
	views   *fakeViews
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		pool:   &fakePool{},
		claims: &fakeBatchStore{},
		roster: &fakeRosterMutator{},
		leagues: &fakeLeagueSource{
			league: league.League{ID: "league-1", CommissionerUserID: "user-commish"},
			policy: league.WaiverPolicy{
				LeagueID:   "league-1",
				BidType:    league.BidTypeBudget,
				BudgetPool: 100,
				PeriodDays: 1,
				Tiebreaker: league.TiebreakPriorityOrder,
			},
			standings: []league.Standing{
				{TeamID: "team-x", Wins: 2, Losses: 5, WaiverPriority: 1},
				{TeamID: "team-y", Wins: 5, Losses: 2, WaiverPriority: 2},
			},
		},
		ledger: &fakeTeamLedger{remaining: make(map[string]int64), fallback: 100},
		outbox: &fakeOutbox{},
		views:  &fakeViews{},
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	f.engine = NewEngine(f.pool, f.claims, f.roster, f.leagues, f.ledger, f.outbox, f.views, log)
	f.engine.now = func() time.Time { return engineNow }
	f.engine.seed = func() int64 { return 42 }
	return f
}

type fakeBatchStore struct {
	due           []Claim
	expiredBefore time.Time
	executed      []string
	rejected      []string
}

func (f *fakeBatchStore) DueSnapshot(ctx context.Context, leagueID string, asOf time.Time, force bool) ([]Claim, error) {
	return f.due, nil
}

func (f *fakeBatchStore) ExpireOverdue(ctx context.Context, leagueID string, before time.Time) (int64, error) {
	f.expiredBefore = before
	return 0, nil
}

func (f *fakeBatchStore) MarkExecuted(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	f.executed = append(f.executed, id)
	return nil
}

func (f *fakeBatchStore) MarkRejected(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	f.rejected = append(f.rejected, id)
	return nil
}

type fakeRosterMutator struct {
	removed []string
	added   []string
	addErr  error
}

func (f *fakeRosterMutator) Remove(ctx context.Context, tx pgx.Tx, teamID, playerID string) error {
	f.removed = append(f.removed, teamID+"/"+playerID)
	return nil
}

func (f *fakeRosterMutator) AddBench(ctx context.Context, tx pgx.Tx, leagueID, teamID, playerID string, at time.Time) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, teamID+"/"+playerID)
	return nil
}

type fakeLeagueSource struct {
	league    league.League
	policy    league.WaiverPolicy
	standings []league.Standing
	moved     []string
}

func (f *fakeLeagueSource) GetByID(ctx context.Context, id string) (league.League, error) {
	return f.league, nil
}

func (f *fakeLeagueSource) Policy(ctx context.Context, leagueID string) (league.WaiverPolicy, error) {
	return f.policy, nil
}

func (f *fakeLeagueSource) Standings(ctx context.Context, leagueID string) ([]league.Standing, error) {
	return f.standings, nil
}

func (f *fakeLeagueSource) MovePriorityToBack(ctx context.Context, tx pgx.Tx, leagueID, teamID string) error {
	f.moved = append(f.moved, teamID)
	return nil
}

type fakeTeamLedger struct {
	remaining map[string]int64
	fallback  int64
}

func (f *fakeTeamLedger) Remaining(ctx context.Context, leagueID, teamID string, budgetPool int64) (int64, error) {
	if v, ok := f.remaining[teamID]; ok {
		return v, nil
	}
	return f.fallback, nil
}
