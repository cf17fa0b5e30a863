package waiver

import (
	"context"
	"errors"
	"testing"

	"waiverflow/league"
)

type fakeStandings struct {
	standings []league.Standing
	err       error
}

func (f *fakeStandings) Standings(ctx context.Context, leagueID string) ([]league.Standing, error) {
	return f.standings, f.err
}

func TestPriorityResolver_ReverseStandings(t *testing.T) {
	source := &fakeStandings{standings: []league.Standing{
		{TeamID: "team-top", Wins: 6, Losses: 1, WaiverPriority: 1},
		{TeamID: "team-mid", Wins: 3, Losses: 4, WaiverPriority: 2},
		{TeamID: "team-bottom", Wins: 0, Losses: 7, WaiverPriority: 3},
	}}
	resolver := NewPriorityResolver(source)
	policy := league.WaiverPolicy{LeagueID: "league-1", BidType: league.BidTypeReverseStandings}

	order, err := resolver.Order(context.Background(), policy)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	want := []string{"team-bottom", "team-mid", "team-top"}
	for i, teamID := range want {
		if order[i].TeamID != teamID {
			t.Fatalf("rank %d: expected %s, got %s", i+1, teamID, order[i].TeamID)
		}
		if order[i].Priority != i+1 {
			t.Fatalf("rank %d: expected priority %d, got %d", i+1, i+1, order[i].Priority)
		}
	}
}

func TestPriorityResolver_ReverseStandingsTieOnDeficit(t *testing.T) {
	// Equal deficit: fewer wins ranks higher, then team id.
	source := &fakeStandings{standings: []league.Standing{
		{TeamID: "team-b", Wins: 3, Losses: 3},
		{TeamID: "team-a", Wins: 3, Losses: 3},
		{TeamID: "team-c", Wins: 2, Losses: 2},
	}}
	resolver := NewPriorityResolver(source)
	policy := league.WaiverPolicy{LeagueID: "league-1", BidType: league.BidTypeReverseStandings}

	order, err := resolver.Order(context.Background(), policy)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	want := []string{"team-c", "team-a", "team-b"}
	for i, teamID := range want {
		if order[i].TeamID != teamID {
			t.Fatalf("rank %d: expected %s, got %s", i+1, teamID, order[i].TeamID)
		}
	}
}

func TestPriorityResolver_ContinualUsesStoredRank(t *testing.T) {
	// team-worst has the worst record but already spent its priority; the
	// stored rank wins under continual policies.
	source := &fakeStandings{standings: []league.Standing{
		{TeamID: "team-worst", Wins: 0, Losses: 7, WaiverPriority: 3},
		{TeamID: "team-best", Wins: 7, Losses: 0, WaiverPriority: 1},
		{TeamID: "team-mid", Wins: 4, Losses: 3, WaiverPriority: 2},
	}}
	resolver := NewPriorityResolver(source)
	policy := league.WaiverPolicy{LeagueID: "league-1", BidType: league.BidTypeContinual}

	order, err := resolver.Order(context.Background(), policy)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	want := []string{"team-best", "team-mid", "team-worst"}
	for i, teamID := range want {
		if order[i].TeamID != teamID {
			t.Fatalf("rank %d: expected %s, got %s", i+1, teamID, order[i].TeamID)
		}
	}
}

func TestPriorityResolver_TeamPriority(t *testing.T) {
	source := &fakeStandings{standings: []league.Standing{
		{TeamID: "team-a", Wins: 5, Losses: 2, WaiverPriority: 2},
		{TeamID: "team-b", Wins: 2, Losses: 5, WaiverPriority: 1},
	}}
	resolver := NewPriorityResolver(source)
	policy := league.WaiverPolicy{LeagueID: "league-1", BidType: league.BidTypeRolling}

	rank, err := resolver.TeamPriority(context.Background(), policy, "team-a")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rank != 2 {
		t.Fatalf("expected stored rank 2, got %d", rank)
	}

	if _, err := resolver.TeamPriority(context.Background(), policy, "team-missing"); err == nil {
		t.Fatal("expected error for unknown team")
	}
}

func TestPriorityResolver_StandingsError(t *testing.T) {
	wantErr := errors.New("db down")
	resolver := NewPriorityResolver(&fakeStandings{err: wantErr})
	policy := league.WaiverPolicy{LeagueID: "league-1", BidType: league.BidTypeReverseStandings}

	if _, err := resolver.Order(context.Background(), policy); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped standings error, got %v", err)
	}
}
