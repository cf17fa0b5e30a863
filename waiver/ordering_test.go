package waiver

import (
	"math/rand"
	"testing"
	"time"

	"waiverflow/league"
)

func budgetPolicy(tiebreak league.Tiebreaker) league.WaiverPolicy {
	return league.WaiverPolicy{
		LeagueID:   "league-1",
		BidType:    league.BidTypeBudget,
		BudgetPool: 100,
		Tiebreaker: tiebreak,
	}
}

func claimAt(id, teamID string, bid int64, priority int, created time.Time) Claim {
	return Claim{
		ID:        id,
		LeagueID:  "league-1",
		TeamID:    teamID,
		PlayerID:  "player-1",
		BidAmount: bid,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: created,
	}
}

func TestOrderClaims_HighestBidWins(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	claims := []Claim{
		claimAt("claim-b", "team-y", 30, 2, base),
		claimAt("claim-a", "team-x", 50, 1, base.Add(time.Minute)),
	}

	ordered := OrderClaims(budgetPolicy(league.TiebreakPriorityOrder), claims, nil, nil)

	if ordered[0].ID != "claim-a" {
		t.Fatalf("expected highest bid first, got %s", ordered[0].ID)
	}
	if ordered[1].ID != "claim-b" {
		t.Fatalf("expected lower bid second, got %s", ordered[1].ID)
	}
}

func TestOrderClaims_EqualBidsFallToPriority(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	claims := []Claim{
		claimAt("claim-a", "team-x", 40, 3, base),
		claimAt("claim-b", "team-y", 40, 1, base),
	}

	ordered := OrderClaims(budgetPolicy(league.TiebreakPriorityOrder), claims, nil, nil)

	if ordered[0].TeamID != "team-y" {
		t.Fatalf("expected better priority first, got %s", ordered[0].TeamID)
	}
}

func TestOrderClaims_RecordInverseTiebreak(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	claims := []Claim{
		claimAt("claim-a", "team-strong", 40, 1, base),
		claimAt("claim-b", "team-weak", 40, 2, base),
	}
	records := map[string]league.Standing{
		"team-strong": {TeamID: "team-strong", Wins: 6, Losses: 1},
		"team-weak":   {TeamID: "team-weak", Wins: 1, Losses: 6},
	}

	ordered := OrderClaims(budgetPolicy(league.TiebreakRecordInverse), claims, records, nil)

	if ordered[0].TeamID != "team-weak" {
		t.Fatalf("expected worse record first, got %s", ordered[0].TeamID)
	}
}

func TestOrderClaims_RandomTiebreakDeterministicPerSeed(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	claims := []Claim{
		claimAt("claim-a", "team-x", 40, 1, base),
		claimAt("claim-b", "team-y", 40, 2, base),
		claimAt("claim-c", "team-z", 40, 3, base),
	}

	first := OrderClaims(budgetPolicy(league.TiebreakRandom), claims, nil, rand.New(rand.NewSource(7)))
	second := OrderClaims(budgetPolicy(league.TiebreakRandom), claims, nil, rand.New(rand.NewSource(7)))

	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("same seed produced different orders at index %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}

	// Input order must not leak into the result.
	reversed := []Claim{claims[2], claims[0], claims[1]}
	third := OrderClaims(budgetPolicy(league.TiebreakRandom), reversed, nil, rand.New(rand.NewSource(7)))
	for i := range first {
		if first[i].ID != third[i].ID {
			t.Fatalf("input order changed the result at index %d: %s vs %s", i, first[i].ID, third[i].ID)
		}
	}
}

func TestOrderClaims_EarlierSubmissionBreaksFullTie(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	claims := []Claim{
		claimAt("claim-late", "team-x", 40, 1, base.Add(time.Hour)),
		claimAt("claim-early", "team-y", 40, 1, base),
	}

	ordered := OrderClaims(budgetPolicy(league.TiebreakPriorityOrder), claims, nil, nil)

	if ordered[0].ID != "claim-early" {
		t.Fatalf("expected earlier submission first, got %s", ordered[0].ID)
	}
}

func TestOrderClaims_PriorityPolicyIgnoresBids(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	policy := league.WaiverPolicy{LeagueID: "league-1", BidType: league.BidTypeRolling}
	claims := []Claim{
		claimAt("claim-a", "team-x", 99, 5, base),
		claimAt("claim-b", "team-y", 0, 1, base),
	}

	ordered := OrderClaims(policy, claims, nil, nil)

	if ordered[0].TeamID != "team-y" {
		t.Fatalf("expected best priority first regardless of bid, got %s", ordered[0].TeamID)
	}
}

func TestOrderClaims_DoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	claims := []Claim{
		claimAt("claim-b", "team-y", 30, 2, base),
		claimAt("claim-a", "team-x", 50, 1, base),
	}

	OrderClaims(budgetPolicy(league.TiebreakPriorityOrder), claims, nil, nil)

	if claims[0].ID != "claim-b" {
		t.Fatalf("input slice was reordered, got %s first", claims[0].ID)
	}
}
