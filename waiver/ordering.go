package waiver

import (
	"math/rand"
	"sort"

	"waiverflow/league"
)

// OrderClaims produces the strict total order over pending claims for one
// contested player; the first element wins. The function is pure: given the
// same claims, policy, and records it always yields the same order, which is
// what makes a re-run of an unchanged batch land on the same winner.
//
// Under budget bidding the order is bid descending, then the configured
// tiebreaker, then earliest submission. Priority policies order by priority
// rank, then earliest submission. Claim id is the last resort so the order
// is total even for identical rows.
func OrderClaims(policy league.WaiverPolicy, claims []Claim, records map[string]league.Standing, rng *rand.Rand) []Claim {
	ordered := make([]Claim, len(claims))
	copy(ordered, claims)

	var draws map[string]int64
	if policy.BidType == league.BidTypeBudget && policy.Tiebreaker == league.TiebreakRandom {
		draws = randomDraws(ordered, rng)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]

		if policy.BidType == league.BidTypeBudget {
			if a.BidAmount != b.BidAmount {
				return a.BidAmount > b.BidAmount
			}
			switch policy.Tiebreaker {
			case league.TiebreakRecordInverse:
				da := records[a.TeamID].RecordDeficit()
				db := records[b.TeamID].RecordDeficit()
				if da != db {
					return da > db
				}
			case league.TiebreakRandom:
				if draws[a.ID] != draws[b.ID] {
					return draws[a.ID] < draws[b.ID]
				}
			default:
				if a.Priority != b.Priority {
					return a.Priority < b.Priority
				}
			}
		} else if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}

		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return ordered
}

// randomDraws assigns one draw per claim. The draw is uniform per run, not
// reproducible across runs; callers log the values for audit.
func randomDraws(claims []Claim, rng *rand.Rand) map[string]int64 {
	draws := make(map[string]int64, len(claims))
	// Draw in a fixed iteration order so the rng stream maps to claims
	// deterministically within this run.
	ids := make([]string, 0, len(claims))
	for _, c := range claims {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		draws[id] = rng.Int63()
	}
	return draws
}
