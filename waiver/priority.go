package waiver

import (
	"context"
	"fmt"
	"sort"

	"waiverflow/league"
)

// TeamPriority is one rung of the league's waiver order.
type TeamPriority struct {
	TeamID   string
	Priority int
}

// StandingsSource supplies current standings with stored waiver priorities.
type StandingsSource interface {
	Standings(ctx context.Context, leagueID string) ([]league.Standing, error)
}

// PriorityResolver computes the league waiver order per policy type. The
// computation is stable: the same standings and stored priorities always
// produce the same ordering.
type PriorityResolver struct {
	standings StandingsSource
}

func NewPriorityResolver(standings StandingsSource) *PriorityResolver {
	return &PriorityResolver{standings: standings}
}

// Order returns the full waiver order, best priority (1) first.
//
// Reverse-standings policies derive rank from the current record, worst team
// first. Rolling and continual policies use the stored rank: rolling because
// it is fixed at season start, continual because the execution engine rotates
// it as claims are won. Budget leagues keep a reverse-standings rank purely
// as a tiebreaker field.
func (r *PriorityResolver) Order(ctx context.Context, policy league.WaiverPolicy) ([]TeamPriority, error) {
	standings, err := r.standings.Standings(ctx, policy.LeagueID)
	if err != nil {
		return nil, fmt.Errorf("waiver: load standings: %w", err)
	}
	return resolveOrder(policy, standings), nil
}

// TeamPriority returns a single team's current rank, used to snapshot
// priority onto a claim at submission time.
func (r *PriorityResolver) TeamPriority(ctx context.Context, policy league.WaiverPolicy, teamID string) (int, error) {
	order, err := r.Order(ctx, policy)
	if err != nil {
		return 0, err
	}
	for _, tp := range order {
		if tp.TeamID == teamID {
			return tp.Priority, nil
		}
	}
	return 0, fmt.Errorf("waiver: team %s not in league %s", teamID, policy.LeagueID)
}

func resolveOrder(policy league.WaiverPolicy, standings []league.Standing) []TeamPriority {
	ranked := make([]league.Standing, len(standings))
	copy(ranked, standings)

	switch policy.BidType {
	case league.BidTypeRolling, league.BidTypeContinual:
		sort.SliceStable(ranked, func(i, j int) bool {
			if ranked[i].WaiverPriority != ranked[j].WaiverPriority {
				return ranked[i].WaiverPriority < ranked[j].WaiverPriority
			}
			return ranked[i].TeamID < ranked[j].TeamID
		})
	default:
		sort.SliceStable(ranked, func(i, j int) bool {
			if d1, d2 := ranked[i].RecordDeficit(), ranked[j].RecordDeficit(); d1 != d2 {
				return d1 > d2
			}
			if ranked[i].Wins != ranked[j].Wins {
				return ranked[i].Wins < ranked[j].Wins
			}
			return ranked[i].TeamID < ranked[j].TeamID
		})
	}

	order := make([]TeamPriority, len(ranked))
	for i, s := range ranked {
		order[i] = TeamPriority{TeamID: s.TeamID, Priority: i + 1}
	}
	return order
}
