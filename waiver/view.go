package waiver

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"waiverflow/league"
)

// PlayerInfo is the display data sourced from the external player catalog.
type PlayerInfo struct {
	ID       string
	Name     string
	Position string
	ProTeam  string
}

// PlayerCatalog is the external player-data collaborator boundary.
type PlayerCatalog interface {
	Players(ctx context.Context, playerIDs []string) (map[string]PlayerInfo, error)
}

// EnrichedClaim is a claim joined with catalog display data.
type EnrichedClaim struct {
	Claim
	Player     PlayerInfo
	DropPlayer *PlayerInfo
}

// WaiverOrder is the league waiver-order view.
type WaiverOrder struct {
	Policy league.WaiverPolicy
	Teams  []TeamWaiverState
}

// ClaimLister is the repository surface the view needs.
type ClaimLister interface {
	List(ctx context.Context, leagueID string, filters ListFilters) ([]Claim, error)
	CountByTeam(ctx context.Context, leagueID, teamID string) (active, successful int, err error)
}

// ViewService serves read-side claim listings and the league waiver order,
// caching the order between writes.
type ViewService struct {
	claims   ClaimLister
	policies PolicySource
	priority *PriorityResolver
	ledger   BudgetSource
	catalog  PlayerCatalog
	cache    *gocache.Cache
}

func NewViewService(
	claims ClaimLister,
	policies PolicySource,
	priority *PriorityResolver,
	ledger BudgetSource,
	catalog PlayerCatalog,
	cacheTTL time.Duration,
) *ViewService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ViewService{
		claims:   claims,
		policies: policies,
		priority: priority,
		ledger:   ledger,
		catalog:  catalog,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// List returns a league's claims enriched with player display data.
func (v *ViewService) List(ctx context.Context, leagueID string, filters ListFilters) ([]EnrichedClaim, error) {
	claims, err := v.claims.List(ctx, leagueID, filters)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return []EnrichedClaim{}, nil
	}

	idSet := make(map[string]bool, len(claims)*2)
	ids := make([]string, 0, len(claims)*2)
	for _, c := range claims {
		if !idSet[c.PlayerID] {
			idSet[c.PlayerID] = true
			ids = append(ids, c.PlayerID)
		}
		if c.DropPlayerID != nil && !idSet[*c.DropPlayerID] {
			idSet[*c.DropPlayerID] = true
			ids = append(ids, *c.DropPlayerID)
		}
	}

	players, err := v.catalog.Players(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("waiver: load player catalog: %w", err)
	}

	enriched := make([]EnrichedClaim, 0, len(claims))
	for _, c := range claims {
		ec := EnrichedClaim{Claim: c, Player: players[c.PlayerID]}
		if c.DropPlayerID != nil {
			if info, ok := players[*c.DropPlayerID]; ok {
				ec.DropPlayer = &info
			}
		}
		enriched = append(enriched, ec)
	}
	return enriched, nil
}

// Order returns the league's waiver order with per-team state, cached until
// the next claim write in the league.
func (v *ViewService) Order(ctx context.Context, leagueID string) (WaiverOrder, error) {
	key := orderCacheKey(leagueID)
	if cached, found := v.cache.Get(key); found {
		return cached.(WaiverOrder), nil
	}

	policy, err := v.policies.Policy(ctx, leagueID)
	if err != nil {
		return WaiverOrder{}, err
	}
	ranks, err := v.priority.Order(ctx, policy)
	if err != nil {
		return WaiverOrder{}, err
	}

	order := WaiverOrder{Policy: policy, Teams: make([]TeamWaiverState, 0, len(ranks))}
	for _, tp := range ranks {
		state := TeamWaiverState{TeamID: tp.TeamID, Priority: tp.Priority}
		if policy.BidType == league.BidTypeBudget {
			remaining, err := v.ledger.Remaining(ctx, leagueID, tp.TeamID, policy.BudgetPool)
			if err != nil {
				return WaiverOrder{}, err
			}
			state.RemainingBudget = &remaining
		}
		active, successful, err := v.claims.CountByTeam(ctx, leagueID, tp.TeamID)
		if err != nil {
			return WaiverOrder{}, err
		}
		state.ActiveClaims = active
		state.SuccessfulClaims = successful
		order.Teams = append(order.Teams, state)
	}

	v.cache.SetDefault(key, order)
	return order, nil
}

// InvalidateLeague drops cached views after any claim write in the league.
func (v *ViewService) InvalidateLeague(leagueID string) {
	v.cache.Delete(orderCacheKey(leagueID))
}

func orderCacheKey(leagueID string) string {
	return "waiver-order:" + leagueID
}
