package waiver

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"waiverflow/league"
	"waiverflow/notify"
)

// rejectUnresolvedGroups controls what happens to a contested player none of
// whose claimants can afford their bid: true rejects every claim so the
// waiver period never stalls. This is a deployment policy decision, not an
// invariant; see DESIGN.md.
const rejectUnresolvedGroups = true

// ClaimBatchStore is the repository surface the engine needs.
type ClaimBatchStore interface {
	DueSnapshot(ctx context.Context, leagueID string, asOf time.Time, force bool) ([]Claim, error)
	ExpireOverdue(ctx context.Context, leagueID string, before time.Time) (int64, error)
	MarkExecuted(ctx context.Context, tx pgx.Tx, id string, at time.Time) error
	MarkRejected(ctx context.Context, tx pgx.Tx, id string, at time.Time) error
}

// RosterMutator applies the roster swap inside the group transaction.
type RosterMutator interface {
	Remove(ctx context.Context, tx pgx.Tx, teamID, playerID string) error
	AddBench(ctx context.Context, tx pgx.Tx, leagueID, teamID, playerID string, at time.Time) error
}

// LeagueSource supplies league, policy, standings, and priority rotation.
type LeagueSource interface {
	GetByID(ctx context.Context, id string) (league.League, error)
	Policy(ctx context.Context, leagueID string) (league.WaiverPolicy, error)
	Standings(ctx context.Context, leagueID string) ([]league.Standing, error)
	MovePriorityToBack(ctx context.Context, tx pgx.Tx, leagueID, teamID string) error
}

// Engine resolves one batch of due claims to a consistent final state. Each
// contested player is one atomic unit of work: its roster swap, status
// transitions, priority rotation, and notification events commit together or
// not at all.
type Engine struct {
	pool    TxBeginner
	claims  ClaimBatchStore
	roster  RosterMutator
	leagues LeagueSource
	ledger  BudgetSource
	outbox  EventSink
	views   ViewInvalidator
	log     *logrus.Logger
	now     func() time.Time
	seed    func() int64

	mu      sync.Mutex
	running map[string]bool
}

func NewEngine(
	pool TxBeginner,
	claims ClaimBatchStore,
	roster RosterMutator,
	leagues LeagueSource,
	ledger BudgetSource,
	outbox EventSink,
	views ViewInvalidator,
	log *logrus.Logger,
) *Engine {
	return &Engine{
		pool:    pool,
		claims:  claims,
		roster:  roster,
		leagues: leagues,
		ledger:  ledger,
		outbox:  outbox,
		views:   views,
		log:     log,
		now:     time.Now,
		seed:    func() int64 { return time.Now().UnixNano() },
		running: make(map[string]bool),
	}
}

// Process resolves all currently due claims for a league. Manual and
// scheduled runs both land here; a per-league guard keeps them from
// double-processing the same batch. Re-running against claims that are all
// terminal is a no-op.
func (e *Engine) Process(ctx context.Context, leagueID string, force bool) (ProcessResult, error) {
	if !e.acquire(leagueID) {
		return ProcessResult{}, ErrRunInProgress
	}
	defer e.release(leagueID)

	l, err := e.leagues.GetByID(ctx, leagueID)
	if err != nil {
		return ProcessResult{}, err
	}
	policy, err := e.leagues.Policy(ctx, leagueID)
	if err != nil {
		return ProcessResult{}, err
	}
	standings, err := e.leagues.Standings(ctx, leagueID)
	if err != nil {
		return ProcessResult{}, err
	}
	records := make(map[string]league.Standing, len(standings))
	for _, s := range standings {
		records[s.TeamID] = s
	}

	now := e.now()

	// Claims that slipped a full period past their process date will never
	// be picked up by a normal run again; close them out.
	staleBefore := now.Add(-time.Duration(policy.PeriodDays) * 24 * time.Hour)
	if expired, err := e.claims.ExpireOverdue(ctx, leagueID, staleBefore); err != nil {
		return ProcessResult{}, err
	} else if expired > 0 {
		e.log.WithFields(logrus.Fields{"league": leagueID, "expired": expired}).
			Info("waiver: expired stale claims")
	}

	due, err := e.claims.DueSnapshot(ctx, leagueID, now, force)
	if err != nil {
		return ProcessResult{}, err
	}
	if len(due) == 0 {
		return ProcessResult{Processed: 0, Results: []GroupResult{}}, nil
	}

	seed := e.seed()
	rng := rand.New(rand.NewSource(seed))
	if policy.BidType == league.BidTypeBudget && policy.Tiebreaker == league.TiebreakRandom {
		// Logged so an audit can re-derive this run's random draws.
		e.log.WithFields(logrus.Fields{"league": leagueID, "seed": seed}).
			Info("waiver: random tiebreak seed")
	}

	result := ProcessResult{Results: make([]GroupResult, 0, 8)}
	for _, group := range groupByPlayer(due) {
		groupResult, err := e.resolveGroup(ctx, l, policy, records, group, rng, now)
		if err != nil {
			// Committed groups stay committed; the rest of the batch waits
			// for the next run. The commissioner hears about it.
			e.notifyFailure(ctx, l, err)
			e.invalidate(leagueID)
			return result, fmt.Errorf("waiver: processing failure for player %s: %w", group[0].PlayerID, err)
		}
		result.Processed += len(group)
		result.Results = append(result.Results, groupResult)
	}

	e.invalidate(leagueID)
	return result, nil
}

// resolveGroup decides and commits the outcome for one contested player.
func (e *Engine) resolveGroup(
	ctx context.Context,
	l league.League,
	policy league.WaiverPolicy,
	records map[string]league.Standing,
	group []Claim,
	rng *rand.Rand,
	now time.Time,
) (GroupResult, error) {
	playerID := group[0].PlayerID
	ordered := OrderClaims(policy, group, records, rng)

	var winner *Claim
	budgetRejected := make([]budgetRejection, 0)
	losers := make([]Claim, 0, len(ordered))

	for i := range ordered {
		candidate := ordered[i]
		if winner != nil {
			losers = append(losers, candidate)
			continue
		}
		if policy.BidType == league.BidTypeBudget {
			remaining, err := e.ledger.Remaining(ctx, policy.LeagueID, candidate.TeamID, policy.BudgetPool)
			if err != nil {
				return GroupResult{}, err
			}
			if candidate.BidAmount > remaining {
				budgetRejected = append(budgetRejected, budgetRejection{claim: candidate, remaining: remaining})
				continue
			}
		}
		winner = &ordered[i]
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return GroupResult{}, fmt.Errorf("begin group tx: %w", err)
	}
	defer tx.Rollback(ctx)

	events := make([]notify.Event, 0, len(ordered))

	if winner != nil {
		if winner.DropPlayerID != nil {
			if err := e.roster.Remove(ctx, tx, winner.TeamID, *winner.DropPlayerID); err != nil {
				return GroupResult{}, err
			}
		}
		if err := e.roster.AddBench(ctx, tx, winner.LeagueID, winner.TeamID, winner.PlayerID, now); err != nil {
			return GroupResult{}, err
		}
		if err := e.claims.MarkExecuted(ctx, tx, winner.ID, now); err != nil {
			return GroupResult{}, err
		}
		if resetsOnClaim(policy) {
			if err := e.leagues.MovePriorityToBack(ctx, tx, policy.LeagueID, winner.TeamID); err != nil {
				return GroupResult{}, err
			}
		}
		events = append(events, notify.SuccessEvent(winner.ID, winner.LeagueID, winner.TeamID, winner.PlayerID, winner.BidAmount))
		for _, loser := range losers {
			events = append(events, notify.OutbidEvent(loser.ID, loser.LeagueID, loser.TeamID, loser.PlayerID, loser.BidAmount, winner.BidAmount))
		}
	} else if !rejectUnresolvedGroups {
		// Leaving the group pending would stall the period; the constant
		// above pins the alternative behavior.
		return GroupResult{PlayerID: playerID, Reason: "unresolved"}, tx.Commit(ctx)
	} else {
		events = append(events, notify.UnresolvedEvent(policy.LeagueID, playerID, len(group)))
	}

	for _, rej := range budgetRejected {
		events = append(events, notify.BudgetRejectedEvent(rej.claim.ID, rej.claim.LeagueID, rej.claim.TeamID, rej.claim.PlayerID, rej.claim.BidAmount, rej.remaining))
	}

	// Every non-winning claim in the group ends REJECTED.
	for _, c := range ordered {
		if winner != nil && c.ID == winner.ID {
			continue
		}
		if err := e.claims.MarkRejected(ctx, tx, c.ID, now); err != nil {
			return GroupResult{}, err
		}
	}

	for _, ev := range events {
		if err := e.outbox.Enqueue(ctx, tx, ev); err != nil {
			return GroupResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return GroupResult{}, fmt.Errorf("commit group tx: %w", err)
	}

	gr := GroupResult{PlayerID: playerID}
	if winner != nil {
		teamID := winner.TeamID
		amount := winner.BidAmount
		gr.WinnerTeamID = &teamID
		gr.Amount = &amount
		e.log.WithFields(logrus.Fields{
			"league": policy.LeagueID,
			"player": playerID,
			"winner": teamID,
			"amount": amount,
		}).Info("waiver: claim executed")
	} else {
		gr.Reason = "insufficient_budget"
		e.log.WithFields(logrus.Fields{
			"league": policy.LeagueID,
			"player": playerID,
			"claims": len(group),
		}).Info("waiver: group unresolved, all claims rejected")
	}
	return gr, nil
}

type budgetRejection struct {
	claim     Claim
	remaining int64
}

func (e *Engine) notifyFailure(ctx context.Context, l league.League, cause error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		e.log.WithError(err).Error("waiver: begin failure-notice tx")
		return
	}
	defer tx.Rollback(ctx)

	ev := notify.SystemErrorEvent(l.ID, l.CommissionerUserID, cause.Error())
	if err := e.outbox.Enqueue(ctx, tx, ev); err != nil {
		e.log.WithError(err).Error("waiver: enqueue failure notice")
		return
	}
	if err := tx.Commit(ctx); err != nil {
		e.log.WithError(err).Error("waiver: commit failure notice")
	}
}

func (e *Engine) invalidate(leagueID string) {
	if e.views != nil {
		e.views.InvalidateLeague(leagueID)
	}
}

func (e *Engine) acquire(leagueID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[leagueID] {
		return false
	}
	e.running[leagueID] = true
	return true
}

func (e *Engine) release(leagueID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, leagueID)
}

// groupByPlayer splits the due snapshot into per-player groups. The snapshot
// arrives ordered by player id, so group order is deterministic.
func groupByPlayer(claims []Claim) [][]Claim {
	groups := make([][]Claim, 0, 8)
	var current []Claim
	for _, c := range claims {
		if len(current) > 0 && current[0].PlayerID != c.PlayerID {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, c)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func resetsOnClaim(policy league.WaiverPolicy) bool {
	return policy.BidType == league.BidTypeContinual || policy.PriorityReset == league.ResetAfterClaim
}
