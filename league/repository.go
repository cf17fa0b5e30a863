package league

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested league does not exist.
	ErrNotFound = errors.New("league: not found")
	// ErrPolicyNotFound signals the league has no waiver policy row.
	ErrPolicyNotFound = errors.New("league: waiver policy not found")
)

// Repository provides access to leagues, policies, and standings.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a league by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (League, error) {
	const query = `
		SELECT id, name, season, active, commissioner_user_id, created_at
		FROM leagues
		WHERE id = $1
	`
	var l League
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.Name, &l.Season, &l.Active, &l.CommissionerUserID, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return League{}, ErrNotFound
		}
		return League{}, fmt.Errorf("league: query by id: %w", err)
	}
	return l, nil
}

// ListActive returns every league that should hold a scheduler trigger.
func (r *Repository) ListActive(ctx context.Context) ([]League, error) {
	const query = `
		SELECT id, name, season, active, commissioner_user_id, created_at
		FROM leagues
		WHERE active
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("league: list active: %w", err)
	}
	defer rows.Close()

	leagues := make([]League, 0, 8)
	for rows.Next() {
		var l League
		if err := rows.Scan(&l.ID, &l.Name, &l.Season, &l.Active, &l.CommissionerUserID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("league: scan league: %w", err)
		}
		leagues = append(leagues, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("league: iterate leagues: %w", err)
	}
	return leagues, nil
}

// Policy fetches the waiver policy for a league.
func (r *Repository) Policy(ctx context.Context, leagueID string) (WaiverPolicy, error) {
	const query = `
		SELECT league_id, bid_type::text, budget_pool, period_days, tiebreaker::text,
		       allow_zero_bid, priority_reset::text, cadence, updated_at
		FROM waiver_policies
		WHERE league_id = $1
	`
	var p WaiverPolicy
	err := r.pool.QueryRow(ctx, query, leagueID).Scan(
		&p.LeagueID, &p.BidType, &p.BudgetPool, &p.PeriodDays, &p.Tiebreaker,
		&p.AllowZeroBid, &p.PriorityReset, &p.Cadence, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WaiverPolicy{}, ErrPolicyNotFound
		}
		return WaiverPolicy{}, fmt.Errorf("league: query policy: %w", err)
	}
	return p, nil
}

// UpsertPolicy writes the waiver policy row for a league.
func (r *Repository) UpsertPolicy(ctx context.Context, p WaiverPolicy) error {
	const query = `
		INSERT INTO waiver_policies
			(league_id, bid_type, budget_pool, period_days, tiebreaker, allow_zero_bid, priority_reset, cadence)
		VALUES ($1, $2::waiver_bid_type, $3, $4, $5::waiver_tiebreaker, $6, $7::waiver_priority_reset, $8)
		ON CONFLICT (league_id) DO UPDATE SET
			bid_type = EXCLUDED.bid_type,
			budget_pool = EXCLUDED.budget_pool,
			period_days = EXCLUDED.period_days,
			tiebreaker = EXCLUDED.tiebreaker,
			allow_zero_bid = EXCLUDED.allow_zero_bid,
			priority_reset = EXCLUDED.priority_reset,
			cadence = EXCLUDED.cadence,
			updated_at = now()
	`
	if _, err := r.pool.Exec(ctx, query,
		p.LeagueID, p.BidType, p.BudgetPool, p.PeriodDays, p.Tiebreaker,
		p.AllowZeroBid, p.PriorityReset, p.Cadence,
	); err != nil {
		return fmt.Errorf("league: upsert policy: %w", err)
	}
	return nil
}

// Standings returns all teams in a league ordered worst record first, which
// is the reverse-standings waiver order before tiebreaks.
func (r *Repository) Standings(ctx context.Context, leagueID string) ([]Standing, error) {
	const query = `
		SELECT id, name, owner_user_id, wins, losses, waiver_priority
		FROM teams
		WHERE league_id = $1
		ORDER BY (losses - wins) DESC, wins ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, leagueID)
	if err != nil {
		return nil, fmt.Errorf("league: query standings: %w", err)
	}
	defer rows.Close()

	standings := make([]Standing, 0, 12)
	for rows.Next() {
		var s Standing
		if err := rows.Scan(&s.TeamID, &s.Name, &s.OwnerUserID, &s.Wins, &s.Losses, &s.WaiverPriority); err != nil {
			return nil, fmt.Errorf("league: scan standing: %w", err)
		}
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("league: iterate standings: %w", err)
	}
	return standings, nil
}

// TeamExists reports whether the team belongs to the league.
func (r *Repository) TeamExists(ctx context.Context, leagueID, teamID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1 AND league_id = $2)`,
		teamID, leagueID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("league: verify team: %w", err)
	}
	return exists, nil
}

// MovePriorityToBack is used after a successful claim under continual
// waivers: the winner drops to the end and everyone behind moves up.
func (r *Repository) MovePriorityToBack(ctx context.Context, tx pgx.Tx, leagueID, teamID string) error {
	var current int
	err := tx.QueryRow(ctx,
		`SELECT waiver_priority FROM teams WHERE id = $1 AND league_id = $2 FOR UPDATE`,
		teamID, leagueID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("league: lock team priority: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE teams
		SET waiver_priority = waiver_priority - 1
		WHERE league_id = $1 AND waiver_priority > $2
	`, leagueID, current); err != nil {
		return fmt.Errorf("league: shift priorities: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE teams
		SET waiver_priority = (SELECT count(*) FROM teams WHERE league_id = $1)
		WHERE id = $2
	`, leagueID, teamID); err != nil {
		return fmt.Errorf("league: move team to back: %w", err)
	}
	return nil
}
