package waiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const claimColumns = `id, league_id, team_id, player_id, drop_player_id, bid_amount,
	priority, status::text, process_at, note, created_at, executed_at`

// Repository persists waiver claims. Status transitions triggered by batch
// processing run inside the engine's transaction; everything else uses the
// pool directly.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a new pending claim inside the caller's transaction. The
// partial unique index on (team_id, player_id) WHERE status='pending' backs
// the one-pending-claim-per-pair invariant against concurrent submissions.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, c Claim) (Claim, error) {
	const query = `
		INSERT INTO waiver_claims
			(id, league_id, team_id, player_id, drop_player_id, bid_amount, priority, status, process_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending'::waiver_status, $8, $9)
		RETURNING ` + claimColumns

	var inserted Claim
	err := tx.QueryRow(ctx, query,
		c.ID, c.LeagueID, c.TeamID, c.PlayerID, c.DropPlayerID,
		c.BidAmount, c.Priority, c.ProcessAt, c.Note,
	).Scan(scanTargets(&inserted)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Claim{}, ErrDuplicateClaim
		}
		return Claim{}, fmt.Errorf("waiver: insert claim: %w", err)
	}
	return inserted, nil
}

// HasPending reports whether the team already has a pending claim for the player.
func (r *Repository) HasPending(ctx context.Context, teamID, playerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM waiver_claims
			WHERE team_id = $1 AND player_id = $2 AND status = 'pending'
		)`, teamID, playerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("waiver: check pending claim: %w", err)
	}
	return exists, nil
}

// GetByID fetches a single claim.
func (r *Repository) GetByID(ctx context.Context, id string) (Claim, error) {
	var c Claim
	err := r.pool.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM waiver_claims WHERE id = $1`, id,
	).Scan(scanTargets(&c)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Claim{}, ErrNotFound
		}
		return Claim{}, fmt.Errorf("waiver: get claim: %w", err)
	}
	return c, nil
}

// ListFilters narrows List output. Zero values mean no filtering.
type ListFilters struct {
	TeamID string
	Status Status
}

// List returns a league's claims, newest first.
func (r *Repository) List(ctx context.Context, leagueID string, filters ListFilters) ([]Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM waiver_claims WHERE league_id = $1`
	args := []any{leagueID}
	if filters.TeamID != "" {
		args = append(args, filters.TeamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(" AND status = $%d::waiver_status", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("waiver: list claims: %w", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

// DueSnapshot returns the pending claims a processing run should consider,
// ordered for deterministic grouping. A forced run ignores the process date.
// The snapshot is taken in one statement so late submissions never join a
// batch already being resolved.
func (r *Repository) DueSnapshot(ctx context.Context, leagueID string, asOf time.Time, force bool) ([]Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM waiver_claims WHERE league_id = $1 AND status = 'pending'`
	args := []any{leagueID}
	if !force {
		args = append(args, asOf)
		query += fmt.Sprintf(" AND process_at <= $%d", len(args))
	}
	query += " ORDER BY player_id ASC, created_at ASC, id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("waiver: snapshot due claims: %w", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

// ExpireOverdue moves claims whose process date passed more than a full
// period ago into the EXPIRED terminal state.
func (r *Repository) ExpireOverdue(ctx context.Context, leagueID string, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waiver_claims
		SET status = 'expired'::waiver_status, executed_at = now()
		WHERE league_id = $1 AND status = 'pending' AND process_at < $2
	`, leagueID, before)
	if err != nil {
		return 0, fmt.Errorf("waiver: expire overdue claims: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkExecuted finalizes the winning claim inside the group transaction.
func (r *Repository) MarkExecuted(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	return r.transition(ctx, tx, id, StatusExecuted, at)
}

// MarkRejected finalizes a losing claim inside the group transaction.
func (r *Repository) MarkRejected(ctx context.Context, tx pgx.Tx, id string, at time.Time) error {
	return r.transition(ctx, tx, id, StatusRejected, at)
}

func (r *Repository) transition(ctx context.Context, tx pgx.Tx, id string, to Status, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE waiver_claims
		SET status = $2::waiver_status, executed_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, to, at)
	if err != nil {
		return fmt.Errorf("waiver: mark claim %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Cancel moves a pending claim to CANCELLED. The owning-team check happens in
// the service; this guards only the state machine.
func (r *Repository) Cancel(ctx context.Context, id string) (Claim, error) {
	const query = `
		UPDATE waiver_claims
		SET status = 'cancelled'::waiver_status, executed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + claimColumns

	var c Claim
	err := r.pool.QueryRow(ctx, query, id).Scan(scanTargets(&c)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing claim from a terminal one.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return Claim{}, getErr
			}
			return Claim{}, ErrInvalidTransition
		}
		return Claim{}, fmt.Errorf("waiver: cancel claim: %w", err)
	}
	return c, nil
}

// CountByTeam returns active (pending) and successful (executed) claim counts.
func (r *Repository) CountByTeam(ctx context.Context, leagueID, teamID string) (active, successful int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'executed')
		FROM waiver_claims
		WHERE league_id = $1 AND team_id = $2
	`, leagueID, teamID).Scan(&active, &successful)
	if err != nil {
		return 0, 0, fmt.Errorf("waiver: count claims: %w", err)
	}
	return active, successful, nil
}

func scanTargets(c *Claim) []any {
	return []any{
		&c.ID, &c.LeagueID, &c.TeamID, &c.PlayerID, &c.DropPlayerID, &c.BidAmount,
		&c.Priority, &c.Status, &c.ProcessAt, &c.Note, &c.CreatedAt, &c.ExecutedAt,
	}
}

func collectClaims(rows pgx.Rows) ([]Claim, error) {
	claims := make([]Claim, 0, 8)
	for rows.Next() {
		var c Claim
		if err := rows.Scan(scanTargets(&c)...); err != nil {
			return nil, fmt.Errorf("waiver: scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("waiver: iterate claims: %w", err)
	}
	return claims, nil
}
