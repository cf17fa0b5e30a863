package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Slot is where a rostered player sits.
type Slot string

const (
	SlotStarter Slot = "starter"
	SlotBench   Slot = "bench"
)

// AcquisitionWaiver marks players added through a waiver claim.
const AcquisitionWaiver = "waiver"

var (
	// ErrSlotNotFound signals the player is not on the team's roster.
	ErrSlotNotFound = errors.New("roster: slot not found")
	// ErrAlreadyRostered signals the player already occupies a slot in the league.
	ErrAlreadyRostered = errors.New("roster: player already rostered")
)

// Entry is one occupied roster slot.
type Entry struct {
	ID          string
	LeagueID    string
	TeamID      string
	PlayerID    string
	Slot        Slot
	AcquiredVia string
	AcquiredAt  time.Time
}

// Repository reads and mutates roster slots. Mutations run inside the
// caller's transaction so a claim's roster swap commits with its status
// change or not at all.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IsRostered reports whether any team in the league currently holds the player.
func (r *Repository) IsRostered(ctx context.Context, leagueID, playerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roster_slots WHERE league_id = $1 AND player_id = $2)`,
		leagueID, playerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("roster: check availability: %w", err)
	}
	return exists, nil
}

// HoldsPlayer reports whether the team itself holds the player.
func (r *Repository) HoldsPlayer(ctx context.Context, teamID, playerID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roster_slots WHERE team_id = $1 AND player_id = $2)`,
		teamID, playerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("roster: check ownership: %w", err)
	}
	return exists, nil
}

// ListTeam returns the team's current roster.
func (r *Repository) ListTeam(ctx context.Context, teamID string) ([]Entry, error) {
	const query = `
		SELECT id, league_id, team_id, player_id, slot::text, acquired_via, acquired_at
		FROM roster_slots
		WHERE team_id = $1
		ORDER BY acquired_at ASC
	`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("roster: list team: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, 16)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.LeagueID, &e.TeamID, &e.PlayerID, &e.Slot, &e.AcquiredVia, &e.AcquiredAt); err != nil {
			return nil, fmt.Errorf("roster: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: iterate entries: %w", err)
	}
	return entries, nil
}

// Remove drops the player from the team's roster inside the transaction.
func (r *Repository) Remove(ctx context.Context, tx pgx.Tx, teamID, playerID string) error {
	tag, err := tx.Exec(ctx,
		`DELETE FROM roster_slots WHERE team_id = $1 AND player_id = $2`,
		teamID, playerID,
	)
	if err != nil {
		return fmt.Errorf("roster: remove player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// AddBench places a claimed player into a non-starting slot inside the
// transaction. A unique index on (league_id, player_id) backs the
// one-roster-per-player invariant.
func (r *Repository) AddBench(ctx context.Context, tx pgx.Tx, leagueID, teamID, playerID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO roster_slots (league_id, team_id, player_id, slot, acquired_via, acquired_at)
		VALUES ($1, $2, $3, 'bench'::roster_slot, $4, $5)
	`, leagueID, teamID, playerID, AcquisitionWaiver, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyRostered
		}
		return fmt.Errorf("roster: add player: %w", err)
	}
	return nil
}
