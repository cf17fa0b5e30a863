package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoJobs signals an empty queue poll.
	ErrNoJobs = errors.New("jobs: no runnable jobs")
	// ErrAlreadyQueued signals a processing job for this league is already waiting.
	ErrAlreadyQueued = errors.New("jobs: league already queued")
)

const defaultMaxAttempts = 3

// Queue is the durable Postgres-backed job queue decoupling trigger cadence
// from processing latency.
type Queue struct {
	pool *pgxpool.Pool
}

func NewQueue(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// EnqueueProcessing queues a waiver-processing run for a league. A partial
// unique index keeps at most one queued run per league; a duplicate enqueue
// collapses into the waiting one.
func (q *Queue) EnqueueProcessing(ctx context.Context, leagueID string, force bool) error {
	_, err := q.Enqueue(ctx, leagueID, force)
	if errors.Is(err, ErrAlreadyQueued) {
		return nil
	}
	return err
}

// Enqueue is EnqueueProcessing returning the job row, used by the manual
// trigger endpoint which reports the job id back to the administrator.
func (q *Queue) Enqueue(ctx context.Context, leagueID string, force bool) (Job, error) {
	const query = `
		INSERT INTO jobs (id, league_id, type, force, status, max_attempts, run_at)
		VALUES ($1, $2, $3, $4, 'queued'::job_status, $5, now())
		RETURNING id, league_id, type, force, status::text, attempts, max_attempts, run_at, last_error, result, created_at, updated_at
	`
	var j Job
	err := q.pool.QueryRow(ctx, query,
		uuid.NewString(), leagueID, TypeProcessWaivers, force, defaultMaxAttempts,
	).Scan(scanTargets(&j)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Job{}, ErrAlreadyQueued
		}
		return Job{}, fmt.Errorf("jobs: enqueue: %w", err)
	}
	return j, nil
}

// Lease claims the oldest runnable job. A league with a job already leased is
// skipped entirely, which is the queue-level single-consumer-per-league
// guarantee the engine's run guard backs up in-process.
func (q *Queue) Lease(ctx context.Context) (Job, error) {
	const query = `
		UPDATE jobs
		SET status = 'leased'::job_status, attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT j.id FROM jobs j
			WHERE j.status = 'queued'
			  AND j.run_at <= now()
			  AND NOT EXISTS (
				SELECT 1 FROM jobs held
				WHERE held.league_id = j.league_id AND held.status = 'leased'
			  )
			ORDER BY j.run_at ASC, j.created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, league_id, type, force, status::text, attempts, max_attempts, run_at, last_error, result, created_at, updated_at
	`
	var j Job
	err := q.pool.QueryRow(ctx, query).Scan(scanTargets(&j)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNoJobs
		}
		return Job{}, fmt.Errorf("jobs: lease: %w", err)
	}
	return j, nil
}

// Complete finalizes a job with its serialized result.
func (q *Queue) Complete(ctx context.Context, id string, result []byte) error {
	if _, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'succeeded'::job_status, result = $2, updated_at = now()
		WHERE id = $1
	`, id, result); err != nil {
		return fmt.Errorf("jobs: complete: %w", err)
	}
	return nil
}

// Fail records the error and either requeues with backoff or dead-letters the
// job once attempts are exhausted.
func (q *Queue) Fail(ctx context.Context, id string, cause error) error {
	const query = `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts
				THEN 'dead_lettered'::job_status
				ELSE 'queued'::job_status END,
		    run_at = now() + make_interval(secs => $2),
		    last_error = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING status::text
	`
	backoff := backoffFor(ctx, q.pool, id)
	var status string
	if err := q.pool.QueryRow(ctx, query, id, backoff.Seconds(), cause.Error()).Scan(&status); err != nil {
		// A newer queued job for the same league blocks the requeue; that
		// job will cover the league, so park this one.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return q.deadLetter(ctx, id, cause)
		}
		return fmt.Errorf("jobs: fail: %w", err)
	}
	return nil
}

func (q *Queue) deadLetter(ctx context.Context, id string, cause error) error {
	if _, err := q.pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'dead_lettered'::job_status, last_error = $2, updated_at = now()
		WHERE id = $1
	`, id, cause.Error()); err != nil {
		return fmt.Errorf("jobs: dead letter: %w", err)
	}
	return nil
}

// backoffFor derives the retry delay from the job's attempt count.
func backoffFor(ctx context.Context, pool *pgxpool.Pool, id string) time.Duration {
	var attempts int
	if err := pool.QueryRow(ctx, `SELECT attempts FROM jobs WHERE id = $1`, id).Scan(&attempts); err != nil {
		attempts = 1
	}
	return Backoff(attempts)
}

// Backoff returns the delay before retry n runs again: 30s, 60s, 120s, capped
// at ten minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 30 * time.Second << (attempt - 1)
	if d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

func scanTargets(j *Job) []any {
	return []any{
		&j.ID, &j.LeagueID, &j.Type, &j.Force, &j.Status, &j.Attempts,
		&j.MaxAttempts, &j.RunAt, &j.LastError, &j.Result, &j.CreatedAt, &j.UpdatedAt,
	}
}
