package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is a stored outbox row awaiting dispatch.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

const (
	statusPending = "pending"
	statusSent    = "sent"
	statusFailed  = "failed"
)

// ErrNoMessages signals an empty outbox poll.
var ErrNoMessages = errors.New("notify: no pending messages")

// Outbox persists events in the same transaction as the state change that
// produced them. Dispatch happens strictly after commit, so a delivery
// failure can never roll back a resolved claim.
type Outbox struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// Enqueue writes one event inside the caller's transaction.
func (o *Outbox) Enqueue(ctx context.Context, tx pgx.Tx, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`,
		event.Topic, payload,
	); err != nil {
		return fmt.Errorf("notify: enqueue outbox: %w", err)
	}
	return nil
}

// NextPending leases the oldest undispatched message.
func (o *Outbox) NextPending(ctx context.Context) (Message, error) {
	const query = `
		UPDATE outbox
		SET attempts = attempts + 1
		WHERE id = (
			SELECT id FROM outbox
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, topic, payload, status, attempts, created_at
	`
	var m Message
	err := o.pool.QueryRow(ctx, query).Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrNoMessages
		}
		return Message{}, fmt.Errorf("notify: lease pending message: %w", err)
	}
	return m, nil
}

// MarkSent finalizes a delivered message.
func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	if _, err := o.pool.Exec(ctx,
		`UPDATE outbox SET status = 'sent' WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("notify: mark sent: %w", err)
	}
	return nil
}

// MarkFailed parks a message after too many delivery attempts.
func (o *Outbox) MarkFailed(ctx context.Context, id string) error {
	if _, err := o.pool.Exec(ctx,
		`UPDATE outbox SET status = 'failed' WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}
