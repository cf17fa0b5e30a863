package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Sender is the external notification transport boundary.
type Sender interface {
	Send(ctx context.Context, topic string, payload map[string]any) error
}

// MessageSource is the outbox surface the dispatcher drains.
type MessageSource interface {
	NextPending(ctx context.Context) (Message, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

const maxDeliveryAttempts = 5

// Dispatcher drains the outbox and hands payloads to the transport.
// Delivery is fire-and-forget relative to claim resolution: the rows it
// reads are already committed.
type Dispatcher struct {
	source MessageSource
	sender Sender
	log    *logrus.Logger
	poll   time.Duration
}

func NewDispatcher(source MessageSource, sender Sender, log *logrus.Logger, poll time.Duration) *Dispatcher {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Dispatcher{source: source, sender: sender, log: log, poll: poll}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		msg, err := d.source.NextPending(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoMessages) {
				d.log.WithError(err).Error("notify: poll outbox")
			}
			return
		}
		d.deliver(ctx, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		d.log.WithError(err).WithField("message", msg.ID).Error("notify: corrupt payload")
		if err := d.source.MarkFailed(ctx, msg.ID); err != nil {
			d.log.WithError(err).WithField("message", msg.ID).Error("notify: mark failed")
		}
		return
	}

	if err := d.sender.Send(ctx, msg.Topic, payload); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"message":  msg.ID,
			"topic":    msg.Topic,
			"attempts": msg.Attempts,
		}).Warn("notify: delivery failed")
		if msg.Attempts >= maxDeliveryAttempts {
			if err := d.source.MarkFailed(ctx, msg.ID); err != nil {
				d.log.WithError(err).WithField("message", msg.ID).Error("notify: mark failed")
			}
		}
		return
	}

	if err := d.source.MarkSent(ctx, msg.ID); err != nil {
		d.log.WithError(err).WithField("message", msg.ID).Error("notify: mark sent")
	}
}
