package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"waiverflow/waiver"
)

// Processor is the engine entry point jobs invoke.
type Processor interface {
	Process(ctx context.Context, leagueID string, force bool) (waiver.ProcessResult, error)
}

// Source is the queue surface the worker consumes.
type Source interface {
	Lease(ctx context.Context) (Job, error)
	Complete(ctx context.Context, id string, result []byte) error
	Fail(ctx context.Context, id string, cause error) error
}

// Worker drains the queue with a fixed number of consumers. Leagues process
// concurrently with each other; the queue's lease query and the engine's run
// guard keep any single league sequential.
type Worker struct {
	source    Source
	processor Processor
	log       *logrus.Logger
	consumers int
	poll      time.Duration
}

func NewWorker(source Source, processor Processor, log *logrus.Logger, consumers int, poll time.Duration) *Worker {
	if consumers < 1 {
		consumers = 1
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Worker{
		source:    source,
		processor: processor,
		log:       log,
		consumers: consumers,
		poll:      poll,
	}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.consumers; i++ {
		g.Go(func() error { return w.consume(ctx) })
	}
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	for {
		job, err := w.source.Lease(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoJobs) && !errors.Is(err, context.Canceled) {
				w.log.WithError(err).Error("jobs: lease")
			}
			return
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job Job) {
	log := w.log.WithFields(logrus.Fields{"job": job.ID, "league": job.LeagueID})

	result, err := w.processor.Process(ctx, job.LeagueID, job.Force)
	if err != nil {
		// A run already in flight for this league is not a failure worth an
		// attempt; requeue and let the backoff spread it out.
		if errors.Is(err, waiver.ErrRunInProgress) {
			log.Debug("jobs: run in progress, requeueing")
		} else {
			log.WithError(err).Error("jobs: processing run failed")
		}
		if failErr := w.source.Fail(ctx, job.ID, err); failErr != nil {
			log.WithError(failErr).Error("jobs: record failure")
		}
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Error("jobs: marshal result")
		payload = nil
	}
	if err := w.source.Complete(ctx, job.ID, payload); err != nil {
		log.WithError(err).Error("jobs: complete")
		return
	}
	log.WithField("processed", result.Processed).Info("jobs: processing run complete")
}
