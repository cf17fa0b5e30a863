package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Enqueuer hands a due processing run to the durable job queue. The registry
// never invokes processing directly.
type Enqueuer interface {
	EnqueueProcessing(ctx context.Context, leagueID string, force bool) error
}

// Registry owns one recurring trigger per league. It is constructed once in
// the composition root and passed where needed; there is no package-level
// instance.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	queue   Enqueuer
	log     *logrus.Logger
	now     func() time.Time
	closed  bool
}

type entry struct {
	cadence Cadence
	stop    chan struct{}
	done    chan struct{}
}

func NewRegistry(queue Enqueuer, log *logrus.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		queue:   queue,
		log:     log,
		now:     time.Now,
	}
}

// Register starts a recurring trigger for the league, replacing any existing
// one. Returns false if the registry is already shut down.
func (r *Registry) Register(leagueID string, cadence Cadence) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if prev, ok := r.entries[leagueID]; ok {
		stopEntry(prev)
	}
	e := &entry{
		cadence: cadence,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.entries[leagueID] = e
	go r.run(leagueID, e)
	r.log.WithFields(logrus.Fields{
		"league":  leagueID,
		"cadence": cadence.String(),
	}).Info("schedule: trigger registered")
	return true
}

// Replace is Register under its lifecycle name: policy changes re-register.
func (r *Registry) Replace(leagueID string, cadence Cadence) bool {
	return r.Register(leagueID, cadence)
}

// Cancel removes the league's trigger, waiting for its loop to exit.
func (r *Registry) Cancel(leagueID string) {
	r.mu.Lock()
	e, ok := r.entries[leagueID]
	if ok {
		delete(r.entries, leagueID)
	}
	r.mu.Unlock()
	if ok {
		stopEntry(e)
		r.log.WithField("league", leagueID).Info("schedule: trigger cancelled")
	}
}

// Active reports whether a trigger is currently registered for the league.
func (r *Registry) Active(leagueID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[leagueID]
	return ok
}

// Shutdown cancels every trigger and refuses further registrations. It blocks
// until all timer loops have exited so nothing fires against a dead process.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for id, e := range entries {
		stopEntry(e)
		r.log.WithField("league", id).Debug("schedule: trigger stopped")
	}
}

func (r *Registry) run(leagueID string, e *entry) {
	defer close(e.done)
	for {
		next := e.cadence.Next(r.now())
		timer := time.NewTimer(next.Sub(r.now()))
		select {
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := r.queue.EnqueueProcessing(ctx, leagueID, false); err != nil {
				r.log.WithError(err).WithField("league", leagueID).
					Error("schedule: enqueue processing run")
			}
			cancel()
		case <-e.stop:
			timer.Stop()
			return
		}
	}
}

func stopEntry(e *entry) {
	close(e.stop)
	<-e.done
}
