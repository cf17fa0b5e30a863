package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"waiverflow/auth"
	"waiverflow/config"
	"waiverflow/db"
	"waiverflow/jobs"
	"waiverflow/league"
	"waiverflow/logging"
	"waiverflow/notify"
	"waiverflow/roster"
	"waiverflow/schedule"
	"waiverflow/waiver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, cfg.JWTSecret)

	leagueRepo := league.NewRepository(pool)
	rosterRepo := roster.NewRepository(pool)
	claimRepo := waiver.NewRepository(pool)
	ledger := waiver.NewBudgetLedger(pool)
	outbox := notify.NewOutbox(pool)
	queue := jobs.NewQueue(pool)

	priority := waiver.NewPriorityResolver(leagueRepo)
	views := waiver.NewViewService(claimRepo, leagueRepo, priority, ledger, noCatalog{}, cfg.CacheDuration)
	submission := waiver.NewSubmissionService(
		pool, claimRepo, rosterRepo, ledger, leagueRepo, priority, outbox, authService, views,
	)
	engine := waiver.NewEngine(pool, claimRepo, rosterRepo, leagueRepo, ledger, outbox, views, log)

	registry := schedule.NewRegistry(queue, log)
	defer registry.Shutdown()
	leagueService := league.NewService(leagueRepo, registry)

	if err := bootstrapTriggers(ctx, leagueRepo, registry, log); err != nil {
		log.Fatalf("bootstrap scheduler: %v", err)
	}

	worker := jobs.NewWorker(queue, engine, log, cfg.WorkerCount, cfg.WorkerPoll)
	dispatcher := notify.NewDispatcher(outbox, logSender{log: log}, log, cfg.DispatchPoll)

	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("worker stopped")
			stop()
		}
	}()
	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("dispatcher stopped")
			stop()
		}
	}()

	// The RPC/HTTP surface that exposes these services is deployed
	// separately; wiring them here keeps the composition root the single
	// owner of every dependency.
	log.WithFields(logrus.Fields{
		"workers":     cfg.WorkerCount,
		"submissions": submission != nil,
		"leagues":     leagueService != nil,
	}).Info("waiver service ready")

	<-ctx.Done()
	log.Info("shutting down")
}

// bootstrapTriggers registers a recurring trigger for every active league.
func bootstrapTriggers(ctx context.Context, repo *league.Repository, registry *schedule.Registry, log *logrus.Logger) error {
	active, err := repo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, l := range active {
		policy, err := repo.Policy(ctx, l.ID)
		if err != nil {
			log.WithError(err).WithField("league", l.ID).Warn("league has no waiver policy, skipping trigger")
			continue
		}
		cadence, err := league.ResolveCadence(policy)
		if err != nil {
			return err
		}
		registry.Register(l.ID, cadence)
	}
	return nil
}

// logSender stands in for the external notification transport.
type logSender struct {
	log *logrus.Logger
}

func (s logSender) Send(ctx context.Context, topic string, payload map[string]any) error {
	s.log.WithFields(logrus.Fields{"topic": topic, "payload": payload}).Info("notification")
	return nil
}

// noCatalog is the placeholder player-catalog collaborator until a real
// provider is configured.
type noCatalog struct{}

func (noCatalog) Players(ctx context.Context, ids []string) (map[string]waiver.PlayerInfo, error) {
	players := make(map[string]waiver.PlayerInfo, len(ids))
	for _, id := range ids {
		players[id] = waiver.PlayerInfo{ID: id}
	}
	return players, nil
}
