// Command worker runs the maintenance jobs without the bot: purging expired
// event claims and rebuilding the leaderboard cache. Run it when several bot
// replicas share one database and SCHEDULER_ENABLED=false on the bots.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/vo1dee/PsychochauffeurBot-sub001/config"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/app"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := app.NewLogger(cfg).With(logger.Component("worker"))
	log.Info("starting leveling worker", slog.String("config", cfg.Redacted()))

	rules, err := cfg.Rules()
	if err != nil {
		return fmt.Errorf("failed to build rules: %w", err)
	}
	holder := config.NewRulesHolder(rules)

	storage, err := app.OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer storage.Close()

	recorder := app.NewMetrics(cfg)
	leaderboards := app.NewLeaderboardService(cfg, storage, log)

	sched, err := app.NewScheduler(cfg, storage, holder, leaderboards, recorder, log)
	if err != nil {
		return err
	}
	for _, job := range sched.ListJobs() {
		log.Info("job scheduled",
			slog.String("job", job.Name),
			slog.String("schedule", job.Schedule),
			slog.String("description", job.Description),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.RunScheduler(gctx, sched, log) })

	if cfg.HTTP.Enabled {
		srv := app.NewHTTPServer(cfg, app.HTTPDeps{Storage: storage, Metrics: recorder}, log)
		g.Go(func() error { return app.ServeHTTP(gctx, srv, cfg.App.ShutdownTimeout) })
	}

	err = g.Wait()
	if err != nil {
		log.Error("stopped with error", logger.Err(err))
	} else {
		log.Info("shutdown completed")
	}
	return err
}
