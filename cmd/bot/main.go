// Command bot runs the chat leveling engine: it long-polls Telegram, awards
// XP and achievements for group messages, announces level-ups, and serves
// health, metrics and a read-only query API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/vo1dee/PsychochauffeurBot-sub001/config"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/app"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/command"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	tgclient "github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/external/telegram"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/service"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/interface/telegram"
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
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := app.NewLogger(cfg)
	log.Info("starting leveling bot", slog.String("config", cfg.Redacted()))

	rules, err := cfg.Rules()
	if err != nil {
		return fmt.Errorf("failed to build rules: %w", err)
	}
	holder := config.NewRulesHolder(rules)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := app.OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer storage.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS & SUBSCRIBERS
	// ─────────────────────────────────────────────────────────────────────────
	recorder := app.NewMetrics(cfg)
	bus := app.NewEventBus(log)
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("event bus close", logger.Err(err))
		}
	}()

	leaderboards := app.NewLeaderboardService(cfg, storage, log)
	if err := leaderboards.Register(bus); err != nil {
		return fmt.Errorf("register leaderboard service: %w", err)
	}

	tgCfg := tgclient.DefaultClientConfig(cfg.Telegram.Token)
	tgCfg.PollTimeout = cfg.Telegram.PollTimeout
	tgCfg.Timeout = cfg.Telegram.PollTimeout + 30*time.Second
	tgCfg.Logger = log
	client := tgclient.NewClient(tgCfg)

	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	log.Info("authorized on telegram", slog.String("bot", me.Username))

	if cfg.Telegram.Notify {
		notifyCfg := service.NotificationServiceConfig{
			Sender:      client,
			SendTimeout: cfg.Telegram.SendTimeout,
			Logger:      log,
		}
		if recorder != nil {
			notifyCfg.Metrics = recorder
		}
		if err := service.NewNotificationService(notifyCfg).Register(bus); err != nil {
			return fmt.Errorf("register notification service: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. LEVELING ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	catalog := achievement.DefaultCatalog()
	engine := achievement.NewEngine(achievement.EngineConfig{
		Catalog:     catalog,
		Store:       storage.Achievements,
		Records:     storage.Achievements,
		// Fallback only; the orchestrator passes the live PersistenceTimeout.
		CallTimeout: cfg.Leveling.PersistenceTimeout,
		Logger:      log,
	})

	orchCfg := command.LevelingOrchestratorConfig{
		Stats:        storage.Stats,
		Claims:       storage.Claims,
		Limiter:      storage.Limiter,
		Achievements: engine,
		Publisher:    bus,
		Rules:        holder,
		Logger:       log,
	}
	if recorder != nil {
		orchCfg.Metrics = recorder
	}
	orchestrator, err := command.NewLevelingOrchestrator(orchCfg)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	bot, err := telegram.NewBot(telegram.BotConfig{
		Poller:    client,
		Mapper:    telegram.NewMapper(storage.Stats, log),
		Processor: orchestrator,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return bot.Run(gctx) })

	if cfg.Leveling.RulesFile != "" {
		watcher, err := config.NewRulesWatcher(config.RulesWatcherConfig{
			Path:     cfg.Leveling.RulesFile,
			Base:     cfg.BaseRules(),
			Holder:   holder,
			Debounce: cfg.Leveling.ReloadDebounce,
			OnReload: func(r *leveling.Rules) {
				log.Info("leveling rules reloaded",
					slog.Int64("rate_limit_xp", r.RateLimit.MaxXP),
					slog.Int64("base_xp", r.Curve.BaseXP),
				)
			},
			Logger: log,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if cfg.Scheduler.Enabled {
		sched, err := app.NewScheduler(cfg, storage, holder, leaderboards, recorder, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return app.RunScheduler(gctx, sched, log) })
	}

	if cfg.HTTP.Enabled {
		srv := app.NewHTTPServer(cfg, app.HTTPDeps{
			Storage: storage,
			Rules:   holder,
			Catalog: catalog,
			Metrics: recorder,
			API:     true,
		}, log)
		g.Go(func() error { return app.ServeHTTP(gctx, srv, cfg.App.ShutdownTimeout) })
	}

	log.Info("leveling bot is running", slog.String("storage", storage.Backend))

	err = g.Wait()
	if err != nil {
		log.Error("stopped with error", logger.Err(err))
	} else {
		log.Info("shutdown completed")
	}
	return err
}
