package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/config"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/command"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/query"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/messaging"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/metrics"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/scheduler"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/scheduler/jobs"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/service"
	httpserver "github.com/vo1dee/PsychochauffeurBot-sub001/internal/interface/http"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/interface/http/handlers"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// NewLogger builds the process logger from configuration and installs it
// as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	log := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.ParseFormat(cfg.Observability.LogFormat),
	}).With(
		slog.String("service", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)
	slog.SetDefault(log)
	return log
}

// NewMetrics returns a Recorder, or nil when metrics are disabled.
func NewMetrics(cfg *config.Config) *metrics.Recorder {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	return metrics.New()
}

// NewEventBus creates the async bus the orchestrator publishes to.
func NewEventBus(log *slog.Logger) *messaging.InMemoryEventBus {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.Middlewares = []messaging.Middleware{messaging.LoggingMiddleware(log, 500*time.Millisecond)}
	return messaging.NewInMemoryEventBus(busCfg)
}

// NewLeaderboardService wires the cache maintainer over the storage.
func NewLeaderboardService(cfg *config.Config, st *Storage, log *slog.Logger) *service.LeaderboardService {
	return service.NewLeaderboardService(service.LeaderboardServiceConfig{
		Source: st.Stats,
		Cache:  st.Leaderboard,
		Depth:  cfg.Scheduler.LeaderboardDepth,
		Logger: log,
	})
}

// NewScheduler registers the maintenance jobs. The purge job reads the dedup
// retention from rules on every run so a rules reload applies to it.
func NewScheduler(cfg *config.Config, st *Storage, rules command.RulesSource, leaderboards *service.LeaderboardService, rec *metrics.Recorder, log *slog.Logger) (*scheduler.Scheduler, error) {
	schedCfg := scheduler.SchedulerConfig{
		Logger:     log,
		Timezone:   cfg.Location(),
		JobTimeout: cfg.Scheduler.JobTimeout,
	}
	if rec != nil {
		schedCfg.Metrics = rec
	}
	s := scheduler.NewScheduler(schedCfg)

	rebuild := jobs.NewRebuildLeaderboardCacheJob(leaderboards, log)
	if err := s.Register(rebuild, scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildInterval)); err != nil {
		return nil, err
	}
	purge := jobs.NewPurgeProcessedEventsJob(jobs.PurgeProcessedEventsConfig{
		Claims:    st.ClaimPurger,
		Applied:   st.Stats,
		Retention: func() time.Duration { return rules.Rules().DedupRetention },
		Logger:    log,
	})
	if err := s.Register(purge, scheduler.NewIntervalSchedule(cfg.Scheduler.PurgeInterval)); err != nil {
		return nil, err
	}
	return s, nil
}

// HTTPDeps describes what the HTTP server exposes.
type HTTPDeps struct {
	Storage *Storage
	Rules   query.CurveSource
	Catalog *achievement.Catalog
	Metrics *metrics.Recorder

	// API enables the leaderboard, stats and achievements routes.
	API bool
}

// NewHTTPServer builds the health, metrics and query server.
func NewHTTPServer(cfg *config.Config, deps HTTPDeps, log *slog.Logger) *httpserver.Server {
	hc := handlers.NewCompositeHealthChecker(cfg.App.Version)
	deps.Storage.RegisterHealthChecks(hc)

	d := httpserver.Dependencies{HealthChecker: hc, Logger: log}
	if deps.Metrics != nil {
		d.Metrics = deps.Metrics.Handler()
	}
	if deps.API {
		st := deps.Storage
		d.GetLeaderboardHandler = query.NewGetLeaderboardHandler(st.Stats, st.Leaderboard, log)
		d.GetStatsHandler = query.NewGetStatsHandler(st.Stats, deps.Rules)
		d.GetAchievementsHandler = query.NewGetUnlockedAchievementsHandler(st.Achievements, deps.Catalog)
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	return httpserver.NewServer(httpCfg, d)
}

// ServeHTTP runs srv until ctx ends and then shuts it down within timeout.
func ServeHTTP(ctx context.Context, srv *httpserver.Server, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// RunScheduler starts s, warms the leaderboard cache once, and stops s when
// ctx ends.
func RunScheduler(ctx context.Context, s *scheduler.Scheduler, log *slog.Logger) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	if _, err := s.RunNow(ctx, jobs.RebuildLeaderboardCacheName); err != nil {
		log.Warn("initial leaderboard cache warm-up failed", logger.Err(err))
	}
	<-ctx.Done()
	return s.Stop()
}
