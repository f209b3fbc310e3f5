// Package app assembles the leveling engine from configuration. Both
// binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vo1dee/PsychochauffeurBot-sub001/config"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/persistence/memory"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/persistence/postgres"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/persistence/redis"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/scheduler/jobs"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/interface/http/handlers"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// StatsStore is everything the engine needs from member stats.
type StatsStore interface {
	leveling.StatsRepository
	leveling.StatsReader
	jobs.AppliedUpdatePurger
	Chats(ctx context.Context) ([]int64, error)
}

// AchievementStore persists unlocks and chat records.
type AchievementStore interface {
	achievement.Store
	achievement.RecordStore
}

// Storage is the set of persistence backends selected by configuration.
type Storage struct {
	Stats        StatsStore
	Achievements AchievementStore
	Claims       leveling.EventClaimer
	Limiter      leveling.XPLimiter
	Leaderboard  leveling.LeaderboardCache

	// ClaimPurger is set when claims need explicit cleanup. Redis claims
	// expire on their own.
	ClaimPurger jobs.ClaimPurger

	// Backend names the primary store for logs.
	Backend string

	checks  map[string]handlers.HealthCheckFunc
	closers []func()
}

// OpenStorage connects the configured backends. With Redis unreachable the
// bot degrades to database claims and per-process limiting instead of
// refusing to start.
func OpenStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	s := &Storage{checks: make(map[string]handlers.HealthCheckFunc)}

	if cfg.App.Storage == config.StorageMemory {
		claims := memory.NewClaimStore()
		s.Stats = memory.NewStatsStore()
		s.Achievements = memory.NewAchievementStore()
		s.Claims = claims
		s.ClaimPurger = claims
		s.Limiter = memory.NewLimiter()
		s.Leaderboard = memory.NewLeaderboardCache()
		s.Backend = "memory"
		log.Warn("using in-memory storage, progress is lost on restart")
		return s, nil
	}

	conn, err := postgres.Open(ctx, postgres.PoolOptions{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	s.closers = append(s.closers, conn.Close)
	s.checks["postgres"] = handlers.PingCheck(conn)

	if cfg.Database.MigrateOnStart {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		for _, m := range applied {
			log.Info("database migration applied", slog.Int("version", m.Version), slog.String("name", m.Name))
		}
	}

	claims := postgres.NewEventClaimRepository(conn)
	s.Stats = postgres.NewStatsRepository(conn)
	s.Achievements = postgres.NewAchievementRepository(conn)
	s.Claims = claims
	s.ClaimPurger = claims
	s.Limiter = memory.NewLimiter()
	s.Leaderboard = memory.NewLeaderboardCache()
	s.Backend = "postgres"

	if cfg.Redis.Disabled {
		log.Info("redis disabled, using database claims and in-process limiting")
		return s, nil
	}

	rc := redis.DefaultConfig()
	rc.Addr = cfg.Redis.Addr
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.KeyPrefix = cfg.Redis.KeyPrefix

	client, err := redis.NewClient(ctx, rc)
	if err != nil {
		log.Warn("redis unavailable, falling back to database claims and in-process limiting",
			slog.String("addr", rc.Addr),
			logger.Err(err),
		)
		return s, nil
	}
	s.closers = append(s.closers, func() { _ = client.Close() })
	s.checks["redis"] = handlers.PingCheck(client)

	s.Claims = redis.NewEventClaimer(client)
	s.ClaimPurger = nil
	s.Limiter = redis.NewXPLimiter(client)
	s.Leaderboard = redis.NewLeaderboardCache(client, cfg.Redis.LeaderboardTTL)
	log.Info("redis connected", slog.String("addr", rc.Addr))
	return s, nil
}

// RegisterHealthChecks adds a ping check per connected backend.
func (s *Storage) RegisterHealthChecks(hc *handlers.CompositeHealthChecker) {
	for name, check := range s.checks {
		hc.AddCheck(name, check)
	}
}

// Close releases connections in reverse order of opening.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
