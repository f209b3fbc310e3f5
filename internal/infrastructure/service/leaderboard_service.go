package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// LeaderboardSource is the database side the cache is rebuilt from.
type LeaderboardSource interface {
	GetLeaderboard(ctx context.Context, chatID int64, limit int) ([]leveling.UserChatStats, error)
	Chats(ctx context.Context) ([]int64, error)
}

// LeaderboardServiceConfig configures LeaderboardService.
type LeaderboardServiceConfig struct {
	Source LeaderboardSource
	Cache  leveling.LeaderboardCache

	// Depth is how many members per chat are cached on rebuild.
	Depth int

	// UpdateTimeout bounds one cache write triggered by an event.
	UpdateTimeout time.Duration

	Logger *slog.Logger
}

// LeaderboardService keeps the leaderboard cache in step with stats.
type LeaderboardService struct {
	source  LeaderboardSource
	cache   leveling.LeaderboardCache
	depth   int
	timeout time.Duration
	logger  *slog.Logger
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(cfg LeaderboardServiceConfig) *LeaderboardService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 100
	}
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = 2 * time.Second
	}
	return &LeaderboardService{
		source:  cfg.Source,
		cache:   cfg.Cache,
		depth:   cfg.Depth,
		timeout: cfg.UpdateTimeout,
		logger:  cfg.Logger.With(logger.Component("leaderboard_service")),
	}
}

// Register subscribes the service to stats updates.
func (s *LeaderboardService) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventStatsUpdated, s.HandleStatsUpdated)
}

// HandleStatsUpdated writes the member's new XP into the cache.
func (s *LeaderboardService) HandleStatsUpdated(event shared.Event) error {
	e, ok := event.(shared.StatsUpdatedEvent)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.cache.Upsert(ctx, e.ChatID, leveling.LeaderboardEntry{
		UserID:   e.UserID,
		Username: e.Username,
		XP:       e.XP,
		Level:    e.Level,
	})
	if err != nil {
		return fmt.Errorf("upsert leaderboard entry: %w", err)
	}
	return nil
}

// Rebuild replaces the cached ranking of every chat with fresh database
// rows. A failing chat does not stop the others.
func (s *LeaderboardService) Rebuild(ctx context.Context) (int, error) {
	chats, err := s.source.Chats(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chats: %w", err)
	}

	var errs []error
	rebuilt := 0
	for _, chatID := range chats {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.RebuildChat(ctx, chatID); err != nil {
			s.logger.Warn("failed to rebuild leaderboard", logger.ChatID(chatID), logger.Err(err))
			errs = append(errs, err)
			continue
		}
		rebuilt++
	}
	return rebuilt, errors.Join(errs...)
}

// RebuildChat replaces one chat's cached ranking.
func (s *LeaderboardService) RebuildChat(ctx context.Context, chatID int64) error {
	stats, err := s.source.GetLeaderboard(ctx, chatID, s.depth)
	if err != nil {
		return fmt.Errorf("load leaderboard for chat %d: %w", chatID, err)
	}
	return s.cache.Replace(ctx, chatID, leveling.RankStats(stats))
}
