// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/circuitbreaker"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Reads the chat ranking from the cache and falls back to the database when
// the cache is missing, cold or tripped.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// GetLeaderboardQuery contains the query parameters.
type GetLeaderboardQuery struct {
	ChatID int64

	// Limit defaults to 10 and is capped at 100.
	Limit int
}

// Validate checks the query and applies defaults.
func (q *GetLeaderboardQuery) Validate() error {
	if q.ChatID == 0 {
		return shared.ErrInvalidChatID
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit cannot be negative", shared.ErrInvalidInput)
	}
	if q.Limit == 0 {
		q.Limit = defaultLeaderboardLimit
	}
	if q.Limit > maxLeaderboardLimit {
		q.Limit = maxLeaderboardLimit
	}
	return nil
}

// LeaderboardEntryDTO is one row of the leaderboard.
type LeaderboardEntryDTO struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	XP       int64  `json:"xp"`
	Level    int    `json:"level"`
}

// GetLeaderboardResult contains the leaderboard.
type GetLeaderboardResult struct {
	ChatID      int64                 `json:"chat_id"`
	Entries     []LeaderboardEntryDTO `json:"entries"`
	FromCache   bool                  `json:"from_cache"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetLeaderboardHandler handles leaderboard queries.
type GetLeaderboardHandler struct {
	reader  leveling.StatsReader
	cache   leveling.LeaderboardCache
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewGetLeaderboardHandler creates the handler. cache may be nil.
func NewGetLeaderboardHandler(reader leveling.StatsReader, cache leveling.LeaderboardCache, log *slog.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GetLeaderboardHandler{
		reader: reader,
		cache:  cache,
		breaker: circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
		logger: log.With(logger.Component("get_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_leaderboard: validation failed: %w", err)
	}

	result := &GetLeaderboardResult{ChatID: q.ChatID, GeneratedAt: time.Now().UTC()}

	if entries, ok := h.fromCache(ctx, q); ok {
		result.Entries = toEntryDTOs(entries)
		result.FromCache = true
		return result, nil
	}

	stats, err := h.reader.GetLeaderboard(ctx, q.ChatID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: failed to read leaderboard: %w", err)
	}
	result.Entries = toEntryDTOs(leveling.RankStats(stats))
	return result, nil
}

func (h *GetLeaderboardHandler) fromCache(ctx context.Context, q GetLeaderboardQuery) ([]leveling.LeaderboardEntry, bool) {
	if h.cache == nil {
		return nil, false
	}

	var entries []leveling.LeaderboardEntry
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		entries, err = h.cache.Top(ctx, q.ChatID, q.Limit)
		if shared.IsNotFound(err) {
			// A cold chat is not a cache failure.
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			h.logger.Warn("leaderboard cache read failed", logger.ChatID(q.ChatID), logger.Err(err))
		}
		return nil, false
	}
	return entries, len(entries) > 0
}

func toEntryDTOs(entries []leveling.LeaderboardEntry) []LeaderboardEntryDTO {
	out := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = LeaderboardEntryDTO{
			Rank:     e.Rank,
			UserID:   e.UserID,
			Username: e.Username,
			XP:       e.XP,
			Level:    e.Level,
		}
	}
	return out
}
