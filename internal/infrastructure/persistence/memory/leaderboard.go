package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// LeaderboardCache implements leveling.LeaderboardCache in process memory.
type LeaderboardCache struct {
	mu    sync.RWMutex
	chats map[int64]map[int64]leveling.LeaderboardEntry
}

// NewLeaderboardCache creates an empty cache.
func NewLeaderboardCache() *LeaderboardCache {
	return &LeaderboardCache{chats: make(map[int64]map[int64]leveling.LeaderboardEntry)}
}

// Top implements leveling.LeaderboardCache.
func (c *LeaderboardCache) Top(ctx context.Context, chatID int64, limit int) ([]leveling.LeaderboardEntry, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	members, ok := c.chats[chatID]
	stats := make([]leveling.UserChatStats, 0, len(members))
	for _, e := range members {
		stats = append(stats, leveling.UserChatStats{
			UserID: e.UserID, ChatID: chatID, Username: e.Username, XP: e.XP, Level: e.Level,
		})
	}
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("memory: leaderboard for chat %d: %w", chatID, shared.ErrNotFound)
	}
	ranked := leveling.RankStats(stats)
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Upsert implements leveling.LeaderboardCache. Cold chats are ignored.
func (c *LeaderboardCache) Upsert(ctx context.Context, chatID int64, entry leveling.LeaderboardEntry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if members, ok := c.chats[chatID]; ok {
		entry.Rank = 0
		members[entry.UserID] = entry
	}
	return nil
}

// Replace implements leveling.LeaderboardCache.
func (c *LeaderboardCache) Replace(ctx context.Context, chatID int64, entries []leveling.LeaderboardEntry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	members := make(map[int64]leveling.LeaderboardEntry, len(entries))
	for _, e := range entries {
		e.Rank = 0
		members[e.UserID] = e
	}

	c.mu.Lock()
	c.chats[chatID] = members
	c.mu.Unlock()
	return nil
}
