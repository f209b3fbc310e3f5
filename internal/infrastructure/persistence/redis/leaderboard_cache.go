package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// DefaultLeaderboardTTL bounds how long an idle chat ranking stays cached.
const DefaultLeaderboardTTL = 24 * time.Hour

// entryInfo is the per-member payload stored next to the score.
type entryInfo struct {
	Username string `json:"username,omitempty"`
	Level    int    `json:"level"`
}

// LeaderboardCache implements leveling.LeaderboardCache.
//
// Layout per chat:
//   - sorted set "lb:{chat}" maps user id to XP
//   - hash "lb:info:{chat}" maps user id to entryInfo JSON
//
// Ties on XP are broken by user id ascending, which matches the database
// ordering, so cached and uncached reads rank members identically.
type LeaderboardCache struct {
	client *Client
	ttl    time.Duration
}

// NewLeaderboardCache creates a LeaderboardCache. A non-positive ttl uses
// DefaultLeaderboardTTL.
func NewLeaderboardCache(client *Client, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &LeaderboardCache{client: client, ttl: ttl}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Upsert implements leveling.LeaderboardCache. Only chats that are already
// cached are updated; a cold chat is left for the next full rebuild.
func (l *LeaderboardCache) Upsert(ctx context.Context, chatID int64, entry leveling.LeaderboardEntry) error {
	xpKey := l.client.leaderboardKey(chatID)

	n, err := l.client.rdb.Exists(ctx, xpKey).Result()
	if err != nil {
		return classify("check leaderboard", err)
	}
	if n == 0 {
		return nil
	}

	data, err := json.Marshal(entryInfo{Username: entry.Username, Level: entry.Level})
	if err != nil {
		return fmt.Errorf("redis: failed to marshal leaderboard entry: %w", err)
	}

	member := strconv.FormatInt(entry.UserID, 10)
	pipe := l.client.rdb.TxPipeline()
	pipe.ZAdd(ctx, xpKey, redis.Z{Score: float64(entry.XP), Member: member})
	pipe.HSet(ctx, l.client.leaderboardInfoKey(chatID), member, data)
	pipe.Expire(ctx, xpKey, l.ttl)
	pipe.Expire(ctx, l.client.leaderboardInfoKey(chatID), l.ttl)

	_, err = pipe.Exec(ctx)
	return classify("upsert leaderboard", err)
}

// Replace implements leveling.LeaderboardCache.
func (l *LeaderboardCache) Replace(ctx context.Context, chatID int64, entries []leveling.LeaderboardEntry) error {
	xpKey := l.client.leaderboardKey(chatID)
	infoKey := l.client.leaderboardInfoKey(chatID)

	zMembers := make([]redis.Z, 0, len(entries))
	hashData := make(map[string]interface{}, len(entries))
	for _, entry := range entries {
		member := strconv.FormatInt(entry.UserID, 10)
		data, err := json.Marshal(entryInfo{Username: entry.Username, Level: entry.Level})
		if err != nil {
			return fmt.Errorf("redis: failed to marshal leaderboard entry: %w", err)
		}
		zMembers = append(zMembers, redis.Z{Score: float64(entry.XP), Member: member})
		hashData[member] = data
	}

	pipe := l.client.rdb.TxPipeline()
	pipe.Del(ctx, xpKey, infoKey)
	if len(zMembers) > 0 {
		pipe.ZAdd(ctx, xpKey, zMembers...)
		pipe.HSet(ctx, infoKey, hashData)
		pipe.Expire(ctx, xpKey, l.ttl)
		pipe.Expire(ctx, infoKey, l.ttl)
	}

	_, err := pipe.Exec(ctx)
	return classify("replace leaderboard", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Top implements leveling.LeaderboardCache.
func (l *LeaderboardCache) Top(ctx context.Context, chatID int64, limit int) ([]leveling.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	xpKey := l.client.leaderboardKey(chatID)

	// Redis orders equal scores by member descending under ZREVRANGE, so read
	// everything down to the limit-th score and re-rank locally.
	cutoff, err := l.client.rdb.ZRevRangeWithScores(ctx, xpKey, int64(limit-1), int64(limit-1)).Result()
	if err != nil {
		return nil, classify("read leaderboard", err)
	}

	var zs []redis.Z
	if len(cutoff) == 0 {
		zs, err = l.client.rdb.ZRevRangeWithScores(ctx, xpKey, 0, -1).Result()
	} else {
		zs, err = l.client.rdb.ZRevRangeByScoreWithScores(ctx, xpKey, &redis.ZRangeBy{
			Min: strconv.FormatFloat(cutoff[0].Score, 'f', -1, 64),
			Max: "+inf",
		}).Result()
	}
	if err != nil {
		return nil, classify("read leaderboard", err)
	}
	if len(zs) == 0 {
		return nil, fmt.Errorf("redis: leaderboard for chat %d: %w", chatID, shared.ErrNotFound)
	}

	members := make([]string, len(zs))
	for i, z := range zs {
		members[i], _ = z.Member.(string)
	}
	infos, err := l.client.rdb.HMGet(ctx, l.client.leaderboardInfoKey(chatID), members...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, classify("read leaderboard info", err)
	}

	stats := make([]leveling.UserChatStats, 0, len(zs))
	for i, z := range zs {
		userID, err := strconv.ParseInt(members[i], 10, 64)
		if err != nil {
			continue
		}
		s := leveling.UserChatStats{UserID: userID, ChatID: chatID, XP: int64(z.Score)}
		if i < len(infos) {
			if raw, ok := infos[i].(string); ok {
				var info entryInfo
				if json.Unmarshal([]byte(raw), &info) == nil {
					s.Username = info.Username
					s.Level = info.Level
				}
			}
		}
		stats = append(stats, s)
	}

	ranked := leveling.RankStats(stats)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
