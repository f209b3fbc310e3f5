package leveling

import (
	"context"
	"sort"
)

// LeaderboardEntry is one ranked member of a chat.
type LeaderboardEntry struct {
	Rank     int
	UserID   int64
	Username string
	XP       int64
	Level    int
}

// RankStats orders stats by XP descending, then user id ascending, and
// assigns 1-based ranks.
func RankStats(stats []UserChatStats) []LeaderboardEntry {
	sorted := make([]UserChatStats, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].XP != sorted[j].XP {
			return sorted[i].XP > sorted[j].XP
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	out := make([]LeaderboardEntry, len(sorted))
	for i, s := range sorted {
		out[i] = LeaderboardEntry{
			Rank:     i + 1,
			UserID:   s.UserID,
			Username: s.Username,
			XP:       s.XP,
			Level:    s.Level,
		}
	}
	return out
}

// LeaderboardCache is a fast read model of per-chat rankings.
type LeaderboardCache interface {
	// Top returns the highest ranked entries. A chat that was never cached
	// returns shared.ErrNotFound.
	Top(ctx context.Context, chatID int64, limit int) ([]LeaderboardEntry, error)

	// Upsert records a member's current XP.
	Upsert(ctx context.Context, chatID int64, entry LeaderboardEntry) error

	// Replace rebuilds the chat's ranking from scratch.
	Replace(ctx context.Context, chatID int64, entries []LeaderboardEntry) error
}
