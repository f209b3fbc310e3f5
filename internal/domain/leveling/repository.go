package leveling

import (
	"context"
	"time"
)

// StatsRepository is the write side of member stats.
type StatsRepository interface {
	// GetOrCreateStats returns the member's stats, creating zero-valued stats
	// on first access.
	GetOrCreateStats(ctx context.Context, key MemberKey) (UserChatStats, error)

	// ApplyAtomicUpdate applies the delta as one atomic read-modify-write and
	// returns the new snapshot. Concurrent updates of the same member must not
	// lose increments. Missing stats are created first. A delta whose EventID
	// was already applied to the member is not applied again; the current
	// snapshot is returned instead, so a retry after an ambiguous commit is
	// safe.
	ApplyAtomicUpdate(ctx context.Context, key MemberKey, delta StatsDelta) (UserChatStats, error)
}

// StatsReader is the read-only query side of member stats.
type StatsReader interface {
	// GetStats returns stats or shared.ErrStatsNotFound.
	GetStats(ctx context.Context, key MemberKey) (UserChatStats, error)

	// GetLeaderboard returns the top members of a chat ordered by XP
	// descending, then user id ascending.
	GetLeaderboard(ctx context.Context, chatID int64, limit int) ([]UserChatStats, error)

	// FindByUsername resolves a handle (without "@", case-insensitive) inside a chat.
	FindByUsername(ctx context.Context, chatID int64, username string) (UserChatStats, error)
}

// EventClaimer is the exactly-once guard for inbound events.
type EventClaimer interface {
	// ClaimEventIfUnprocessed atomically claims the event id. It returns true
	// only for the first caller within the retention window.
	ClaimEventIfUnprocessed(ctx context.Context, eventID string, retention time.Duration) (bool, error)

	// ReleaseEvent forgets a claim so a redelivery can be processed. Used only
	// when nothing was committed for the event.
	ReleaseEvent(ctx context.Context, eventID string) error
}

// XPLimiter enforces the rolling-window XP cap.
type XPLimiter interface {
	// Grant records and returns the portion of requested XP allowed at the
	// given time under the policy. grantID identifies the grant for Refund.
	Grant(ctx context.Context, key MemberKey, grantID string, requested int64, at time.Time, policy RateLimitPolicy) (int64, error)

	// Refund returns a recorded grant to the window budget. Refunding an
	// unknown grant is a no-op.
	Refund(ctx context.Context, key MemberKey, grantID string) error
}
