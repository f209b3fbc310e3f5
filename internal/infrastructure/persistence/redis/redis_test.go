package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// newTestClient connects to the Redis named by TEST_REDIS_ADDR and isolates
// the test under a random key prefix.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "test:" + uuid.NewString() + ":"

	c, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", context.DeadlineExceeded), shared.ErrTimeout)
	assert.True(t, shared.IsRetryable(classify("op", context.DeadlineExceeded)))

	err := classify("op", errors.New("boom"))
	assert.False(t, shared.IsRetryable(err))
	assert.Contains(t, err.Error(), "redis: failed to op")
}

func TestEventClaimer_ExactlyOnce(t *testing.T) {
	c := newTestClient(t)
	claimer := NewEventClaimer(c)
	ctx := context.Background()

	ok, err := claimer.ClaimEventIfUnprocessed(ctx, "tg:1:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = claimer.ClaimEventIfUnprocessed(ctx, "tg:1:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, claimer.ReleaseEvent(ctx, "tg:1:1"))
	ok, err = claimer.ClaimEventIfUnprocessed(ctx, "tg:1:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestXPLimiter_RollingWindow(t *testing.T) {
	c := newTestClient(t)
	limiter := NewXPLimiter(c)
	ctx := context.Background()
	key := leveling.MemberKey{UserID: 1, ChatID: 2}
	policy := leveling.RateLimitPolicy{MaxXP: 10, Window: time.Minute}
	t0 := time.Now().Truncate(time.Second)

	got, err := limiter.Grant(ctx, key, "g1", 4, t0, policy)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got)

	got, err = limiter.Grant(ctx, key, "g2", 8, t0.Add(time.Second), policy)
	require.NoError(t, err)
	assert.EqualValues(t, 6, got)

	got, err = limiter.Grant(ctx, key, "g3", 3, t0.Add(2*time.Second), policy)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = limiter.Grant(ctx, key, "g4", 5, t0.Add(time.Minute), policy)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got, "first grant left the window")
}

func TestXPLimiter_Refund(t *testing.T) {
	c := newTestClient(t)
	limiter := NewXPLimiter(c)
	ctx := context.Background()
	key := leveling.MemberKey{UserID: 3, ChatID: 2}
	policy := leveling.RateLimitPolicy{MaxXP: 4, Window: time.Minute}
	t0 := time.Now().Truncate(time.Second)

	got, err := limiter.Grant(ctx, key, "tg:2:10", 4, t0, policy)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got)

	require.NoError(t, limiter.Refund(ctx, key, "tg:2:1"))
	got, err = limiter.Grant(ctx, key, "tg:2:11", 4, t0.Add(time.Second), policy)
	require.NoError(t, err)
	assert.Zero(t, got, "refunding another grant id changes nothing")

	require.NoError(t, limiter.Refund(ctx, key, "tg:2:10"))
	got, err = limiter.Grant(ctx, key, "tg:2:12", 4, t0.Add(2*time.Second), policy)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got)
}

func TestXPLimiter_DisabledPolicySkipsRedis(t *testing.T) {
	limiter := NewXPLimiter(NewClientFrom(nil, ""))

	got, err := limiter.Grant(context.Background(), leveling.MemberKey{UserID: 1, ChatID: 1}, "g5", 7, time.Now(), leveling.RateLimitPolicy{})
	require.NoError(t, err)
	assert.EqualValues(t, 7, got)
}

func TestLeaderboardCache(t *testing.T) {
	c := newTestClient(t)
	cache := NewLeaderboardCache(c, time.Minute)
	ctx := context.Background()

	_, err := cache.Top(ctx, 5, 10)
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, cache.Upsert(ctx, 5, leveling.LeaderboardEntry{UserID: 1, XP: 10}))
	_, err = cache.Top(ctx, 5, 10)
	assert.True(t, shared.IsNotFound(err), "upsert must not warm a cold chat")

	require.NoError(t, cache.Replace(ctx, 5, []leveling.LeaderboardEntry{
		{UserID: 3, Username: "carol", XP: 50, Level: 2},
		{UserID: 2, Username: "bob", XP: 50, Level: 2},
		{UserID: 1, Username: "alice", XP: 20, Level: 1},
	}))
	require.NoError(t, cache.Upsert(ctx, 5, leveling.LeaderboardEntry{UserID: 1, Username: "alice", XP: 120, Level: 3}))

	top, err := cache.Top(ctx, 5, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, leveling.LeaderboardEntry{Rank: 1, UserID: 1, Username: "alice", XP: 120, Level: 3}, top[0])
	assert.Equal(t, int64(2), top[1].UserID, "ties rank by user id")
}
