package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

var (
	ctx    = context.Background()
	member = leveling.MemberKey{UserID: 1001, ChatID: -500}
	t0     = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
)

func messageDelta(xp int64, at time.Time) leveling.StatsDelta {
	return leveling.StatsDelta{
		XP:       xp,
		Counters: leveling.CounterDeltas{Messages: 1},
		At:       at,
		Curve:    leveling.DefaultLevelCurve(),
	}
}

func TestStatsStore_ConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	store := NewStatsStore()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyAtomicUpdate(ctx, member, messageDelta(1, t0))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := store.GetStats(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.XP)
	assert.Equal(t, int64(100), st.MessagesCount)
	assert.Equal(t, 100, st.MessagesToday)
	assert.Equal(t, 3, st.Level)
}

func TestStatsStore_RejectsNegativeDelta(t *testing.T) {
	store := NewStatsStore()

	_, err := store.ApplyAtomicUpdate(ctx, member, leveling.StatsDelta{XP: -1})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)

	_, err = store.GetStats(ctx, member)
	assert.ErrorIs(t, err, shared.ErrStatsNotFound)
}

func TestStatsStore_FailNext(t *testing.T) {
	store := NewStatsStore()
	store.FailNext(1, shared.ErrTimeout)

	_, err := store.ApplyAtomicUpdate(ctx, member, messageDelta(1, t0))
	assert.ErrorIs(t, err, shared.ErrTimeout)

	st, err := store.ApplyAtomicUpdate(ctx, member, messageDelta(1, t0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.XP)
}

func TestStatsStore_SameEventAppliedOnce(t *testing.T) {
	store := NewStatsStore().WithClock(func() time.Time { return t0 })
	d := messageDelta(4, t0)
	d.EventID = "tg:-500:7"

	first, err := store.ApplyAtomicUpdate(ctx, member, d)
	require.NoError(t, err)
	again, err := store.ApplyAtomicUpdate(ctx, member, d)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, int64(4), again.XP)
	assert.Equal(t, int64(1), again.MessagesCount)

	other, err := store.ApplyAtomicUpdate(ctx, leveling.MemberKey{UserID: 2002, ChatID: -500}, d)
	require.NoError(t, err)
	assert.Equal(t, int64(4), other.XP, "marks are per member")
}

func TestStatsStore_PurgeAppliedBefore(t *testing.T) {
	now := t0
	store := NewStatsStore().WithClock(func() time.Time { return now })
	d := messageDelta(1, t0)
	d.EventID = "e1"
	_, err := store.ApplyAtomicUpdate(ctx, member, d)
	require.NoError(t, err)

	n, err := store.PurgeAppliedBefore(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.PurgeAppliedBefore(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := store.ApplyAtomicUpdate(ctx, member, d)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.XP, "purged marks no longer guard the event")
}

func TestStatsStore_LeaderboardAndUsername(t *testing.T) {
	store := NewStatsStore()
	for _, m := range []struct {
		id   int64
		name string
		xp   int64
	}{{3, "carol", 10}, {1, "Alice", 30}, {2, "bob", 30}} {
		d := messageDelta(m.xp, t0)
		d.Username = m.name
		_, err := store.ApplyAtomicUpdate(ctx, leveling.MemberKey{UserID: m.id, ChatID: -500}, d)
		require.NoError(t, err)
	}
	_, err := store.GetOrCreateStats(ctx, leveling.MemberKey{UserID: 9, ChatID: -600})
	require.NoError(t, err)

	top, err := store.GetLeaderboard(ctx, -500, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].UserID)
	assert.Equal(t, int64(2), top[1].UserID)

	st, err := store.FindByUsername(ctx, -500, "@alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.UserID)

	_, err = store.FindByUsername(ctx, -600, "alice")
	assert.ErrorIs(t, err, shared.ErrStatsNotFound)

	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{-600, -500}, chats)
}

func TestClaimStore_ExactlyOnceWithinRetention(t *testing.T) {
	now := t0
	store := NewClaimStore().WithClock(func() time.Time { return now })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimEventIfUnprocessed(ctx, "tg:-500:1", time.Hour)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)

	now = now.Add(time.Hour)
	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err := store.ClaimEventIfUnprocessed(ctx, "tg:-500:1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimStore_Release(t *testing.T) {
	store := NewClaimStore()

	ok, _ := store.ClaimEventIfUnprocessed(ctx, "e1", time.Hour)
	require.True(t, ok)
	require.NoError(t, store.ReleaseEvent(ctx, "e1"))

	ok, _ = store.ClaimEventIfUnprocessed(ctx, "e1", time.Hour)
	assert.True(t, ok)
}

func TestLimiter_RollingWindow(t *testing.T) {
	l := NewLimiter()
	policy := leveling.RateLimitPolicy{MaxXP: 10, Window: time.Minute}

	var total int64
	for i := 0; i < 1000; i++ {
		got, err := l.Grant(ctx, member, fmt.Sprintf("g%d", i), 1, t0.Add(time.Duration(i)*10*time.Millisecond), policy)
		require.NoError(t, err)
		total += got
	}
	assert.Equal(t, int64(10), total)

	got, err := l.Grant(ctx, member, "g2", 5, t0.Add(2*time.Minute), policy)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got)

	got, _ = l.Grant(ctx, member, "g3", 8, t0.Add(2*time.Minute+time.Second), policy)
	assert.Equal(t, int64(5), got)
}

func TestLimiter_RefundRestoresBudget(t *testing.T) {
	l := NewLimiter()
	policy := leveling.RateLimitPolicy{MaxXP: 4, Window: time.Minute}

	got, err := l.Grant(ctx, member, "tg:-500:1", 4, t0, policy)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	got, _ = l.Grant(ctx, member, "tg:-500:2", 4, t0.Add(time.Second), policy)
	assert.Zero(t, got)

	require.NoError(t, l.Refund(ctx, member, "tg:-500:1"))
	require.NoError(t, l.Refund(ctx, member, "unknown"))

	got, _ = l.Grant(ctx, member, "tg:-500:1", 4, t0.Add(2*time.Second), policy)
	assert.Equal(t, int64(4), got)
}

func TestLimiter_DisabledPolicyGrantsEverything(t *testing.T) {
	l := NewLimiter()

	got, err := l.Grant(ctx, member, "g4", 500, t0, leveling.RateLimitPolicy{})
	require.NoError(t, err)
	assert.Equal(t, int64(500), got)

	got, _ = l.Grant(ctx, member, "g5", 0, t0, leveling.DefaultRateLimitPolicy())
	assert.Zero(t, got)
}

func TestAchievementStore_InsertIfAbsent(t *testing.T) {
	store := NewAchievementStore()

	created, err := store.InsertAchievementIfAbsent(ctx, member, "first_message", t0)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertAchievementIfAbsent(ctx, member, "first_message", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)

	_, _ = store.InsertAchievementIfAbsent(ctx, member, "early_bird", t0.Add(-time.Hour))

	list, err := store.ListUnlocked(ctx, member)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early_bird", list[0].AchievementID)
	assert.Equal(t, t0, list[1].UnlockedAt)

	has, _ := store.HasAchievement(ctx, member, "first_message")
	assert.True(t, has)
}

func TestAchievementStore_RecordTieKeepsIncumbent(t *testing.T) {
	store := NewAchievementStore()

	set, _ := store.SubmitRecord(ctx, -500, "longest_message", 1, 300, t0)
	assert.True(t, set)

	set, _ = store.SubmitRecord(ctx, -500, "longest_message", 2, 300, t0)
	assert.False(t, set)

	set, _ = store.SubmitRecord(ctx, -501, "longest_message", 2, 300, t0)
	assert.True(t, set)

	holder, value, ok := store.RecordHolder(-500, "longest_message")
	require.True(t, ok)
	assert.Equal(t, int64(1), holder)
	assert.Equal(t, int64(300), value)
}

func TestLeaderboardCache_ColdChatAndRanking(t *testing.T) {
	cache := NewLeaderboardCache()

	_, err := cache.Top(ctx, 1, 10)
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, cache.Upsert(ctx, 1, leveling.LeaderboardEntry{UserID: 9, XP: 99}))
	_, err = cache.Top(ctx, 1, 10)
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, cache.Replace(ctx, 1, []leveling.LeaderboardEntry{
		{UserID: 2, XP: 10},
		{UserID: 1, XP: 10},
	}))
	require.NoError(t, cache.Upsert(ctx, 1, leveling.LeaderboardEntry{UserID: 3, XP: 30}))

	top, err := cache.Top(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(3), top[0].UserID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, int64(1), top[1].UserID)
}
