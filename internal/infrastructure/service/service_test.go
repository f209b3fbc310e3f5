package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/persistence/memory"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/circuitbreaker"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID, text})
	return nil
}

type failureCounter struct{ kinds []string }

func (c *failureCounter) NotificationFailed(kind string) { c.kinds = append(c.kinds, kind) }

func TestFormatting(t *testing.T) {
	assert.Equal(t, "🎉 @alice reached level 3!",
		FormatLevelUp(shared.NewLevelUpEvent(1, -1, "alice", 3)))
	assert.Equal(t, "🎉 user 42 reached level 2!",
		FormatLevelUp(shared.NewLevelUpEvent(42, -1, "", 2)))
	assert.Equal(t, "🏆 @bob unlocked 🌅 Early Bird",
		FormatAchievementUnlocked(shared.NewAchievementUnlockedEvent(2, -1, "@bob", "early_bird", "Early Bird", "🌅")))
	assert.Equal(t, "🏆 @bob unlocked streak_3",
		FormatAchievementUnlocked(shared.NewAchievementUnlockedEvent(2, -1, "bob", "streak_3", "", "")))
}

func TestNotificationService_SendsToEventChat(t *testing.T) {
	sender := &fakeSender{}
	svc := NewNotificationService(NotificationServiceConfig{Sender: sender, Logger: logger.Discard()})

	require.NoError(t, svc.HandleLevelUp(shared.NewLevelUpEvent(1, -100, "alice", 2)))
	require.NoError(t, svc.HandleAchievementUnlocked(shared.NewAchievementUnlockedEvent(1, -100, "alice", "first_message", "First Words", "💬")))
	require.NoError(t, svc.HandleLevelUp(shared.NewStatsUpdatedEvent(1, -100, "alice", 10, 1, 1)))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(-100), sender.sent[0].chatID)
	assert.Contains(t, sender.sent[1].text, "First Words")
}

func TestNotificationService_FailureIsCountedAndBreakerOpens(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	failures := &failureCounter{}
	svc := NewNotificationService(NotificationServiceConfig{
		Sender:  sender,
		Breaker: circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithTimeout(time.Hour)),
		Metrics: failures,
		Logger:  logger.Discard(),
	})

	e := shared.NewLevelUpEvent(1, -1, "a", 2)
	assert.Error(t, svc.HandleLevelUp(e))
	assert.Error(t, svc.HandleLevelUp(e))

	err := svc.HandleLevelUp(e)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, []string{"level_up", "level_up", "level_up"}, failures.kinds)
}

func TestLeaderboardService_RebuildAndProject(t *testing.T) {
	ctx := context.Background()
	stats := memory.NewStatsStore()
	cache := memory.NewLeaderboardCache()
	svc := NewLeaderboardService(LeaderboardServiceConfig{Source: stats, Cache: cache, Logger: logger.Discard()})

	for userID, xp := range map[int64]int64{1: 10, 2: 30} {
		_, err := stats.ApplyAtomicUpdate(ctx, leveling.MemberKey{UserID: userID, ChatID: -7}, leveling.StatsDelta{
			XP:    xp,
			At:    time.Now(),
			Curve: leveling.DefaultLevelCurve(),
		})
		require.NoError(t, err)
	}

	n, err := svc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, svc.HandleStatsUpdated(shared.NewStatsUpdatedEvent(1, -7, "alice", 60, 2, 50)))

	top, err := cache.Top(ctx, -7, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, leveling.LeaderboardEntry{Rank: 1, UserID: 1, Username: "alice", XP: 60, Level: 2}, top[0])
}
