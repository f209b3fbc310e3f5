package leveling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

func day(d, hour int) time.Time {
	return time.Date(2024, 1, d, hour, 0, 0, 0, time.UTC)
}

func messageDelta(at time.Time, xp int64) StatsDelta {
	return StatsDelta{
		XP:       xp,
		Counters: CounterDeltas{Messages: 1},
		At:       at,
		Curve:    DefaultLevelCurve(),
	}
}

func TestApply_XPAndLevel(t *testing.T) {
	s := NewUserChatStats(MemberKey{UserID: alice, ChatID: chat}, day(1, 0))

	require.NoError(t, s.Apply(messageDelta(day(1, 10), 52)))

	assert.Equal(t, int64(52), s.XP)
	assert.Equal(t, 2, s.Level)
	assert.Equal(t, int64(1), s.MessagesCount)
	assert.Equal(t, day(1, 10), s.LastActivity)
}

func TestApply_RejectsNegative(t *testing.T) {
	s := NewUserChatStats(MemberKey{UserID: alice, ChatID: chat}, day(1, 0))

	err := s.Apply(StatsDelta{XP: -1, Curve: DefaultLevelCurve()})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)

	err = s.Apply(StatsDelta{Counters: CounterDeltas{Links: -2}, Curve: DefaultLevelCurve()})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
	assert.Equal(t, int64(0), s.XP)
}

func TestApply_Streak(t *testing.T) {
	s := NewUserChatStats(MemberKey{UserID: alice, ChatID: chat}, day(1, 0))

	require.NoError(t, s.Apply(messageDelta(day(1, 9), 1)))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.MessagesToday)

	require.NoError(t, s.Apply(messageDelta(day(1, 18), 1)))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.MessagesToday)

	require.NoError(t, s.Apply(messageDelta(day(2, 8), 1)))
	require.NoError(t, s.Apply(messageDelta(day(3, 8), 1)))
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.BestStreak)
	assert.Equal(t, 1, s.MessagesToday)

	// A gap resets the streak but keeps the best.
	require.NoError(t, s.Apply(messageDelta(day(6, 8), 1)))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 3, s.BestStreak)
	assert.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), s.LastActiveDate)
}

func TestApply_LateDeliveryDoesNotRewindStreak(t *testing.T) {
	s := NewUserChatStats(MemberKey{UserID: alice, ChatID: chat}, day(1, 0))

	require.NoError(t, s.Apply(messageDelta(day(5, 8), 1)))
	require.NoError(t, s.Apply(messageDelta(day(4, 23), 1)))

	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.MessagesToday)
	assert.Equal(t, int64(2), s.MessagesCount)
	assert.Equal(t, day(5, 8), s.LastActivity)
}

func TestApply_NonMessageActivityKeepsStreak(t *testing.T) {
	s := NewUserChatStats(MemberKey{UserID: bob, ChatID: chat}, day(1, 0))

	require.NoError(t, s.Apply(StatsDelta{
		XP:       5,
		Counters: CounterDeltas{ThanksReceived: 1},
		At:       day(2, 10),
		Curve:    DefaultLevelCurve(),
	}))

	assert.Equal(t, 0, s.CurrentStreak)
	assert.Equal(t, int64(1), s.ThanksReceived)
	assert.Equal(t, day(2, 10), s.LastActivity)
}

func TestUserChatStats_Counter(t *testing.T) {
	s := UserChatStats{MessagesCount: 3, LinksShared: 2, Level: 4, CurrentStreak: 7}

	assert.Equal(t, int64(3), s.Counter(CounterMessages))
	assert.Equal(t, int64(2), s.Counter(CounterLinks))
	assert.Equal(t, int64(4), s.Counter(CounterLevel))
	assert.Equal(t, int64(7), s.Counter(CounterStreak))
	assert.Equal(t, int64(0), s.Counter(Counter("unknown")))
}

func TestMessageEvent_Validate(t *testing.T) {
	event := msg("hi")
	assert.NoError(t, event.Validate())

	event.EventID = ""
	assert.ErrorIs(t, event.Validate(), shared.ErrInvalidID)

	event = msg("hi")
	event.Timestamp = time.Time{}
	assert.True(t, shared.IsValidation(event.Validate()))
}

func TestRules_Validate(t *testing.T) {
	rules, err := NewRules(DefaultRules())
	require.NoError(t, err)
	assert.NotNil(t, rules.Classifier())
	assert.NotNil(t, rules.Calculator())

	bad := DefaultRules()
	bad.Curve.Multiplier = 0.5
	bad.MaxAttempts = 0
	_, err = NewRules(bad)
	assert.ErrorIs(t, err, shared.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "multiplier")
	assert.Contains(t, err.Error(), "max attempts")
}

func TestRankStats(t *testing.T) {
	got := RankStats([]UserChatStats{
		{UserID: 3, XP: 10},
		{UserID: 2, XP: 30},
		{UserID: 1, XP: 30},
	})

	require.Len(t, got, 3)
	assert.Equal(t, LeaderboardEntry{Rank: 1, UserID: 1, XP: 30}, got[0])
	assert.Equal(t, int64(2), got[1].UserID)
	assert.Equal(t, 3, got[2].Rank)
}
