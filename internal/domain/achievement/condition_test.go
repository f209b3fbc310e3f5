package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

func withMessage(ts time.Time, facts leveling.TextFacts) Input {
	return Input{Message: &MessageContext{LocalTime: ts, Facts: facts}}
}

func TestCounterAtLeast(t *testing.T) {
	c := CounterAtLeast{Counter: leveling.CounterLinks, Threshold: 10}

	met, err := c.Met(Input{Stats: leveling.UserChatStats{LinksShared: 9}})
	assert.NoError(t, err)
	assert.False(t, met)

	met, _ = c.Met(Input{Stats: leveling.UserChatStats{LinksShared: 10}})
	assert.True(t, met)
}

func TestStreakAtLeast(t *testing.T) {
	c := StreakAtLeast{Days: 7}

	met, _ := c.Met(Input{Stats: leveling.UserChatStats{CurrentStreak: 7}})
	assert.True(t, met)

	_, err := StreakAtLeast{}.Met(Input{})
	assert.Error(t, err)
}

func TestTimeWindow_WrapsMidnight(t *testing.T) {
	c := TimeWindow{FromHour: 22, ToHour: 2}

	met, _ := c.Met(withMessage(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), leveling.TextFacts{}))
	assert.True(t, met)

	met, _ = c.Met(withMessage(time.Date(2024, 1, 1, 1, 59, 0, 0, time.UTC), leveling.TextFacts{}))
	assert.True(t, met)

	met, _ = c.Met(withMessage(time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), leveling.TextFacts{}))
	assert.False(t, met)

	_, err := TimeWindow{FromHour: 30, ToHour: 2}.Met(withMessage(time.Now(), leveling.TextFacts{}))
	assert.Error(t, err)
}

func TestCalendarDayAndWeekend(t *testing.T) {
	newYear := withMessage(time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC), leveling.TextFacts{})

	met, _ := CalendarDay{Month: time.January, Day: 1}.Met(newYear)
	assert.True(t, met)

	// 2025-01-04 is a Saturday.
	met, _ = Weekend{}.Met(withMessage(time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC), leveling.TextFacts{}))
	assert.True(t, met)

	met, _ = Weekend{}.Met(newYear)
	assert.False(t, met)
}

func TestMessagePredicate(t *testing.T) {
	long := MessagePredicate{Name: "long", Fn: func(m MessageContext) bool { return m.Facts.Length > 3 }}

	met, _ := long.Met(withMessage(time.Now(), leveling.TextFacts{Length: 4}))
	assert.True(t, met)

	met, _ = long.Met(Input{})
	assert.False(t, met)

	_, err := MessagePredicate{Name: "nil"}.Met(Input{})
	assert.Error(t, err)
}

func TestAll(t *testing.T) {
	c := All{
		CounterAtLeast{Counter: leveling.CounterMessages, Threshold: 1},
		Weekend{},
	}

	in := withMessage(time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC), leveling.TextFacts{})
	in.Stats.MessagesCount = 1
	met, err := c.Met(in)
	assert.NoError(t, err)
	assert.True(t, met)

	_, err = All{}.Met(in)
	assert.Error(t, err)
}
