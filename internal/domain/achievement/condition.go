package achievement

import (
	"errors"
	"fmt"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION INPUT
// ══════════════════════════════════════════════════════════════════════════════

// Input is everything a condition may look at.
type Input struct {
	// Stats is the post-update snapshot of the member.
	Stats leveling.UserChatStats

	// Message is set when the member authored the message being processed.
	// It is nil for members who were only credited (e.g. thanked).
	Message *MessageContext

	// Records holds the superlative records the member set with this message.
	// The engine fills it before evaluating conditions.
	Records map[string]bool

	// CallTimeout bounds each persistence call of this evaluation. Zero uses
	// the engine default.
	CallTimeout time.Duration
}

// MessageContext describes the message being processed.
type MessageContext struct {
	EventID   string
	Facts     leveling.TextFacts
	MediaKind leveling.MediaKind

	// LocalTime is the send time in the chat's timezone.
	LocalTime time.Time

	// FirstToday is true for the member's first message of the local day.
	FirstToday bool
}

// Condition decides whether a member has earned an achievement.
// Implementations must be safe for concurrent use.
type Condition interface {
	// Met reports whether the condition holds for the input.
	Met(in Input) (bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// PER-USER COUNTERS
// ══════════════════════════════════════════════════════════════════════════════

// CounterAtLeast holds once a monotonic counter reaches Threshold.
type CounterAtLeast struct {
	Counter   leveling.Counter
	Threshold int64
}

// Met implements Condition.
func (c CounterAtLeast) Met(in Input) (bool, error) {
	if c.Threshold <= 0 {
		return false, fmt.Errorf("counter %s: threshold must be positive, got %d", c.Counter, c.Threshold)
	}
	return in.Stats.Counter(c.Counter) >= c.Threshold, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

// StreakAtLeast holds once the member's consecutive-day streak reaches Days.
type StreakAtLeast struct {
	Days int
}

// Met implements Condition.
func (c StreakAtLeast) Met(in Input) (bool, error) {
	if c.Days <= 0 {
		return false, fmt.Errorf("streak: days must be positive, got %d", c.Days)
	}
	return in.Stats.CurrentStreak >= c.Days, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR AND TIME OF DAY
// ══════════════════════════════════════════════════════════════════════════════

// TimeWindow holds for a message sent in [FromHour, ToHour) local time.
// The window may wrap past midnight. With FirstMessageToday set the message
// must also be the member's first of the day.
type TimeWindow struct {
	FromHour          int
	ToHour            int
	FirstMessageToday bool
}

// Met implements Condition.
func (c TimeWindow) Met(in Input) (bool, error) {
	if in.Message == nil {
		return false, nil
	}
	if c.FromHour < 0 || c.FromHour > 23 || c.ToHour < 0 || c.ToHour > 24 {
		return false, fmt.Errorf("time window: invalid hours %d..%d", c.FromHour, c.ToHour)
	}
	if c.FirstMessageToday && !in.Message.FirstToday {
		return false, nil
	}
	return timeutil.HourInRange(in.Message.LocalTime.Hour(), c.FromHour, c.ToHour), nil
}

// CalendarDay holds for a message sent on the given local month and day.
type CalendarDay struct {
	Month time.Month
	Day   int
}

// Met implements Condition.
func (c CalendarDay) Met(in Input) (bool, error) {
	if in.Message == nil {
		return false, nil
	}
	if c.Month < time.January || c.Month > time.December || c.Day < 1 || c.Day > 31 {
		return false, fmt.Errorf("calendar day: invalid date %d-%d", c.Month, c.Day)
	}
	local := in.Message.LocalTime
	return local.Month() == c.Month && local.Day() == c.Day, nil
}

// Weekend holds for a message sent on a local Saturday or Sunday.
type Weekend struct{}

// Met implements Condition.
func (Weekend) Met(in Input) (bool, error) {
	if in.Message == nil {
		return false, nil
	}
	day := in.Message.LocalTime.Weekday()
	return day == time.Saturday || day == time.Sunday, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE PREDICATES
// ══════════════════════════════════════════════════════════════════════════════

// MessagePredicate holds when Fn accepts the current message.
type MessagePredicate struct {
	Name string
	Fn   func(MessageContext) bool
}

// Met implements Condition.
func (c MessagePredicate) Met(in Input) (bool, error) {
	if c.Fn == nil {
		return false, fmt.Errorf("message predicate %q: nil function", c.Name)
	}
	if in.Message == nil {
		return false, nil
	}
	return c.Fn(*in.Message), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GLOBAL SUPERLATIVES
// ══════════════════════════════════════════════════════════════════════════════

// Record is a chat-wide superlative such as "longest message".
type Record struct {
	// Key is the stable storage key.
	Key string
	// Min is the smallest value worth submitting. Smaller values are never records.
	Min int64
	// Measure extracts the value of a message.
	Measure func(MessageContext) int64
}

// RecordHolder holds when the member set a new chat record with this message.
// Ties never take a record from its current holder.
type RecordHolder struct {
	Record Record
}

// Met implements Condition.
func (c RecordHolder) Met(in Input) (bool, error) {
	if c.Record.Key == "" || c.Record.Measure == nil {
		return false, fmt.Errorf("record holder: incomplete record %q", c.Record.Key)
	}
	return in.Records[c.Record.Key], nil
}

// Tracked exposes the record so the engine submits measurements for every
// message, even from members who already hold the achievement.
func (c RecordHolder) Tracked() Record {
	return c.Record
}

// recordTracker is implemented by conditions backed by a chat record.
type recordTracker interface {
	Tracked() Record
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITION
// ══════════════════════════════════════════════════════════════════════════════

// Func adapts a function to a Condition.
type Func func(in Input) (bool, error)

// Met implements Condition.
func (f Func) Met(in Input) (bool, error) {
	return f(in)
}

// All holds when every condition holds.
type All []Condition

// Met implements Condition.
func (a All) Met(in Input) (bool, error) {
	if len(a) == 0 {
		return false, errors.New("all: no conditions")
	}
	for _, c := range a {
		ok, err := c.Met(in)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
