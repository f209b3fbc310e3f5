package leveling

import (
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER CHAT STATS
// ══════════════════════════════════════════════════════════════════════════════

// UserChatStats is the progression state of one user in one chat.
// XP and every counter only ever increase; Level is derived from XP.
type UserChatStats struct {
	UserID   int64
	ChatID   int64
	Username string

	// XP is the total experience. Never negative, never decreasing.
	XP int64

	// Level is the cached value of LevelCurve.Level(XP).
	Level int

	MessagesCount  int64
	LinksShared    int64
	ThanksReceived int64
	ThanksGiven    int64
	StickersSent   int64
	MediaShared    int64

	// CurrentStreak is the number of consecutive local calendar days with
	// at least one message, ending at LastActiveDate.
	CurrentStreak int

	// BestStreak is the longest streak ever reached.
	BestStreak int

	// LastActiveDate is the local calendar date of the latest message as UTC midnight.
	LastActiveDate time.Time

	// MessagesToday counts messages sent on LastActiveDate.
	MessagesToday int

	// LastActivity is the timestamp of the latest activity of any kind.
	LastActivity time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserChatStats returns zero-valued stats for a member at level 1.
func NewUserChatStats(key MemberKey, now time.Time) UserChatStats {
	return UserChatStats{
		UserID:    key.UserID,
		ChatID:    key.ChatID,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the (user, chat) key.
func (s UserChatStats) Key() MemberKey {
	return MemberKey{UserID: s.UserID, ChatID: s.ChatID}
}

// Counter returns a named counter value. It is the lookup used by counter
// based achievement conditions.
func (s UserChatStats) Counter(c Counter) int64 {
	switch c {
	case CounterMessages:
		return s.MessagesCount
	case CounterLinks:
		return s.LinksShared
	case CounterThanksReceived:
		return s.ThanksReceived
	case CounterThanksGiven:
		return s.ThanksGiven
	case CounterStickers:
		return s.StickersSent
	case CounterMedia:
		return s.MediaShared
	case CounterXP:
		return s.XP
	case CounterLevel:
		return int64(s.Level)
	case CounterStreak:
		return int64(s.CurrentStreak)
	case CounterBestStreak:
		return int64(s.BestStreak)
	default:
		return 0
	}
}

// Counter names a monotonic per-user statistic.
type Counter string

const (
	CounterMessages       Counter = "messages_count"
	CounterLinks          Counter = "links_shared"
	CounterThanksReceived Counter = "thanks_received"
	CounterThanksGiven    Counter = "thanks_given"
	CounterStickers       Counter = "stickers_sent"
	CounterMedia          Counter = "media_shared"
	CounterXP             Counter = "xp"
	CounterLevel          Counter = "level"
	CounterStreak         Counter = "current_streak"
	CounterBestStreak     Counter = "best_streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE RULE
// ══════════════════════════════════════════════════════════════════════════════

// StatsDelta is one atomic change to a member's stats.
type StatsDelta struct {
	// EventID makes the update idempotent per member: a store that already
	// applied a delta with this id returns the current snapshot unchanged.
	// Empty disables the check.
	EventID string

	// XP is the already rate-limited XP to add.
	XP int64

	// Counters are the raw counter increments.
	Counters CounterDeltas

	// Username replaces the stored handle when non-empty.
	Username string

	// At is the activity timestamp in the chat's local timezone.
	At time.Time

	// Curve recomputes the cached level.
	Curve LevelCurve
}

// Validate rejects deltas that would decrease stats.
func (d StatsDelta) Validate() error {
	if d.XP < 0 || d.Counters.hasNegative() {
		return shared.NewDomainError("leveling", "ApplyDelta", shared.ErrNegativeValue, "stats delta must not be negative")
	}
	return nil
}

// Apply mutates the stats with the delta. Adapters call it inside their
// atomic read-modify-write so the update rule lives in one place.
func (s *UserChatStats) Apply(d StatsDelta) error {
	if err := d.Validate(); err != nil {
		return err
	}

	s.XP += d.XP
	s.Level = d.Curve.Level(s.XP)

	s.MessagesCount += d.Counters.Messages
	s.LinksShared += d.Counters.Links
	s.ThanksReceived += d.Counters.ThanksReceived
	s.ThanksGiven += d.Counters.ThanksGiven
	s.StickersSent += d.Counters.Stickers
	s.MediaShared += d.Counters.Media

	if d.Username != "" {
		s.Username = d.Username
	}

	if d.Counters.Messages > 0 && !d.At.IsZero() {
		s.recordActiveDay(timeutil.DateOf(d.At), int(d.Counters.Messages))
	}

	if d.At.After(s.LastActivity) {
		s.LastActivity = d.At
	}
	return nil
}

// recordActiveDay advances the daily counter and the consecutive-day streak.
// A message dated before LastActiveDate (late delivery) changes neither.
func (s *UserChatStats) recordActiveDay(day time.Time, messages int) {
	if s.LastActiveDate.IsZero() {
		s.LastActiveDate = day
		s.CurrentStreak = 1
		s.MessagesToday = messages
	} else {
		switch diff := timeutil.DaysBetween(s.LastActiveDate, day); {
		case diff == 0:
			s.MessagesToday += messages
		case diff == 1:
			s.LastActiveDate = day
			s.CurrentStreak++
			s.MessagesToday = messages
		case diff > 1:
			s.LastActiveDate = day
			s.CurrentStreak = 1
			s.MessagesToday = messages
		}
	}

	if s.CurrentStreak > s.BestStreak {
		s.BestStreak = s.CurrentStreak
	}
}
