// Package achievement contains the achievement catalog, the pluggable
// condition framework and the engine that performs idempotent unlocks.
//
// A Definition pairs catalog metadata with a Condition. Conditions come in
// four shapes:
//
//   - per-user monotonic counters (CounterAtLeast, StreakAtLeast)
//   - global superlative trackers (RecordHolder)
//   - calendar and time-of-day predicates (TimeWindow, CalendarDay, Weekend)
//   - message-scoped predicates (MessagePredicate)
//
// The Engine evaluates every definition that a member has not unlocked yet
// and persists unlocks through an insert-if-absent store, so concurrent
// evaluations never unlock the same achievement twice.
package achievement

import (
	"fmt"
	"strings"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// Category groups definitions in the catalog.
type Category string

const (
	CategoryActivity Category = "activity"
	CategoryStreak   Category = "streak"
	CategoryTime     Category = "time"
	CategoryLinks    Category = "links"
	CategoryMedia    Category = "media"
	CategorySocial   Category = "social"
	CategoryRare     Category = "rare"
	CategoryLevel    Category = "level"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryActivity,
		CategoryStreak,
		CategoryTime,
		CategoryLinks,
		CategoryMedia,
		CategorySocial,
		CategoryRare,
		CategoryLevel,
	}
}

// Definition is an immutable catalog entry.
type Definition struct {
	// ID is the stable storage key.
	ID string
	// Title is the display name.
	Title string
	// Description explains how to earn it.
	Description string
	// Emoji decorates announcements.
	Emoji string
	// Category groups the definition.
	Category Category
	// Condition decides whether a member has earned it.
	Condition Condition
}

// Validate checks the definition can be registered.
func (d Definition) Validate() error {
	var problems []string
	if strings.TrimSpace(d.ID) == "" {
		problems = append(problems, "id is empty")
	}
	if strings.TrimSpace(d.Title) == "" {
		problems = append(problems, "title is empty")
	}
	if d.Condition == nil {
		problems = append(problems, "condition is nil")
	}
	if len(problems) > 0 {
		return shared.WrapError("achievement", "Register", shared.ErrInvalidInput,
			fmt.Sprintf("invalid definition %q", d.ID), fmt.Errorf("%s", strings.Join(problems, ", ")))
	}
	return nil
}

// UserAchievement is the unlock record of one definition for one member.
type UserAchievement struct {
	UserID        int64
	ChatID        int64
	AchievementID string
	UnlockedAt    time.Time
}
