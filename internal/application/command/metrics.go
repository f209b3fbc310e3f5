package command

import "time"

// Outcome labels a finished Process call.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomePartial   Outcome = "partial"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
)

// Metrics receives processing measurements.
type Metrics interface {
	EventProcessed(outcome Outcome, took time.Duration)
	XPGranted(granted, dropped int64)
	LevelUp(level int)
	AchievementUnlocked(achievementID string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) EventProcessed(Outcome, time.Duration) {}
func (NopMetrics) XPGranted(int64, int64)                {}
func (NopMetrics) LevelUp(int)                           {}
func (NopMetrics) AchievementUnlocked(string)            {}
