package achievement

import (
	"context"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

// Store persists unlock records.
type Store interface {
	// HasAchievement reports whether the member unlocked the achievement.
	HasAchievement(ctx context.Context, key leveling.MemberKey, achievementID string) (bool, error)

	// InsertAchievementIfAbsent stores the unlock unless it already exists.
	// It returns true only when this call created the record.
	InsertAchievementIfAbsent(ctx context.Context, key leveling.MemberKey, achievementID string, at time.Time) (bool, error)

	// ListUnlocked returns every unlock of the member ordered by unlock time.
	ListUnlocked(ctx context.Context, key leveling.MemberKey) ([]UserAchievement, error)
}

// RecordStore tracks chat-wide superlatives.
type RecordStore interface {
	// SubmitRecord offers a value for the chat record. It returns true when the
	// value strictly exceeds the stored record (or no record exists) and the
	// user now holds it. Equal values leave the incumbent in place.
	SubmitRecord(ctx context.Context, chatID int64, recordKey string, userID int64, value int64, at time.Time) (bool, error)
}
