package postgres

import (
	"context"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Store and achievement.RecordStore.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// HasAchievement implements achievement.Store.
func (r *AchievementRepository) HasAchievement(ctx context.Context, key leveling.MemberKey, achievementID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_achievements
			WHERE user_id = $1 AND chat_id = $2 AND achievement_id = $3
		)
	`, key.UserID, key.ChatID, achievementID).Scan(&exists)
	if err != nil {
		return false, classify("check achievement", err)
	}
	return exists, nil
}

// InsertAchievementIfAbsent implements achievement.Store. The primary key
// makes concurrent inserts of the same unlock collapse into one row.
func (r *AchievementRepository) InsertAchievementIfAbsent(ctx context.Context, key leveling.MemberKey, achievementID string, at time.Time) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO user_achievements (user_id, chat_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, chat_id, achievement_id) DO NOTHING
	`, key.UserID, key.ChatID, achievementID, at)
	if err != nil {
		return false, classify("insert achievement", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnlocked implements achievement.Store.
func (r *AchievementRepository) ListUnlocked(ctx context.Context, key leveling.MemberKey) ([]achievement.UserAchievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT achievement_id, unlocked_at
		FROM user_achievements
		WHERE user_id = $1 AND chat_id = $2
		ORDER BY unlocked_at, achievement_id
	`, key.UserID, key.ChatID)
	if err != nil {
		return nil, classify("list achievements", err)
	}
	defer rows.Close()

	var out []achievement.UserAchievement
	for rows.Next() {
		ua := achievement.UserAchievement{UserID: key.UserID, ChatID: key.ChatID}
		if err := rows.Scan(&ua.AchievementID, &ua.UnlockedAt); err != nil {
			return nil, classify("scan achievement", err)
		}
		out = append(out, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate achievements", err)
	}
	return out, nil
}

// SubmitRecord implements achievement.RecordStore. The upsert only replaces
// the holder when the new value is strictly greater, so ties keep the
// earliest holder.
func (r *AchievementRepository) SubmitRecord(ctx context.Context, chatID int64, recordKey string, userID int64, value int64, at time.Time) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO chat_records (chat_id, record_key, user_id, value, set_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chat_id, record_key) DO UPDATE
		SET user_id = EXCLUDED.user_id, value = EXCLUDED.value, set_at = EXCLUDED.set_at
		WHERE chat_records.value < EXCLUDED.value
	`, chatID, recordKey, userID, value, at)
	if err != nil {
		return false, classify("submit record", err)
	}
	return tag.RowsAffected() == 1, nil
}
