package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const statsColumns = `
	user_id, chat_id, username, xp, level,
	messages_count, links_shared, thanks_received, thanks_given, stickers_sent, media_shared,
	current_streak, best_streak, last_active_date, messages_today, last_activity,
	created_at, updated_at`

// StatsRepository implements leveling.StatsRepository and leveling.StatsReader.
type StatsRepository struct {
	conn *Connection
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(conn *Connection) *StatsRepository {
	return &StatsRepository{conn: conn}
}

// GetOrCreateStats implements leveling.StatsRepository.
func (r *StatsRepository) GetOrCreateStats(ctx context.Context, key leveling.MemberKey) (leveling.UserChatStats, error) {
	var st leveling.UserChatStats
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := ensureStats(ctx, tx, key); err != nil {
			return err
		}
		var err error
		st, err = scanStats(tx.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_chat_stats WHERE user_id = $1 AND chat_id = $2`,
			key.UserID, key.ChatID))
		return err
	})
	if err != nil {
		return leveling.UserChatStats{}, classify("get or create stats", err)
	}
	return st, nil
}

// ApplyAtomicUpdate locks the member row, applies the delta and writes it
// back in one transaction. The applied_stat_updates mark is written in the
// same transaction; when it already exists the locked snapshot is returned
// without applying the delta again.
func (r *StatsRepository) ApplyAtomicUpdate(ctx context.Context, key leveling.MemberKey, delta leveling.StatsDelta) (leveling.UserChatStats, error) {
	if err := delta.Validate(); err != nil {
		return leveling.UserChatStats{}, err
	}

	var st leveling.UserChatStats
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := ensureStats(ctx, tx, key); err != nil {
			return err
		}

		var err error
		st, err = scanStats(tx.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_chat_stats WHERE user_id = $1 AND chat_id = $2 FOR UPDATE`,
			key.UserID, key.ChatID))
		if err != nil {
			return err
		}

		if delta.EventID != "" {
			tag, err := tx.Exec(ctx, `
				INSERT INTO applied_stat_updates (event_id, user_id, chat_id)
				VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING
			`, delta.EventID, key.UserID, key.ChatID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
		}

		if err := st.Apply(delta); err != nil {
			return err
		}
		st.UpdatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx, `
			UPDATE user_chat_stats SET
				username = $3,
				xp = $4,
				level = $5,
				messages_count = $6,
				links_shared = $7,
				thanks_received = $8,
				thanks_given = $9,
				stickers_sent = $10,
				media_shared = $11,
				current_streak = $12,
				best_streak = $13,
				last_active_date = $14,
				messages_today = $15,
				last_activity = $16,
				updated_at = $17
			WHERE user_id = $1 AND chat_id = $2
		`,
			key.UserID, key.ChatID,
			st.Username,
			st.XP,
			st.Level,
			st.MessagesCount,
			st.LinksShared,
			st.ThanksReceived,
			st.ThanksGiven,
			st.StickersSent,
			st.MediaShared,
			st.CurrentStreak,
			st.BestStreak,
			nullTime(st.LastActiveDate),
			st.MessagesToday,
			nullTime(st.LastActivity),
			st.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return leveling.UserChatStats{}, classify("apply stats update", err)
	}
	return st, nil
}

// PurgeAppliedBefore deletes applied-update marks older than cutoff.
func (r *StatsRepository) PurgeAppliedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM applied_stat_updates WHERE applied_at < $1`, cutoff)
	if err != nil {
		return 0, classify("purge applied stat updates", err)
	}
	return tag.RowsAffected(), nil
}

// GetStats implements leveling.StatsReader.
func (r *StatsRepository) GetStats(ctx context.Context, key leveling.MemberKey) (leveling.UserChatStats, error) {
	st, err := scanStats(r.conn.QueryRow(ctx, `SELECT `+statsColumns+` FROM user_chat_stats WHERE user_id = $1 AND chat_id = $2`,
		key.UserID, key.ChatID))
	if err != nil {
		if IsNoRows(err) {
			return leveling.UserChatStats{}, shared.ErrStatsNotFound
		}
		return leveling.UserChatStats{}, classify("get stats", err)
	}
	return st, nil
}

// GetLeaderboard implements leveling.StatsReader.
func (r *StatsRepository) GetLeaderboard(ctx context.Context, chatID int64, limit int) ([]leveling.UserChatStats, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.conn.Query(ctx, `
		SELECT `+statsColumns+`
		FROM user_chat_stats
		WHERE chat_id = $1
		ORDER BY xp DESC, user_id ASC
		LIMIT $2
	`, chatID, limit)
	if err != nil {
		return nil, classify("query leaderboard", err)
	}
	defer rows.Close()

	out := make([]leveling.UserChatStats, 0, limit)
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, classify("scan leaderboard row", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate leaderboard", err)
	}
	return out, nil
}

// FindByUsername implements leveling.StatsReader.
func (r *StatsRepository) FindByUsername(ctx context.Context, chatID int64, username string) (leveling.UserChatStats, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return leveling.UserChatStats{}, shared.ErrStatsNotFound
	}

	st, err := scanStats(r.conn.QueryRow(ctx, `
		SELECT `+statsColumns+`
		FROM user_chat_stats
		WHERE chat_id = $1 AND lower(username) = lower($2)
		ORDER BY updated_at DESC
		LIMIT 1
	`, chatID, username))
	if err != nil {
		if IsNoRows(err) {
			return leveling.UserChatStats{}, shared.ErrStatsNotFound
		}
		return leveling.UserChatStats{}, classify("find by username", err)
	}
	return st, nil
}

// Chats returns the ids of every chat with stats.
func (r *StatsRepository) Chats(ctx context.Context) ([]int64, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT chat_id FROM user_chat_stats ORDER BY chat_id`)
	if err != nil {
		return nil, classify("list chats", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan chat id", err)
		}
		out = append(out, id)
	}
	return out, classify("iterate chats", rows.Err())
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func ensureStats(ctx context.Context, q Querier, key leveling.MemberKey) error {
	_, err := q.Exec(ctx, `
		INSERT INTO user_chat_stats (user_id, chat_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, chat_id) DO NOTHING
	`, key.UserID, key.ChatID)
	return err
}

func scanStats(row pgx.Row) (leveling.UserChatStats, error) {
	var (
		st             leveling.UserChatStats
		lastActiveDate *time.Time
		lastActivity   *time.Time
	)

	err := row.Scan(
		&st.UserID,
		&st.ChatID,
		&st.Username,
		&st.XP,
		&st.Level,
		&st.MessagesCount,
		&st.LinksShared,
		&st.ThanksReceived,
		&st.ThanksGiven,
		&st.StickersSent,
		&st.MediaShared,
		&st.CurrentStreak,
		&st.BestStreak,
		&lastActiveDate,
		&st.MessagesToday,
		&lastActivity,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return leveling.UserChatStats{}, err
	}

	if lastActiveDate != nil {
		st.LastActiveDate = time.Date(lastActiveDate.Year(), lastActiveDate.Month(), lastActiveDate.Day(), 0, 0, 0, 0, time.UTC)
	}
	if lastActivity != nil {
		st.LastActivity = *lastActivity
	}
	return st, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
