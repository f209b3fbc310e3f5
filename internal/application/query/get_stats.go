package query

import (
	"context"
	"fmt"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetStatsQuery identifies a member.
type GetStatsQuery struct {
	UserID int64
	ChatID int64
}

// Validate checks the query.
func (q GetStatsQuery) Validate() error {
	if q.UserID == 0 {
		return shared.ErrInvalidUserID
	}
	if q.ChatID == 0 {
		return shared.ErrInvalidChatID
	}
	return nil
}

// StatsDTO is a member's progression.
type StatsDTO struct {
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username,omitempty"`

	XP            int64 `json:"xp"`
	Level         int   `json:"level"`
	NextLevelXP   int64 `json:"next_level_xp"`
	XPToNextLevel int64 `json:"xp_to_next_level"`

	MessagesCount  int64 `json:"messages_count"`
	LinksShared    int64 `json:"links_shared"`
	ThanksReceived int64 `json:"thanks_received"`
	ThanksGiven    int64 `json:"thanks_given"`
	StickersSent   int64 `json:"stickers_sent"`
	MediaShared    int64 `json:"media_shared"`

	CurrentStreak int        `json:"current_streak"`
	BestStreak    int        `json:"best_streak"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

// CurveSource provides the level curve used for progress.
type CurveSource interface {
	Rules() *leveling.Rules
}

// GetStatsHandler handles stats queries.
type GetStatsHandler struct {
	reader leveling.StatsReader
	rules  CurveSource
}

// NewGetStatsHandler creates the handler.
func NewGetStatsHandler(reader leveling.StatsReader, rules CurveSource) *GetStatsHandler {
	return &GetStatsHandler{reader: reader, rules: rules}
}

// Handle executes the query. Unknown members return shared.ErrStatsNotFound.
func (h *GetStatsHandler) Handle(ctx context.Context, q GetStatsQuery) (*StatsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_stats: validation failed: %w", err)
	}

	st, err := h.reader.GetStats(ctx, leveling.MemberKey{UserID: q.UserID, ChatID: q.ChatID})
	if err != nil {
		return nil, fmt.Errorf("get_stats: %w", err)
	}

	progress := h.rules.Rules().Curve.Progress(st.XP)
	dto := &StatsDTO{
		UserID:         st.UserID,
		ChatID:         st.ChatID,
		Username:       st.Username,
		XP:             st.XP,
		Level:          st.Level,
		NextLevelXP:    progress.NextLevelXP,
		XPToNextLevel:  progress.XPToNextLevel,
		MessagesCount:  st.MessagesCount,
		LinksShared:    st.LinksShared,
		ThanksReceived: st.ThanksReceived,
		ThanksGiven:    st.ThanksGiven,
		StickersSent:   st.StickersSent,
		MediaShared:    st.MediaShared,
		CurrentStreak:  st.CurrentStreak,
		BestStreak:     st.BestStreak,
	}
	if !st.LastActivity.IsZero() {
		at := st.LastActivity
		dto.LastActivity = &at
	}
	return dto, nil
}
