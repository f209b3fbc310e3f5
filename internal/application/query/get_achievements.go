package query

import (
	"context"
	"fmt"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET UNLOCKED ACHIEVEMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetUnlockedAchievementsQuery identifies a member.
type GetUnlockedAchievementsQuery = GetStatsQuery

// AchievementDTO is an unlocked achievement joined with its definition.
type AchievementDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Emoji       string    `json:"emoji,omitempty"`
	Category    string    `json:"category,omitempty"`
	UnlockedAt  time.Time `json:"unlocked_at"`
}

// GetUnlockedAchievementsResult lists unlocks in unlock order.
type GetUnlockedAchievementsResult struct {
	UserID       int64            `json:"user_id"`
	ChatID       int64            `json:"chat_id"`
	Achievements []AchievementDTO `json:"achievements"`
	Total        int              `json:"total"`
	Available    int              `json:"available"`
}

// GetUnlockedAchievementsHandler handles the query.
type GetUnlockedAchievementsHandler struct {
	store   achievement.Store
	catalog *achievement.Catalog
}

// NewGetUnlockedAchievementsHandler creates the handler.
func NewGetUnlockedAchievementsHandler(store achievement.Store, catalog *achievement.Catalog) *GetUnlockedAchievementsHandler {
	if catalog == nil {
		catalog = achievement.DefaultCatalog()
	}
	return &GetUnlockedAchievementsHandler{store: store, catalog: catalog}
}

// Handle executes the query. Unlocks whose definition was retired from the
// catalog are still listed, titled by their id.
func (h *GetUnlockedAchievementsHandler) Handle(ctx context.Context, q GetUnlockedAchievementsQuery) (*GetUnlockedAchievementsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_unlocked_achievements: validation failed: %w", err)
	}

	list, err := h.store.ListUnlocked(ctx, leveling.MemberKey{UserID: q.UserID, ChatID: q.ChatID})
	if err != nil {
		return nil, fmt.Errorf("get_unlocked_achievements: %w", err)
	}

	out := make([]AchievementDTO, 0, len(list))
	for _, ua := range list {
		dto := AchievementDTO{ID: ua.AchievementID, Title: ua.AchievementID, UnlockedAt: ua.UnlockedAt}
		if def, ok := h.catalog.Get(ua.AchievementID); ok {
			dto.Title = def.Title
			dto.Description = def.Description
			dto.Emoji = def.Emoji
			dto.Category = string(def.Category)
		}
		out = append(out, dto)
	}

	return &GetUnlockedAchievementsResult{
		UserID:       q.UserID,
		ChatID:       q.ChatID,
		Achievements: out,
		Total:        len(out),
		Available:    h.catalog.Len(),
	}, nil
}
