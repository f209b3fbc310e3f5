package http

import (
	"context"
	"net/http"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, r, http.StatusOK, status)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVELING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/chats/{chat_id}/leaderboard?limit=N
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboardHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	chatID, err := pathInt64(r, "chat_id")
	if err != nil {
		s.writeQueryError(w, r, "get_leaderboard", err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeQueryError(w, r, "get_leaderboard", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.deps.GetLeaderboardHandler.Handle(ctx, query.GetLeaderboardQuery{ChatID: chatID, Limit: limit})
	if err != nil {
		s.writeQueryError(w, r, "get_leaderboard", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetStats handles GET /api/v1/chats/{chat_id}/users/{user_id}/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStatsHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Stats handler not configured")
		return
	}

	q, err := memberQuery(r)
	if err != nil {
		s.writeQueryError(w, r, "get_stats", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.deps.GetStatsHandler.Handle(ctx, q)
	if err != nil {
		s.writeQueryError(w, r, "get_stats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetAchievements handles GET /api/v1/chats/{chat_id}/users/{user_id}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetAchievementsHandler == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Achievements handler not configured")
		return
	}

	q, err := memberQuery(r)
	if err != nil {
		s.writeQueryError(w, r, "get_achievements", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.deps.GetAchievementsHandler.Handle(ctx, q)
	if err != nil {
		s.writeQueryError(w, r, "get_achievements", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func memberQuery(r *http.Request) (query.GetStatsQuery, error) {
	chatID, err := pathInt64(r, "chat_id")
	if err != nil {
		return query.GetStatsQuery{}, err
	}
	userID, err := pathInt64(r, "user_id")
	if err != nil {
		return query.GetStatsQuery{}, err
	}
	return query.GetStatsQuery{UserID: userID, ChatID: chatID}, nil
}
