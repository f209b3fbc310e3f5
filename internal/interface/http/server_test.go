package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/query"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/persistence/memory"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/interface/http/handlers"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

const chat int64 = -100

type staticRules struct{ r *leveling.Rules }

func (s staticRules) Rules() *leveling.Rules { return s.r }

func newTestServer(t *testing.T) (*Server, *memory.StatsStore) {
	t.Helper()
	stats := memory.NewStatsStore()
	achievements := memory.NewAchievementStore()
	ctx := context.Background()
	at := time.Date(2024, 5, 6, 6, 30, 0, 0, time.UTC)

	for _, m := range []struct {
		id   int64
		name string
		xp   int64
	}{{1, "alice", 10}, {2, "bob", 70}} {
		_, err := stats.ApplyAtomicUpdate(ctx, leveling.MemberKey{UserID: m.id, ChatID: chat}, leveling.StatsDelta{
			XP:       m.xp,
			Counters: leveling.CounterDeltas{Messages: 1},
			Username: m.name,
			At:       at,
			Curve:    leveling.DefaultLevelCurve(),
		})
		require.NoError(t, err)
	}
	_, err := achievements.InsertAchievementIfAbsent(ctx, leveling.MemberKey{UserID: 2, ChatID: chat}, "early_bird", at)
	require.NoError(t, err)

	rules := staticRules{leveling.MustRules(leveling.DefaultRules())}
	s := NewServer(DefaultConfig(), Dependencies{
		GetLeaderboardHandler:  query.NewGetLeaderboardHandler(stats, nil, logger.Discard()),
		GetStatsHandler:        query.NewGetStatsHandler(stats, rules),
		GetAchievementsHandler: query.NewGetUnlockedAchievementsHandler(achievements, achievement.DefaultCatalog()),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		Logger: logger.Discard(),
	})
	return s, stats
}

func do(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body JSONResponse
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestServer_Leaderboard(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := do(t, s, "/api/v1/chats/-100/leaderboard?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	data := body.Data.(map[string]any)
	entries := data["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].(map[string]any)["username"])
}

func TestServer_Stats(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := do(t, s, "/api/v1/chats/-100/users/1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]any)
	assert.Equal(t, float64(10), data["xp"])
	assert.Equal(t, "alice", data["username"])

	rec, body = do(t, s, "/api/v1/chats/-100/users/42/stats")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestServer_Achievements(t *testing.T) {
	s, _ := newTestServer(t)

	rec, body := do(t, s, "/api/v1/chats/-100/users/2/achievements")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body.Data.(map[string]any)
	list := data["achievements"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Early Bird", list[0].(map[string]any)["title"])
}

func TestServer_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{
		"/api/v1/chats/abc/leaderboard",
		"/api/v1/chats/0/leaderboard",
		"/api/v1/chats/-100/leaderboard?limit=ten",
		"/api/v1/chats/-100/leaderboard?limit=-1",
		"/api/v1/chats/-100/users/x/stats",
	} {
		rec, body := do(t, s, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "invalid_request", body.Error.Code, path)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec, _ := do(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	hc := handlers.NewCompositeHealthChecker("test")
	hc.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	s.deps.HealthChecker = hc
	rec, _ = do(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	s, _ := newTestServer(t)
	s.router.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec, body := do(t, s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", body.Error.Code)
}

func TestServer_NotConfigured(t *testing.T) {
	s := NewServer(Config{}, Dependencies{Logger: logger.Discard()})

	rec, _ := do(t, s, "/api/v1/chats/-100/leaderboard")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec, _ = do(t, s, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
