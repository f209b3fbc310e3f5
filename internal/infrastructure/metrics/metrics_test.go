package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/command"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.EventProcessed(command.OutcomeProcessed, 3*time.Millisecond)
	r.EventProcessed(command.OutcomeDuplicate, time.Millisecond)
	r.EventProcessed(command.OutcomeProcessed, time.Millisecond)
	r.XPGranted(4, 0)
	r.XPGranted(2, 3)
	r.LevelUp(2)
	r.LevelUp(73)
	r.AchievementUnlocked("first_message")
	r.NotificationFailed("level_up")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsProcessed.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsProcessed.WithLabelValues("duplicate")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.xpGranted))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.xpDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.levelUps.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.levelUps.WithLabelValues("50+")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.achievementsUnlocked.WithLabelValues("first_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notificationFailures.WithLabelValues("level_up")))
}

func TestRecorder_JobCompleted(t *testing.T) {
	r := New()
	r.JobCompleted("purge_processed_events", 20*time.Millisecond, nil)
	r.JobCompleted("purge_processed_events", time.Second, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("purge_processed_events", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("purge_processed_events", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDuration))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.XPGranted(5, 0)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "leveling_xp_granted_total 5")
}
