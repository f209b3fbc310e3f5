package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/persistence/memory"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

type fakePurger struct {
	n   int64
	err error
}

func (p fakePurger) PurgeExpired(context.Context) (int64, error) { return p.n, p.err }

type fakeAppliedPurger struct {
	n      int64
	err    error
	cutoff time.Time
}

func (p *fakeAppliedPurger) PurgeAppliedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.n, p.err
}

func TestPurgeProcessedEventsJob(t *testing.T) {
	job := NewPurgeProcessedEventsJob(PurgeProcessedEventsConfig{Claims: fakePurger{n: 3}, Logger: logger.Discard()})
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int64(6), job.TotalPurged())
	assert.Equal(t, "purge_processed_events", job.Name())

	failing := NewPurgeProcessedEventsJob(PurgeProcessedEventsConfig{Claims: fakePurger{err: errors.New("db down")}, Logger: logger.Discard()})
	assert.ErrorContains(t, failing.Run(context.Background()), "db down")
}

func TestPurgeProcessedEventsJob_AppliedMarksUseRetention(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	applied := &fakeAppliedPurger{n: 2}
	job := NewPurgeProcessedEventsJob(PurgeProcessedEventsConfig{
		Applied:   applied,
		Retention: func() time.Duration { return 24 * time.Hour },
		Now:       func() time.Time { return now },
		Logger:    logger.Discard(),
	})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), applied.cutoff)
	assert.Equal(t, int64(2), job.TotalPurged())
}

func TestPurgeProcessedEventsJob_OneFailureDoesNotSkipTheOther(t *testing.T) {
	applied := &fakeAppliedPurger{n: 1}
	job := NewPurgeProcessedEventsJob(PurgeProcessedEventsConfig{
		Claims:  fakePurger{err: errors.New("claims locked")},
		Applied: applied,
		Logger:  logger.Discard(),
	})

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "claims locked")
	assert.False(t, applied.cutoff.IsZero())
	assert.Equal(t, int64(1), job.TotalPurged())
}

func TestPurgeProcessedEventsJob_MemoryStore(t *testing.T) {
	stats := memory.NewStatsStore()
	job := NewPurgeProcessedEventsJob(PurgeProcessedEventsConfig{
		Claims:  memory.NewClaimStore(),
		Applied: stats,
		Logger:  logger.Discard(),
	})
	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, job.TotalPurged())
}

type fakeRebuilder struct {
	n   int
	err error
}

func (r fakeRebuilder) Rebuild(context.Context) (int, error) { return r.n, r.err }

func TestRebuildLeaderboardCacheJob(t *testing.T) {
	assert.NoError(t, NewRebuildLeaderboardCacheJob(fakeRebuilder{n: 2}, logger.Discard()).Run(context.Background()))

	err := NewRebuildLeaderboardCacheJob(fakeRebuilder{n: 1, err: errors.New("chat -1 failed")}, logger.Discard()).Run(context.Background())
	assert.ErrorContains(t, err, "chat -1 failed")
}
