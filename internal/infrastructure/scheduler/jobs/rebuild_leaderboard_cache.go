package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD CACHE JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardCacheName is the scheduler name of RebuildLeaderboardCacheJob.
const RebuildLeaderboardCacheName = "rebuild_leaderboard_cache"

// LeaderboardRebuilder reloads every chat's cached ranking from the store.
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// RebuildLeaderboardCacheJob repairs cache drift left by failed incremental
// updates and re-warms chats evicted by TTL.
type RebuildLeaderboardCacheJob struct {
	rebuilder LeaderboardRebuilder
	logger    *slog.Logger
}

// NewRebuildLeaderboardCacheJob creates the job.
func NewRebuildLeaderboardCacheJob(rebuilder LeaderboardRebuilder, log *slog.Logger) *RebuildLeaderboardCacheJob {
	if log == nil {
		log = slog.Default()
	}
	return &RebuildLeaderboardCacheJob{rebuilder: rebuilder, logger: log}
}

// Name returns the job name.
func (j *RebuildLeaderboardCacheJob) Name() string { return RebuildLeaderboardCacheName }

// Description returns a human-readable description.
func (j *RebuildLeaderboardCacheJob) Description() string {
	return "Reloads the cached top of every chat leaderboard from the database"
}

// Run executes the rebuild. Chats that fail are reported together; the rest
// are still rebuilt.
func (j *RebuildLeaderboardCacheJob) Run(ctx context.Context) error {
	n, err := j.rebuilder.Rebuild(ctx)
	j.logger.Info("leaderboard cache rebuilt", logger.Operation(j.Name()), slog.Int("chats", n))
	if err != nil {
		return fmt.Errorf("rebuild leaderboard cache: %w", err)
	}
	return nil
}
