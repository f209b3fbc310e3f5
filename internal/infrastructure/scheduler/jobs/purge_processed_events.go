// Package jobs contains the scheduled maintenance jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE PROCESSED EVENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// PurgeProcessedEventsName is the scheduler name of PurgeProcessedEventsJob.
const PurgeProcessedEventsName = "purge_processed_events"

// ClaimPurger deletes event claims whose retention has elapsed.
type ClaimPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// AppliedUpdatePurger deletes the per-member applied-event marks that make
// stats updates idempotent.
type AppliedUpdatePurger interface {
	PurgeAppliedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeProcessedEventsConfig configures the job.
type PurgeProcessedEventsConfig struct {
	// Claims is nil for stores with native expiry (Redis).
	Claims ClaimPurger

	// Applied is nil when the stats store keeps no marks.
	Applied AppliedUpdatePurger

	// Retention returns the current dedup retention. Marks are kept at least
	// as long as claims so a redelivered event cannot be applied twice.
	Retention func() time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// PurgeProcessedEventsJob keeps the dedup tables bounded.
type PurgeProcessedEventsJob struct {
	claims    ClaimPurger
	applied   AppliedUpdatePurger
	retention func() time.Duration
	now       func() time.Time
	logger    *slog.Logger

	purged atomic.Int64
}

// NewPurgeProcessedEventsJob creates the job.
func NewPurgeProcessedEventsJob(cfg PurgeProcessedEventsConfig) *PurgeProcessedEventsJob {
	if cfg.Retention == nil {
		cfg.Retention = func() time.Duration { return 48 * time.Hour }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PurgeProcessedEventsJob{
		claims:    cfg.Claims,
		applied:   cfg.Applied,
		retention: cfg.Retention,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
}

// Name returns the job name.
func (j *PurgeProcessedEventsJob) Name() string { return PurgeProcessedEventsName }

// Description returns a human-readable description.
func (j *PurgeProcessedEventsJob) Description() string {
	return "Deletes event claims and applied-update marks older than the dedup retention"
}

// Run executes the purge. Both tables are attempted even when one fails.
func (j *PurgeProcessedEventsJob) Run(ctx context.Context) error {
	var errs []error
	var claims, marks int64

	if j.claims != nil {
		n, err := j.claims.PurgeExpired(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge processed events: %w", err))
		}
		claims = n
	}

	if j.applied != nil {
		retention := j.retention()
		if retention > 0 {
			n, err := j.applied.PurgeAppliedBefore(ctx, j.now().Add(-retention))
			if err != nil {
				errs = append(errs, fmt.Errorf("purge applied stat updates: %w", err))
			}
			marks = n
		}
	}

	j.purged.Add(claims + marks)
	if claims+marks > 0 {
		j.logger.Info("purged processed events",
			logger.Operation(j.Name()),
			slog.Int64("claims", claims),
			slog.Int64("applied_marks", marks),
		)
	}
	return errors.Join(errs...)
}

// TotalPurged returns the number of rows removed since start.
func (j *PurgeProcessedEventsJob) TotalPurged() int64 {
	return j.purged.Load()
}
