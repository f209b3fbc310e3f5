package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

type grant struct {
	id string
	at time.Time
	xp int64
}

// Limiter is a rolling-window XP limiter. The window is anchored on the
// event timestamp passed to Grant, not on the wall clock.
type Limiter struct {
	mu     sync.Mutex
	grants map[leveling.MemberKey][]grant

	failErr error
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{grants: make(map[leveling.MemberKey][]grant)}
}

// SetError makes every Grant fail with err until cleared with nil.
func (l *Limiter) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

// Grant implements leveling.XPLimiter.
func (l *Limiter) Grant(ctx context.Context, key leveling.MemberKey, grantID string, requested int64, at time.Time, policy leveling.RateLimitPolicy) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	if requested <= 0 {
		return 0, nil
	}
	if !policy.Enabled() {
		return requested, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failErr != nil {
		return 0, l.failErr
	}

	cutoff := at.Add(-policy.Window)
	kept := l.grants[key][:0]
	var used int64
	for _, g := range l.grants[key] {
		if g.at.After(cutoff) {
			kept = append(kept, g)
			used += g.xp
		}
	}

	allowed := policy.MaxXP - used
	if allowed < 0 {
		allowed = 0
	}
	if requested < allowed {
		allowed = requested
	}
	if allowed > 0 {
		kept = append(kept, grant{id: grantID, at: at, xp: allowed})
	}
	if len(kept) == 0 {
		delete(l.grants, key)
	} else {
		l.grants[key] = kept
	}
	return allowed, nil
}

// Refund implements leveling.XPLimiter.
func (l *Limiter) Refund(ctx context.Context, key leveling.MemberKey, grantID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failErr != nil {
		return l.failErr
	}

	kept := l.grants[key][:0]
	for _, g := range l.grants[key] {
		if g.id != grantID {
			kept = append(kept, g)
		}
	}
	if len(kept) == 0 {
		delete(l.grants, key)
	} else {
		l.grants[key] = kept
	}
	return nil
}
