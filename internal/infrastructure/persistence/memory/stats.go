// Package memory provides in-process implementations of the leveling and
// achievement ports. They back tests and single-instance deployments that run
// without Postgres and Redis.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// Clock returns the current time.
type Clock func() time.Time

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// StatsStore keeps member stats in a map guarded by one mutex, which makes
// every ApplyAtomicUpdate a serialized read-modify-write.
type StatsStore struct {
	mu      sync.Mutex
	stats   map[leveling.MemberKey]leveling.UserChatStats
	applied map[appliedKey]time.Time
	now     Clock

	// failErr is returned by the next failLeft write calls. Tests use it
	// to simulate transient storage failures.
	failErr  error
	failLeft int
}

// appliedKey marks an event as applied to one member.
type appliedKey struct {
	eventID string
	member  leveling.MemberKey
}

// NewStatsStore creates an empty store.
func NewStatsStore() *StatsStore {
	return &StatsStore{
		stats:   make(map[leveling.MemberKey]leveling.UserChatStats),
		applied: make(map[appliedKey]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for CreatedAt and UpdatedAt.
func (s *StatsStore) WithClock(now Clock) *StatsStore {
	s.now = now
	return s
}

// FailNext makes the next n ApplyAtomicUpdate calls fail with err before
// touching any state.
func (s *StatsStore) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLeft, s.failErr = n, err
}

// GetOrCreateStats implements leveling.StatsRepository.
func (s *StatsStore) GetOrCreateStats(ctx context.Context, key leveling.MemberKey) (leveling.UserChatStats, error) {
	if err := ctxErr(ctx); err != nil {
		return leveling.UserChatStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreate(key), nil
}

func (s *StatsStore) getOrCreate(key leveling.MemberKey) leveling.UserChatStats {
	st, ok := s.stats[key]
	if !ok {
		st = leveling.NewUserChatStats(key, s.now())
		s.stats[key] = st
	}
	return st
}

// ApplyAtomicUpdate implements leveling.StatsRepository.
func (s *StatsStore) ApplyAtomicUpdate(ctx context.Context, key leveling.MemberKey, delta leveling.StatsDelta) (leveling.UserChatStats, error) {
	if err := ctxErr(ctx); err != nil {
		return leveling.UserChatStats{}, err
	}
	if err := delta.Validate(); err != nil {
		return leveling.UserChatStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failLeft > 0 {
		s.failLeft--
		return leveling.UserChatStats{}, s.failErr
	}

	st := s.getOrCreate(key)
	mark := appliedKey{eventID: delta.EventID, member: key}
	if delta.EventID != "" {
		if _, done := s.applied[mark]; done {
			return st, nil
		}
	}

	if err := st.Apply(delta); err != nil {
		return leveling.UserChatStats{}, err
	}
	now := s.now()
	st.UpdatedAt = now
	s.stats[key] = st
	if delta.EventID != "" {
		s.applied[mark] = now
	}
	return st, nil
}

// PurgeAppliedBefore forgets applied-event marks recorded before cutoff.
func (s *StatsStore) PurgeAppliedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, at := range s.applied {
		if at.Before(cutoff) {
			delete(s.applied, k)
			n++
		}
	}
	return n, nil
}

// GetStats implements leveling.StatsReader.
func (s *StatsStore) GetStats(ctx context.Context, key leveling.MemberKey) (leveling.UserChatStats, error) {
	if err := ctxErr(ctx); err != nil {
		return leveling.UserChatStats{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[key]
	if !ok {
		return leveling.UserChatStats{}, shared.ErrStatsNotFound
	}
	return st, nil
}

// GetLeaderboard implements leveling.StatsReader.
func (s *StatsStore) GetLeaderboard(ctx context.Context, chatID int64, limit int) ([]leveling.UserChatStats, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]leveling.UserChatStats, 0)
	for key, st := range s.stats {
		if key.ChatID == chatID {
			out = append(out, st)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindByUsername implements leveling.StatsReader.
func (s *StatsStore) FindByUsername(ctx context.Context, chatID int64, username string) (leveling.UserChatStats, error) {
	if err := ctxErr(ctx); err != nil {
		return leveling.UserChatStats{}, err
	}
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return leveling.UserChatStats{}, shared.ErrStatsNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, st := range s.stats {
		if key.ChatID == chatID && strings.EqualFold(st.Username, username) {
			return st, nil
		}
	}
	return leveling.UserChatStats{}, shared.ErrStatsNotFound
}

// Chats returns the ids of every chat with stats.
func (s *StatsStore) Chats(ctx context.Context) ([]int64, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]struct{})
	out := make([]int64, 0)
	for key := range s.stats {
		if _, ok := seen[key.ChatID]; !ok {
			seen[key.ChatID] = struct{}{}
			out = append(out, key.ChatID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
