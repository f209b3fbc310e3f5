package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

type recordKey struct {
	chatID int64
	key    string
}

type record struct {
	userID int64
	value  int64
	at     time.Time
}

// AchievementStore implements achievement.Store and achievement.RecordStore.
type AchievementStore struct {
	mu       sync.Mutex
	unlocked map[leveling.MemberKey]map[string]time.Time
	records  map[recordKey]record

	insertErr error
}

// NewAchievementStore creates an empty store.
func NewAchievementStore() *AchievementStore {
	return &AchievementStore{
		unlocked: make(map[leveling.MemberKey]map[string]time.Time),
		records:  make(map[recordKey]record),
	}
}

// SetInsertError makes every insert fail with err until cleared with nil.
func (s *AchievementStore) SetInsertError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertErr = err
}

// HasAchievement implements achievement.Store.
func (s *AchievementStore) HasAchievement(ctx context.Context, key leveling.MemberKey, achievementID string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.unlocked[key][achievementID]
	return ok, nil
}

// InsertAchievementIfAbsent implements achievement.Store.
func (s *AchievementStore) InsertAchievementIfAbsent(ctx context.Context, key leveling.MemberKey, achievementID string, at time.Time) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return false, s.insertErr
	}

	byID := s.unlocked[key]
	if byID == nil {
		byID = make(map[string]time.Time)
		s.unlocked[key] = byID
	}
	if _, ok := byID[achievementID]; ok {
		return false, nil
	}
	byID[achievementID] = at
	return true, nil
}

// ListUnlocked implements achievement.Store.
func (s *AchievementStore) ListUnlocked(ctx context.Context, key leveling.MemberKey) ([]achievement.UserAchievement, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]achievement.UserAchievement, 0, len(s.unlocked[key]))
	for id, at := range s.unlocked[key] {
		out = append(out, achievement.UserAchievement{
			UserID:        key.UserID,
			ChatID:        key.ChatID,
			AchievementID: id,
			UnlockedAt:    at,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].AchievementID < out[j].AchievementID
	})
	return out, nil
}

// SubmitRecord implements achievement.RecordStore.
func (s *AchievementStore) SubmitRecord(ctx context.Context, chatID int64, key string, userID int64, value int64, at time.Time) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rk := recordKey{chatID: chatID, key: key}
	if current, ok := s.records[rk]; ok && value <= current.value {
		return false, nil
	}
	s.records[rk] = record{userID: userID, value: value, at: at}
	return true, nil
}

// RecordHolder returns the user holding a chat record and its value.
func (s *AchievementStore) RecordHolder(chatID int64, key string) (userID, value int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recordKey{chatID: chatID, key: key}]
	return r.userID, r.value, ok
}
