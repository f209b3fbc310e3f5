package achievement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

// fakeStore is a minimal in-memory Store and RecordStore.
type fakeStore struct {
	mu       sync.Mutex
	unlocked map[leveling.MemberKey]map[string]time.Time
	records  map[string]int64
	holders  map[string]int64

	listErr   error
	insertErr map[string]error
	recordErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		unlocked:  make(map[leveling.MemberKey]map[string]time.Time),
		records:   make(map[string]int64),
		holders:   make(map[string]int64),
		insertErr: make(map[string]error),
	}
}

func (s *fakeStore) HasAchievement(_ context.Context, key leveling.MemberKey, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unlocked[key][id]
	return ok, nil
}

func (s *fakeStore) InsertAchievementIfAbsent(_ context.Context, key leveling.MemberKey, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[id]; err != nil {
		return false, err
	}
	if s.unlocked[key] == nil {
		s.unlocked[key] = make(map[string]time.Time)
	}
	if _, ok := s.unlocked[key][id]; ok {
		return false, nil
	}
	s.unlocked[key][id] = at
	return true, nil
}

func (s *fakeStore) ListUnlocked(_ context.Context, key leveling.MemberKey) ([]UserAchievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []UserAchievement
	for id, at := range s.unlocked[key] {
		out = append(out, UserAchievement{UserID: key.UserID, ChatID: key.ChatID, AchievementID: id, UnlockedAt: at})
	}
	return out, nil
}

func (s *fakeStore) SubmitRecord(_ context.Context, chatID int64, recordKey string, userID int64, value int64, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return false, s.recordErr
	}
	if current, ok := s.records[recordKey]; ok && value <= current {
		return false, nil
	}
	s.records[recordKey] = value
	s.holders[recordKey] = userID
	return true, nil
}

func (s *fakeStore) count(key leveling.MemberKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unlocked[key])
}

var member = leveling.MemberKey{UserID: 42, ChatID: -100}

func ids(defs []Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ID)
	}
	return out
}

func messagesCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(Tiered(CategoryActivity, leveling.CounterMessages, "Send %d messages", []Tier{
		{ID: "m100", Title: "Hundred", Threshold: 100},
		{ID: "m1", Title: "First", Threshold: 1},
		{ID: "m10", Title: "Ten", Threshold: 10},
	})...)
	require.NoError(t, err)
	return c
}

func TestEngine_Idempotent(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(EngineConfig{Catalog: messagesCatalog(t), Store: store})
	in := Input{Stats: leveling.UserChatStats{UserID: member.UserID, ChatID: member.ChatID, MessagesCount: 1}}

	first, err := engine.Evaluate(context.Background(), member, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(first))

	second, err := engine.Evaluate(context.Background(), member, in)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, 1, store.count(member))
}

func TestEngine_MultipleTiersUnlockInOrder(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(EngineConfig{Catalog: messagesCatalog(t), Store: store})
	in := Input{Stats: leveling.UserChatStats{MessagesCount: 150}}

	got, err := engine.Evaluate(context.Background(), member, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m10", "m100"}, ids(got))
}

func TestEngine_BrokenRuleIsIsolated(t *testing.T) {
	store := newFakeStore()
	catalog, err := NewCatalog(
		Definition{ID: "broken", Title: "Broken", Condition: Func(func(Input) (bool, error) {
			return false, errors.New("malformed condition")
		})},
		Definition{ID: "panics", Title: "Panics", Condition: Func(func(Input) (bool, error) {
			panic("boom")
		})},
		Definition{ID: "bad_threshold", Title: "Bad", Condition: CounterAtLeast{Counter: leveling.CounterMessages}},
		Definition{ID: "ok", Title: "OK", Condition: CounterAtLeast{Counter: leveling.CounterMessages, Threshold: 1}},
	)
	require.NoError(t, err)
	engine := NewEngine(EngineConfig{Catalog: catalog, Store: store})

	got, err := engine.Evaluate(context.Background(), member, Input{Stats: leveling.UserChatStats{MessagesCount: 5}})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, ids(got))
}

func TestEngine_FailedInsertIsSkipped(t *testing.T) {
	store := newFakeStore()
	store.insertErr["m1"] = errors.New("connection reset")
	engine := NewEngine(EngineConfig{Catalog: messagesCatalog(t), Store: store})

	got, err := engine.Evaluate(context.Background(), member, Input{Stats: leveling.UserChatStats{MessagesCount: 10}})

	require.NoError(t, err)
	assert.Equal(t, []string{"m10"}, ids(got))
}

func TestEngine_ConcurrentUnlockReturnedOnce(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(EngineConfig{Catalog: messagesCatalog(t), Store: store})
	in := Input{Stats: leveling.UserChatStats{MessagesCount: 1}}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := engine.Evaluate(context.Background(), member, in)
			assert.NoError(t, err)
			mu.Lock()
			total += len(got)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Equal(t, 1, store.count(member))
}

func TestEngine_ListFailureIsReturned(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")
	engine := NewEngine(EngineConfig{Catalog: messagesCatalog(t), Store: store})

	_, err := engine.Evaluate(context.Background(), member, Input{})
	assert.Error(t, err)
}

func TestEngine_SuperlativeRecord(t *testing.T) {
	store := newFakeStore()
	catalog, err := NewCatalog(Definition{
		ID:        "longest",
		Title:     "Longest",
		Condition: RecordHolder{Record: RecordLongestMessage},
	})
	require.NoError(t, err)
	engine := NewEngine(EngineConfig{Catalog: catalog, Store: store, Records: store})

	other := leveling.MemberKey{UserID: 7, ChatID: member.ChatID}
	message := func(length int) Input {
		return Input{Message: &MessageContext{Facts: leveling.TextFacts{Length: length}}}
	}

	// Below the minimum: no record.
	got, err := engine.Evaluate(context.Background(), member, message(50))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = engine.Evaluate(context.Background(), member, message(300))
	require.NoError(t, err)
	assert.Equal(t, []string{"longest"}, ids(got))

	// A tie keeps the incumbent.
	got, err = engine.Evaluate(context.Background(), other, message(300))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, member.UserID, store.holders["longest_message"])

	// The holder raising their own record is still tracked.
	_, err = engine.Evaluate(context.Background(), member, message(500))
	require.NoError(t, err)
	assert.Equal(t, int64(500), store.records["longest_message"])

	got, err = engine.Evaluate(context.Background(), other, message(450))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = engine.Evaluate(context.Background(), other, message(501))
	require.NoError(t, err)
	assert.Equal(t, []string{"longest"}, ids(got))
}

func TestEngine_RecordStoreFailureIsNotARecord(t *testing.T) {
	store := newFakeStore()
	store.recordErr = errors.New("timeout")
	catalog := MustCatalog(Definition{ID: "longest", Title: "Longest", Condition: RecordHolder{Record: RecordLongestMessage}})
	engine := NewEngine(EngineConfig{Catalog: catalog, Store: store, Records: store})

	got, err := engine.Evaluate(context.Background(), member, Input{
		Message: &MessageContext{Facts: leveling.TextFacts{Length: 5000}},
	})

	require.NoError(t, err)
	assert.Empty(t, got)
}

// deadlineStore records how far away the deadline of each ListUnlocked call was.
type deadlineStore struct {
	*fakeStore
	budgets []time.Duration
}

func (s *deadlineStore) ListUnlocked(ctx context.Context, key leveling.MemberKey) ([]UserAchievement, error) {
	if d, ok := ctx.Deadline(); ok {
		s.mu.Lock()
		s.budgets = append(s.budgets, time.Until(d))
		s.mu.Unlock()
	}
	return s.fakeStore.ListUnlocked(ctx, key)
}

func TestEngine_InputCallTimeoutOverridesDefault(t *testing.T) {
	store := &deadlineStore{fakeStore: newFakeStore()}
	engine := NewEngine(EngineConfig{Catalog: messagesCatalog(t), Store: store, CallTimeout: time.Hour})
	stats := leveling.UserChatStats{UserID: member.UserID, ChatID: member.ChatID}

	_, err := engine.Evaluate(context.Background(), member, Input{Stats: stats})
	require.NoError(t, err)
	_, err = engine.Evaluate(context.Background(), member, Input{Stats: stats, CallTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	require.Len(t, store.budgets, 2)
	assert.Greater(t, store.budgets[0], time.Minute)
	assert.LessOrEqual(t, store.budgets[1], 50*time.Millisecond)
}
