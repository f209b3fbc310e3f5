package memory

import (
	"context"
	"sync"
	"time"
)

// ClaimStore remembers processed event ids until their retention expires.
type ClaimStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     Clock

	failErr error
}

// NewClaimStore creates an empty claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for expiry.
func (s *ClaimStore) WithClock(now Clock) *ClaimStore {
	s.now = now
	return s
}

// SetError makes every claim fail with err until cleared with nil.
func (s *ClaimStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// ClaimEventIfUnprocessed implements leveling.EventClaimer. A non-positive
// retention keeps the claim forever.
func (s *ClaimStore) ClaimEventIfUnprocessed(ctx context.Context, eventID string, retention time.Duration) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return false, s.failErr
	}

	now := s.now()
	if exp, ok := s.expires[eventID]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}

	var exp time.Time
	if retention > 0 {
		exp = now.Add(retention)
	}
	s.expires[eventID] = exp
	return true, nil
}

// ReleaseEvent implements leveling.EventClaimer.
func (s *ClaimStore) ReleaseEvent(ctx context.Context, eventID string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, eventID)
	return nil
}

// PurgeExpired drops expired claims and returns how many were removed.
func (s *ClaimStore) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, exp := range s.expires {
		if !exp.IsZero() && !now.Before(exp) {
			delete(s.expires, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live and expired claims held.
func (s *ClaimStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}
