package postgres

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT CLAIM REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// farFuture stands in for "never expires".
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// EventClaimRepository implements leveling.EventClaimer on processed_events.
type EventClaimRepository struct {
	conn *Connection
}

// NewEventClaimRepository creates a new EventClaimRepository.
func NewEventClaimRepository(conn *Connection) *EventClaimRepository {
	return &EventClaimRepository{conn: conn}
}

// ClaimEventIfUnprocessed inserts the event id, taking over a row only if it
// has expired. Exactly one concurrent caller sees a modified row.
func (r *EventClaimRepository) ClaimEventIfUnprocessed(ctx context.Context, eventID string, retention time.Duration) (bool, error) {
	now := time.Now().UTC()
	expires := farFuture
	if retention > 0 {
		expires = now.Add(retention)
	}

	tag, err := r.conn.Exec(ctx, `
		INSERT INTO processed_events (event_id, claimed_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE
		SET claimed_at = EXCLUDED.claimed_at, expires_at = EXCLUDED.expires_at
		WHERE processed_events.expires_at <= EXCLUDED.claimed_at
	`, eventID, now, expires)
	if err != nil {
		return false, classify("claim event", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseEvent implements leveling.EventClaimer.
func (r *EventClaimRepository) ReleaseEvent(ctx context.Context, eventID string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID)
	return classify("release event", err)
}

// PurgeExpired deletes expired claims and returns how many were removed.
func (r *EventClaimRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM processed_events WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, classify("purge processed events", err)
	}
	return tag.RowsAffected(), nil
}
