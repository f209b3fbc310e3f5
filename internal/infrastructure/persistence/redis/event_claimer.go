package redis

import (
	"context"
	"time"
)

// EventClaimer implements leveling.EventClaimer with SET NX. The key expires
// with the retention window, so a redelivery after that is processed again.
type EventClaimer struct {
	client *Client
}

// NewEventClaimer creates an EventClaimer.
func NewEventClaimer(client *Client) *EventClaimer {
	return &EventClaimer{client: client}
}

// ClaimEventIfUnprocessed implements leveling.EventClaimer. A zero retention
// keeps the claim forever.
func (e *EventClaimer) ClaimEventIfUnprocessed(ctx context.Context, eventID string, retention time.Duration) (bool, error) {
	if retention < 0 {
		retention = 0
	}
	ok, err := e.client.rdb.SetNX(ctx, e.client.eventKey(eventID), time.Now().UTC().Unix(), retention).Result()
	if err != nil {
		return false, classify("claim event", err)
	}
	return ok, nil
}

// ReleaseEvent implements leveling.EventClaimer.
func (e *EventClaimer) ReleaseEvent(ctx context.Context, eventID string) error {
	return classify("release event", e.client.rdb.Del(ctx, e.client.eventKey(eventID)).Err())
}
