// Package shared contains common domain types, errors and events
// that are used across all domain packages.
package shared

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened while turning chat activity into progression.
const (
	// Progress events
	EventStatsUpdated EventType = "leveling.stats_updated"
	EventLevelUp      EventType = "leveling.level_up"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
// The leveling engine uses the inbound message event id.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// MemberAggregateID builds the aggregate id of a (user, chat) pair.
func MemberAggregateID(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// StatsUpdatedEvent is emitted after a committed stats update.
// It feeds read models such as the leaderboard cache.
type StatsUpdatedEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username,omitempty"`
	XP       int64  `json:"xp"`
	Level    int    `json:"level"`
	XPDelta  int64  `json:"xp_delta"`
}

// Payload implements Event interface.
func (e StatsUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID,
		"chat_id":  e.ChatID,
		"username": e.Username,
		"xp":       e.XP,
		"level":    e.Level,
		"xp_delta": e.XPDelta,
	}
}

// NewStatsUpdatedEvent creates a new StatsUpdatedEvent.
func NewStatsUpdatedEvent(userID, chatID int64, username string, xp int64, level int, delta int64) StatsUpdatedEvent {
	return StatsUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStatsUpdated, MemberAggregateID(chatID, userID)),
		UserID:    userID,
		ChatID:    chatID,
		Username:  username,
		XP:        xp,
		Level:     level,
		XPDelta:   delta,
	}
}

// LevelUpEvent is emitted when a member reaches a higher level.
// Multi-level jumps produce one event carrying the final level.
type LevelUpEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	Username string `json:"username,omitempty"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"chat_id":   e.ChatID,
		"username":  e.Username,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID, chatID int64, username string, newLevel int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, MemberAggregateID(chatID, userID)),
		UserID:    userID,
		ChatID:    chatID,
		Username:  username,
		NewLevel:  newLevel,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted once per newly unlocked achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        int64  `json:"user_id"`
	ChatID        int64  `json:"chat_id"`
	Username      string `json:"username,omitempty"`
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
	Emoji         string `json:"emoji"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"chat_id":        e.ChatID,
		"username":       e.Username,
		"achievement_id": e.AchievementID,
		"title":          e.Title,
		"emoji":          e.Emoji,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, chatID int64, username, achievementID, title, emoji string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, MemberAggregateID(chatID, userID)),
		UserID:        userID,
		ChatID:        chatID,
		Username:      username,
		AchievementID: achievementID,
		Title:         title,
		Emoji:         emoji,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
