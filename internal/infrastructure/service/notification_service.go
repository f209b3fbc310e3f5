package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/circuitbreaker"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// TextSender delivers a plain-text message to a chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// NotificationMetrics counts announcements that could not be delivered.
type NotificationMetrics interface {
	NotificationFailed(kind string)
}

// NotificationServiceConfig configures NotificationService.
type NotificationServiceConfig struct {
	Sender TextSender

	// Breaker guards the sender. Defaults to circuitbreaker.TelegramAPIBreaker.
	Breaker *circuitbreaker.CircuitBreaker

	// SendTimeout bounds one delivery.
	SendTimeout time.Duration

	Metrics NotificationMetrics
	Logger  *slog.Logger
}

// NotificationService announces level-ups and unlocks in the chat they
// happened in. Failures are logged and counted, never returned to the
// leveling pipeline.
type NotificationService struct {
	sender  TextSender
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	metrics NotificationMetrics
	logger  *slog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(cfg NotificationServiceConfig) *NotificationService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With(logger.Component("notification_service"))

	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.TelegramAPIBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		})
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &NotificationService{
		sender:  cfg.Sender,
		breaker: cfg.Breaker,
		timeout: cfg.SendTimeout,
		metrics: cfg.Metrics,
		logger:  log,
	}
}

// Register subscribes the service to announcement events.
func (s *NotificationService) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventLevelUp, s.HandleLevelUp); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventAchievementUnlocked, s.HandleAchievementUnlocked)
}

// HandleLevelUp announces a level-up.
func (s *NotificationService) HandleLevelUp(event shared.Event) error {
	e, ok := event.(shared.LevelUpEvent)
	if !ok {
		return nil
	}
	return s.send("level_up", e.ChatID, FormatLevelUp(e))
}

// HandleAchievementUnlocked announces an unlock.
func (s *NotificationService) HandleAchievementUnlocked(event shared.Event) error {
	e, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return nil
	}
	return s.send("achievement", e.ChatID, FormatAchievementUnlocked(e))
}

func (s *NotificationService) send(kind string, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.sender.SendText(ctx, chatID, text)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.NotificationFailed(kind)
		}
		s.logger.Warn("failed to send notification",
			slog.String("kind", kind),
			logger.ChatID(chatID),
			logger.Err(err),
		)
		return fmt.Errorf("send %s notification: %w", kind, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTING
// ══════════════════════════════════════════════════════════════════════════════

// displayName renders "@handle" when known and a numeric fallback otherwise.
func displayName(username string, userID int64) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return fmt.Sprintf("user %d", userID)
	}
	return "@" + username
}

// FormatLevelUp renders a level-up announcement.
func FormatLevelUp(e shared.LevelUpEvent) string {
	return fmt.Sprintf("🎉 %s reached level %d!", displayName(e.Username, e.UserID), e.NewLevel)
}

// FormatAchievementUnlocked renders an unlock announcement.
func FormatAchievementUnlocked(e shared.AchievementUnlockedEvent) string {
	title := e.Title
	if title == "" {
		title = e.AchievementID
	}
	if e.Emoji != "" {
		title = e.Emoji + " " + title
	}
	return fmt.Sprintf("🏆 %s unlocked %s", displayName(e.Username, e.UserID), title)
}
