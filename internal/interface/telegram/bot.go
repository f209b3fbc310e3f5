package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/application/command"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/external/telegram"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// Processor handles one message event.
type Processor interface {
	Process(ctx context.Context, event leveling.MessageEvent) (*command.ProcessResult, error)
}

// Poller delivers updates until its context ends.
type Poller interface {
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig configures Bot.
type BotConfig struct {
	Poller    Poller
	Mapper    *Mapper
	Processor Processor

	// MaxConcurrentUpdates bounds in-flight Process calls.
	MaxConcurrentUpdates int

	// ProcessTimeout bounds one Process call.
	ProcessTimeout time.Duration

	Logger *slog.Logger
}

// Bot receives updates and runs them through the leveling engine. Updates
// are processed concurrently; the engine serializes writes per member.
type Bot struct {
	poller    Poller
	mapper    *Mapper
	processor Processor
	timeout   time.Duration
	logger    *slog.Logger

	updateSem chan struct{}
	wg        sync.WaitGroup
	stats     BotStats
}

// BotStats holds runtime counters.
type BotStats struct {
	UpdatesReceived atomic.Int64
	EventsProcessed atomic.Int64
	Duplicates      atomic.Int64
	Errors          atomic.Int64
}

// NewBot creates a Bot.
func NewBot(cfg BotConfig) (*Bot, error) {
	if cfg.Poller == nil || cfg.Processor == nil {
		return nil, errors.New("telegram bot: poller and processor are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Mapper == nil {
		cfg.Mapper = NewMapper(nil, cfg.Logger)
	}
	if cfg.MaxConcurrentUpdates <= 0 {
		cfg.MaxConcurrentUpdates = 32
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 30 * time.Second
	}

	return &Bot{
		poller:    cfg.Poller,
		mapper:    cfg.Mapper,
		processor: cfg.Processor,
		timeout:   cfg.ProcessTimeout,
		logger:    cfg.Logger.With(logger.Component("telegram_bot")),
		updateSem: make(chan struct{}, cfg.MaxConcurrentUpdates),
	}, nil
}

// Run polls until ctx is cancelled and then waits for in-flight updates.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram bot started")
	err := b.poller.StartPolling(ctx, b.HandleUpdate)
	b.wg.Wait()
	b.logger.Info("telegram bot stopped",
		slog.Int64("updates", b.stats.UpdatesReceived.Load()),
		slog.Int64("processed", b.stats.EventsProcessed.Load()),
	)
	return err
}

// Stats returns the bot counters.
func (b *Bot) Stats() *BotStats {
	return &b.stats
}

// HandleUpdate maps the update and processes it on a worker goroutine.
// It blocks only while all worker slots are busy.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	b.stats.UpdatesReceived.Add(1)

	event, ok := b.mapper.Map(ctx, update)
	if !ok {
		return nil
	}

	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()
		// Detached so a shutdown does not abort half-applied work.
		b.process(context.WithoutCancel(ctx), event)
	}()
	return nil
}

func (b *Bot) process(ctx context.Context, event leveling.MessageEvent) {
	log := b.logger.With(logger.EventID(event.EventID), logger.ChatID(event.ChatID), logger.UserID(event.UserID))
	defer func() {
		if r := recover(); r != nil {
			b.stats.Errors.Add(1)
			log.Error("panic while processing message",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := b.processor.Process(ctx, event)
	switch {
	case err != nil && shared.IsValidation(err):
		log.Debug("ignored invalid message", logger.Err(err))
	case err != nil:
		b.stats.Errors.Add(1)
		log.Error("failed to process message", logger.Err(fmt.Errorf("process: %w", err)))
	case result != nil && result.Duplicate:
		b.stats.Duplicates.Add(1)
	default:
		b.stats.EventsProcessed.Add(1)
	}
}
