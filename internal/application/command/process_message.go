// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/achievement"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/retry"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVELING ORCHESTRATOR
// Flow: Validate → Claim Event → Classify → Rate Limit XP →
//
//	Atomic Update (per user, in parallel) → Level Up Check →
//	Evaluate Achievements → Publish Events (best effort)
//
// ══════════════════════════════════════════════════════════════════════════════

// RulesSource provides the current rules snapshot. A Process call reads it
// exactly once.
type RulesSource interface {
	Rules() *leveling.Rules
}

// StaticRules is a RulesSource that never changes.
type StaticRules struct {
	R *leveling.Rules
}

// Rules implements RulesSource.
func (s StaticRules) Rules() *leveling.Rules { return s.R }

// LevelingOrchestratorConfig contains the orchestrator's dependencies.
type LevelingOrchestratorConfig struct {
	Stats  leveling.StatsRepository
	Claims leveling.EventClaimer

	// Limiter caps XP per rolling window. Nil disables limiting.
	Limiter leveling.XPLimiter

	// Achievements evaluates unlocks after each update. Nil disables them.
	Achievements *achievement.Engine

	// Publisher receives outbound events. Nil drops them.
	Publisher shared.EventPublisher

	// Rules defaults to leveling.DefaultRules().
	Rules RulesSource

	Metrics Metrics
	Logger  *slog.Logger
}

// LevelingOrchestrator turns inbound chat messages into XP, levels and
// achievements. It is safe for concurrent use.
type LevelingOrchestrator struct {
	stats        leveling.StatsRepository
	claims       leveling.EventClaimer
	limiter      leveling.XPLimiter
	achievements *achievement.Engine
	publisher    shared.EventPublisher
	rules        RulesSource
	metrics      Metrics
	logger       *slog.Logger
}

// NewLevelingOrchestrator creates an orchestrator.
func NewLevelingOrchestrator(cfg LevelingOrchestratorConfig) (*LevelingOrchestrator, error) {
	if cfg.Stats == nil {
		return nil, shared.NewDomainError("leveling", "NewLevelingOrchestrator", shared.ErrInvalidConfig, "stats repository is required")
	}
	if cfg.Claims == nil {
		return nil, shared.NewDomainError("leveling", "NewLevelingOrchestrator", shared.ErrInvalidConfig, "event claimer is required")
	}
	if cfg.Rules == nil {
		cfg.Rules = StaticRules{R: leveling.MustRules(leveling.DefaultRules())}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &LevelingOrchestrator{
		stats:        cfg.Stats,
		claims:       cfg.Claims,
		limiter:      cfg.Limiter,
		achievements: cfg.Achievements,
		publisher:    cfg.Publisher,
		rules:        cfg.Rules,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With(logger.Component("leveling_orchestrator")),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULT
// ══════════════════════════════════════════════════════════════════════════════

// UserUpdate is the outcome for one affected user.
type UserUpdate struct {
	UserID int64

	// RequestedXP is the XP before rate limiting.
	RequestedXP int64
	// GrantedXP is the XP actually added.
	GrantedXP int64

	// Stats is the snapshot after the update. Zero when Err is set.
	Stats leveling.UserChatStats

	// NewLevel is the level reached, or 0 if the user did not level up.
	NewLevel int

	// Unlocked lists achievements unlocked by this event.
	Unlocked []achievement.Definition

	// Err is set when the atomic update failed.
	Err error
}

// Committed reports whether the user's update was persisted.
func (u UserUpdate) Committed() bool {
	return u.Err == nil
}

// ProcessResult contains the result of processing one message.
type ProcessResult struct {
	EventID string

	// Duplicate is true when the event was already processed.
	Duplicate bool

	// Updates are ordered by user id.
	Updates []UserUpdate

	// Events are the outbound events handed to the publisher.
	Events []shared.Event
}

// Update returns the update of a user.
func (r *ProcessResult) Update(userID int64) (UserUpdate, bool) {
	for _, u := range r.Updates {
		if u.UserID == userID {
			return u, true
		}
	}
	return UserUpdate{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS
// ══════════════════════════════════════════════════════════════════════════════

// Process handles one inbound message exactly once.
//
// A duplicate event returns a result with Duplicate set and no error. When
// some users were updated and others were not, the result is returned
// together with an error wrapping shared.ErrProcessingFailed. When nothing
// was committed the claim is released so a redelivery can retry.
func (o *LevelingOrchestrator) Process(ctx context.Context, event leveling.MessageEvent) (result *ProcessResult, err error) {
	start := time.Now()
	outcome := OutcomeFailed
	defer func() {
		o.metrics.EventProcessed(outcome, time.Since(start))
	}()

	if err := event.Validate(); err != nil {
		outcome = OutcomeInvalid
		return nil, fmt.Errorf("process_message: validation failed: %w", err)
	}

	rules := o.rules.Rules()
	log := o.logger.With(logger.EventID(event.EventID), logger.ChatID(event.ChatID))

	claimed, err := o.claim(ctx, rules, event.EventID)
	if err != nil {
		log.Error("failed to claim event", logger.Err(err))
		return nil, fmt.Errorf("process_message: claim failed: %w", errors.Join(shared.ErrProcessingFailed, err))
	}
	if !claimed {
		outcome = OutcomeDuplicate
		log.Debug("duplicate event ignored")
		return &ProcessResult{EventID: event.EventID, Duplicate: true}, nil
	}

	committed := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing message", slog.Any("panic", r))
			err = fmt.Errorf("process_message: panic: %v: %w", r, shared.ErrProcessingFailed)
			result = nil
		}
		if !committed {
			o.release(ctx, rules, event.EventID, log)
		}
	}()

	result = &ProcessResult{EventID: event.EventID}
	result.Updates = o.updateAll(ctx, rules, event)

	var failures []error
	for _, u := range result.Updates {
		if u.Committed() {
			committed = true
		} else {
			failures = append(failures, fmt.Errorf("user %d: %w", u.UserID, u.Err))
		}
	}

	result.Events = o.collectEvents(event, result.Updates)
	o.publish(result.Events, log)

	switch {
	case len(failures) == 0:
		outcome = OutcomeProcessed
		return result, nil
	case committed:
		outcome = OutcomePartial
		return result, fmt.Errorf("process_message: %w", errors.Join(append([]error{shared.ErrProcessingFailed}, failures...)...))
	default:
		return nil, fmt.Errorf("process_message: %w", errors.Join(append([]error{shared.ErrProcessingFailed}, failures...)...))
	}
}

// updateAll applies the event to every affected user in parallel.
func (o *LevelingOrchestrator) updateAll(ctx context.Context, rules *leveling.Rules, event leveling.MessageEvent) []UserUpdate {
	classifier := rules.Classifier()
	signals := classifier.Classify(event)
	xp := rules.Calculator().Calculate(signals)
	counters := leveling.CountersFor(signals)

	users := affectedUsers(event.UserID, xp, counters)
	local := timeutil.In(event.Timestamp, rules.Location)
	facts := classifier.Analyze(event.Text)

	updates := make([]UserUpdate, len(users))
	var g errgroup.Group
	for i, userID := range users {
		g.Go(func() error {
			updates[i] = o.updateUser(ctx, rules, event, userID, xp[userID], counters[userID], local, facts)
			return nil
		})
	}
	_ = g.Wait()

	return updates
}

func (o *LevelingOrchestrator) updateUser(
	ctx context.Context,
	rules *leveling.Rules,
	event leveling.MessageEvent,
	userID int64,
	requested int64,
	counters leveling.CounterDeltas,
	local time.Time,
	facts leveling.TextFacts,
) (u UserUpdate) {
	key := leveling.MemberKey{UserID: userID, ChatID: event.ChatID}
	isSender := userID == event.UserID
	log := o.logger.With(logger.EventID(event.EventID), logger.UserID(userID), logger.ChatID(event.ChatID))

	u = UserUpdate{UserID: userID, RequestedXP: requested}
	committed := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while updating user", slog.Any("panic", r))
			if !committed {
				u.Err = fmt.Errorf("panic: %v", r)
			}
		}
	}()

	u.GrantedXP = o.grant(ctx, rules, key, event.EventID, requested, event.Timestamp, log)

	delta := leveling.StatsDelta{
		EventID:  event.EventID,
		XP:       u.GrantedXP,
		Counters: counters,
		At:       local,
		Curve:    rules.Curve,
	}
	if isSender {
		delta.Username = event.Username
	}

	stats, err := o.apply(ctx, rules, key, delta)
	if err != nil {
		log.Error("failed to apply stats update", logger.Err(err))
		o.refund(ctx, rules, key, event.EventID, u.GrantedXP, log)
		u.Err = err
		return u
	}
	u.Stats = stats
	committed = true
	o.metrics.XPGranted(u.GrantedXP, requested-u.GrantedXP)

	if level, up := rules.Curve.CheckLevelUp(stats.XP-u.GrantedXP, stats.XP); up {
		u.NewLevel = level
		o.metrics.LevelUp(level)
		log.Info("user leveled up", logger.Level(level), logger.XP(stats.XP))
	}

	if o.achievements == nil {
		return u
	}

	in := achievement.Input{Stats: stats, CallTimeout: rules.PersistenceTimeout}
	if isSender {
		today := timeutil.DateOf(local)
		in.Message = &achievement.MessageContext{
			EventID:    event.EventID,
			Facts:      facts,
			MediaKind:  event.MediaKind,
			LocalTime:  local,
			FirstToday: stats.LastActiveDate.Equal(today) && stats.MessagesToday == int(counters.Messages),
		}
	}

	unlocked, err := o.achievements.Evaluate(ctx, key, in)
	if err != nil {
		log.Warn("achievement evaluation failed", logger.Err(err))
		return u
	}
	for _, def := range unlocked {
		o.metrics.AchievementUnlocked(def.ID)
		log.Info("achievement unlocked", logger.AchievementID(def.ID))
	}
	u.Unlocked = unlocked
	return u
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE CALLS
// ══════════════════════════════════════════════════════════════════════════════

func (o *LevelingOrchestrator) retrier(rules *leveling.Rules) *retry.Retrier {
	return retry.DatabaseRetrier(
		retry.WithMaxAttempts(rules.MaxAttempts),
		retry.WithInitialDelay(rules.RetryInitialDelay),
		retry.WithRetryIf(isTransient),
	)
}

// isTransient reports failures worth retrying. A per-call timeout counts.
func isTransient(err error) bool {
	return shared.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

func (o *LevelingOrchestrator) claim(ctx context.Context, rules *leveling.Rules, eventID string) (bool, error) {
	return retry.DoValue(ctx, o.retrier(rules), func(ctx context.Context) (bool, error) {
		callCtx, cancel := context.WithTimeout(ctx, rules.PersistenceTimeout)
		defer cancel()
		return o.claims.ClaimEventIfUnprocessed(callCtx, eventID, rules.DedupRetention)
	})
}

// release runs detached from ctx: a cancelled caller must not leave a claim
// for an event that was never applied.
func (o *LevelingOrchestrator) release(ctx context.Context, rules *leveling.Rules, eventID string, log *slog.Logger) {
	err := retry.Do(context.WithoutCancel(ctx), func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, rules.PersistenceTimeout)
		defer cancel()
		return o.claims.ReleaseEvent(callCtx, eventID)
	},
		retry.WithMaxAttempts(rules.MaxAttempts),
		retry.WithInitialDelay(rules.RetryInitialDelay),
		retry.WithRetryIf(isTransient),
	)
	if err != nil {
		log.Warn("failed to release event claim", logger.Err(err))
	}
}

func (o *LevelingOrchestrator) apply(ctx context.Context, rules *leveling.Rules, key leveling.MemberKey, delta leveling.StatsDelta) (leveling.UserChatStats, error) {
	return retry.DoValue(ctx, o.retrier(rules), func(ctx context.Context) (leveling.UserChatStats, error) {
		callCtx, cancel := context.WithTimeout(ctx, rules.PersistenceTimeout)
		defer cancel()
		return o.stats.ApplyAtomicUpdate(callCtx, key, delta)
	})
}

// grant applies the rate limit. A limiter failure grants the full amount.
func (o *LevelingOrchestrator) grant(ctx context.Context, rules *leveling.Rules, key leveling.MemberKey, eventID string, requested int64, at time.Time, log *slog.Logger) int64 {
	if requested <= 0 || o.limiter == nil || !rules.RateLimit.Enabled() {
		return max(requested, 0)
	}

	callCtx, cancel := context.WithTimeout(ctx, rules.PersistenceTimeout)
	defer cancel()

	granted, err := o.limiter.Grant(callCtx, key, eventID, requested, at, rules.RateLimit)
	if err != nil {
		log.Warn("xp limiter unavailable, granting full amount", logger.Err(err))
		return requested
	}
	return min(max(granted, 0), requested)
}

// refund gives back the window budget of an update that did not commit, so
// a redelivery of the event is limited as if the failed attempt never ran.
func (o *LevelingOrchestrator) refund(ctx context.Context, rules *leveling.Rules, key leveling.MemberKey, eventID string, granted int64, log *slog.Logger) {
	if granted <= 0 || o.limiter == nil || !rules.RateLimit.Enabled() {
		return
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rules.PersistenceTimeout)
	defer cancel()

	if err := o.limiter.Refund(callCtx, key, eventID); err != nil {
		log.Warn("failed to refund xp grant", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

func (o *LevelingOrchestrator) collectEvents(event leveling.MessageEvent, updates []UserUpdate) []shared.Event {
	var events []shared.Event
	for _, u := range updates {
		if !u.Committed() {
			continue
		}
		username := u.Stats.Username
		if u.NewLevel > 0 {
			e := shared.NewLevelUpEvent(u.UserID, event.ChatID, username, u.NewLevel)
			e.BaseEvent = e.WithCorrelationID(event.EventID)
			events = append(events, e)
		}
		for _, def := range u.Unlocked {
			e := shared.NewAchievementUnlockedEvent(u.UserID, event.ChatID, username, def.ID, def.Title, def.Emoji)
			e.BaseEvent = e.WithCorrelationID(event.EventID)
			events = append(events, e)
		}
		e := shared.NewStatsUpdatedEvent(u.UserID, event.ChatID, username, u.Stats.XP, u.Stats.Level, u.GrantedXP)
		e.BaseEvent = e.WithCorrelationID(event.EventID)
		events = append(events, e)
	}
	return events
}

// publish hands events to the publisher. Failures are logged and never
// affect the committed state.
func (o *LevelingOrchestrator) publish(events []shared.Event, log *slog.Logger) {
	if o.publisher == nil {
		return
	}
	for _, e := range events {
		if err := o.safePublish(e); err != nil {
			log.Warn("failed to publish event",
				slog.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}

func (o *LevelingOrchestrator) safePublish(e shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	return o.publisher.Publish(e)
}

// affectedUsers returns the sender plus every user with XP or counter
// changes, ordered by id.
func affectedUsers(sender int64, xp map[int64]int64, counters map[int64]leveling.CounterDeltas) []int64 {
	seen := map[int64]struct{}{sender: {}}
	users := []int64{sender}
	add := func(id int64) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			users = append(users, id)
		}
	}
	for id := range xp {
		add(id)
	}
	for id := range counters {
		add(id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}
