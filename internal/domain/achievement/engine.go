package achievement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT ENGINE
// Flow: Load Unlocked → Submit Chat Records → Evaluate Remaining Rules →
//
//	Insert If Absent → Return Newly Unlocked
//
// ══════════════════════════════════════════════════════════════════════════════

// EngineConfig contains the engine's dependencies.
type EngineConfig struct {
	// Catalog is the set of definitions. Defaults to DefaultCatalog().
	Catalog *Catalog

	// Store persists unlocks. Required.
	Store Store

	// Records tracks chat superlatives. Record conditions never hold without it.
	Records RecordStore

	// CallTimeout bounds each persistence call. Defaults to 5s. Input.CallTimeout
	// overrides it per evaluation.
	CallTimeout time.Duration

	// Logger receives rule and storage failures.
	Logger *slog.Logger
}

// Engine evaluates the catalog against a member snapshot and performs
// idempotent unlocks. It is safe for concurrent use.
type Engine struct {
	catalog     *Catalog
	store       Store
	records     RecordStore
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		catalog:     cfg.Catalog,
		store:       cfg.Store,
		records:     cfg.Records,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger.With(logger.Component("achievement_engine")),
	}
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Evaluate unlocks every not-yet-unlocked definition whose condition holds.
// It returns only definitions whose insert actually created a record, in
// catalog order. Broken rules and failed inserts are logged and skipped.
// An error is returned only when the unlocked set cannot be loaded.
func (e *Engine) Evaluate(ctx context.Context, key leveling.MemberKey, in Input) ([]Definition, error) {
	if e.store == nil {
		return nil, shared.NewDomainError("achievement", "Evaluate", shared.ErrInvalidConfig, "store is not configured")
	}

	timeout := e.callTimeout
	if in.CallTimeout > 0 {
		timeout = in.CallTimeout
	}
	log := e.logger.With(logger.UserID(key.UserID), logger.ChatID(key.ChatID))

	unlocked, err := e.loadUnlocked(ctx, key, timeout)
	if err != nil {
		return nil, err
	}

	in.Records = e.submitRecords(ctx, key, in, timeout, log)

	at := in.Stats.LastActivity
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var newly []Definition
	for _, def := range e.catalog.defs {
		if _, done := unlocked[def.ID]; done {
			continue
		}

		met, err := e.check(def, in)
		if err != nil {
			log.Warn("achievement rule failed", logger.AchievementID(def.ID), logger.Err(err))
			continue
		}
		if !met {
			continue
		}

		inserted, err := e.insert(ctx, key, def.ID, at, timeout)
		if err != nil {
			log.Error("failed to persist achievement unlock", logger.AchievementID(def.ID), logger.Err(err))
			continue
		}
		if inserted {
			newly = append(newly, def)
		}
	}

	return newly, nil
}

// check evaluates one rule, converting a panic into an error.
func (e *Engine) check(def Definition, in Input) (met bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			met = false
			err = shared.WrapError("achievement", "Evaluate", shared.ErrInvalidState,
				fmt.Sprintf("rule %q panicked", def.ID), fmt.Errorf("%v", r))
		}
	}()

	met, err = def.Condition.Met(in)
	if err != nil {
		return false, shared.WrapError("achievement", "Evaluate", shared.ErrInvalidState,
			fmt.Sprintf("rule %q failed", def.ID), err)
	}
	return met, nil
}

func (e *Engine) loadUnlocked(ctx context.Context, key leveling.MemberKey, timeout time.Duration) (map[string]struct{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	list, err := e.store.ListUnlocked(callCtx, key)
	if err != nil {
		return nil, fmt.Errorf("achievement: failed to load unlocked achievements: %w", err)
	}

	out := make(map[string]struct{}, len(list))
	for _, ua := range list {
		out[ua.AchievementID] = struct{}{}
	}
	return out, nil
}

func (e *Engine) insert(ctx context.Context, key leveling.MemberKey, id string, at time.Time, timeout time.Duration) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.store.InsertAchievementIfAbsent(callCtx, key, id, at)
}

// submitRecords offers the message's measurements to every tracked chat
// record and returns the records the member now holds. Failures are logged
// and count as "not a record".
func (e *Engine) submitRecords(ctx context.Context, key leveling.MemberKey, in Input, timeout time.Duration, log *slog.Logger) map[string]bool {
	out := make(map[string]bool, len(in.Records))
	for k, v := range in.Records {
		out[k] = v
	}

	if in.Message == nil || e.records == nil {
		return out
	}

	at := in.Message.LocalTime
	for _, r := range e.catalog.trackers {
		value, ok := measure(r, *in.Message)
		if !ok || value < r.Min || value <= 0 {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		set, err := e.records.SubmitRecord(callCtx, key.ChatID, r.Key, key.UserID, value, at)
		cancel()
		if err != nil {
			log.Warn("failed to submit chat record", slog.String("record", r.Key), logger.Err(err))
			continue
		}
		if set {
			out[r.Key] = true
		}
	}
	return out
}

func measure(r Record, m MessageContext) (value int64, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			value, ok = 0, false
		}
	}()
	return r.Measure(m), true
}
