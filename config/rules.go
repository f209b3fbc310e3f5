package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES FILE
// ══════════════════════════════════════════════════════════════════════════════

// rulesFile is the YAML overlay. Absent fields keep the base value.
type rulesFile struct {
	Rates *struct {
		BaseMessage *int64 `yaml:"base_message"`
		LinkShared  *int64 `yaml:"link_shared"`
		Thanks      *int64 `yaml:"thanks"`
		Sticker     *int64 `yaml:"sticker"`
		Media       *int64 `yaml:"media"`
	} `yaml:"rates"`

	LevelCurve *struct {
		BaseXP     *int64   `yaml:"base_xp"`
		Multiplier *float64 `yaml:"multiplier"`
	} `yaml:"level_curve"`

	GratitudeKeywords []string `yaml:"gratitude_keywords"`

	RateLimit *struct {
		MaxXP  *int64         `yaml:"max_xp"`
		Window *time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`

	DedupRetention     *time.Duration `yaml:"dedup_retention"`
	PersistenceTimeout *time.Duration `yaml:"persistence_timeout"`
	MaxAttempts        *int           `yaml:"max_attempts"`
	RetryInitialDelay  *time.Duration `yaml:"retry_initial_delay"`
	Timezone           *string        `yaml:"timezone"`
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ParseRules overlays a YAML document on base and validates the result.
// Unknown keys are rejected.
func ParseRules(base leveling.Rules, data []byte) (*leveling.Rules, error) {
	var f rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	r := base
	if f.Rates != nil {
		setIf(&r.Rates.BaseMessage, f.Rates.BaseMessage)
		setIf(&r.Rates.LinkShared, f.Rates.LinkShared)
		setIf(&r.Rates.ThanksGiven, f.Rates.Thanks)
		setIf(&r.Rates.StickerSent, f.Rates.Sticker)
		setIf(&r.Rates.MediaShared, f.Rates.Media)
	}
	if f.LevelCurve != nil {
		setIf(&r.Curve.BaseXP, f.LevelCurve.BaseXP)
		setIf(&r.Curve.Multiplier, f.LevelCurve.Multiplier)
	}
	if len(f.GratitudeKeywords) > 0 {
		r.GratitudeKeywords = f.GratitudeKeywords
	}
	if f.RateLimit != nil {
		setIf(&r.RateLimit.MaxXP, f.RateLimit.MaxXP)
		setIf(&r.RateLimit.Window, f.RateLimit.Window)
	}
	setIf(&r.DedupRetention, f.DedupRetention)
	setIf(&r.PersistenceTimeout, f.PersistenceTimeout)
	setIf(&r.MaxAttempts, f.MaxAttempts)
	setIf(&r.RetryInitialDelay, f.RetryInitialDelay)
	if f.Timezone != nil {
		loc, err := time.LoadLocation(*f.Timezone)
		if err != nil {
			return nil, fmt.Errorf("rules timezone: %w", err)
		}
		r.Location = loc
	}

	return leveling.NewRules(r)
}

// LoadRules reads and parses a rules file.
func LoadRules(base leveling.Rules, path string) (*leveling.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rules, err := ParseRules(base, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// BaseRules returns the rules described by the environment alone.
func (c *Config) BaseRules() leveling.Rules {
	l := c.Leveling
	r := leveling.DefaultRules()

	r.Rates = leveling.Rates{
		BaseMessage: l.RateBaseMessage,
		LinkShared:  l.RateLinkShared,
		ThanksGiven: l.RateThanks,
		StickerSent: l.RateSticker,
		MediaShared: l.RateMedia,
	}
	r.Curve = leveling.LevelCurve{BaseXP: l.BaseXP, Multiplier: l.Multiplier}
	if len(l.GratitudeKeywords) > 0 {
		r.GratitudeKeywords = l.GratitudeKeywords
	}
	r.RateLimit = leveling.RateLimitPolicy{MaxXP: l.RateLimitXP, Window: l.RateLimitWindow}
	r.DedupRetention = l.DedupRetention
	r.PersistenceTimeout = l.PersistenceTimeout
	r.MaxAttempts = l.MaxAttempts
	r.RetryInitialDelay = l.RetryInitialDelay
	r.Location = c.Location()
	return r
}

// Rules builds the active rules snapshot: the environment defaults, then
// the rules file if one is configured.
func (c *Config) Rules() (*leveling.Rules, error) {
	base := c.BaseRules()
	if c.Leveling.RulesFile == "" {
		return leveling.NewRules(base)
	}
	return LoadRules(base, c.Leveling.RulesFile)
}

// ══════════════════════════════════════════════════════════════════════════════
// RULES HOLDER
// ══════════════════════════════════════════════════════════════════════════════

// RulesHolder publishes the current rules snapshot. Readers get a whole
// snapshot; a reload replaces the pointer and never mutates the old value.
type RulesHolder struct {
	current atomic.Pointer[leveling.Rules]
}

// NewRulesHolder creates a holder with an initial snapshot.
func NewRulesHolder(initial *leveling.Rules) *RulesHolder {
	h := &RulesHolder{}
	h.current.Store(initial)
	return h
}

// Rules returns the current snapshot.
func (h *RulesHolder) Rules() *leveling.Rules {
	return h.current.Load()
}

// Store swaps in a new snapshot.
func (h *RulesHolder) Store(r *leveling.Rules) {
	h.current.Store(r)
}
