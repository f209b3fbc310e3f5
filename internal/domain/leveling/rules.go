package leveling

import (
	"errors"
	"fmt"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMIT POLICY
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitPolicy caps XP accrual per member inside a rolling window.
// Raw counters are never limited.
type RateLimitPolicy struct {
	// MaxXP is the most XP a member can gain inside Window. Zero disables the cap.
	MaxXP int64
	// Window is the rolling window length.
	Window time.Duration
}

// DefaultRateLimitPolicy returns 20 XP per 60 seconds.
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		MaxXP:  20,
		Window: time.Minute,
	}
}

// Enabled reports whether the policy limits anything.
func (p RateLimitPolicy) Enabled() bool {
	return p.MaxXP > 0 && p.Window > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// RULES SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Rules is an immutable configuration snapshot. A Process call reads exactly
// one snapshot; hot reload swaps in a new *Rules and never mutates an old one.
type Rules struct {
	Rates             Rates
	Curve             LevelCurve
	GratitudeKeywords []string
	RateLimit         RateLimitPolicy

	// DedupRetention is how long a processed event id is remembered.
	DedupRetention time.Duration

	// PersistenceTimeout bounds every single persistence call.
	PersistenceTimeout time.Duration

	// MaxAttempts bounds retries of transient persistence failures.
	MaxAttempts int

	// RetryInitialDelay is the first backoff delay.
	RetryInitialDelay time.Duration

	// Location defines calendar days and local hours.
	Location *time.Location

	classifier *ActivityClassifier
	calculator *XPCalculator
}

// DefaultRules returns the default rules in UTC.
func DefaultRules() Rules {
	keywords := make([]string, len(DefaultGratitudeKeywords))
	copy(keywords, DefaultGratitudeKeywords)

	return Rules{
		Rates:              DefaultRates(),
		Curve:              DefaultLevelCurve(),
		GratitudeKeywords:  keywords,
		RateLimit:          DefaultRateLimitPolicy(),
		DedupRetention:     48 * time.Hour,
		PersistenceTimeout: 5 * time.Second,
		MaxAttempts:        3,
		RetryInitialDelay:  50 * time.Millisecond,
		Location:           time.UTC,
	}
}

// Validate checks every field and reports all problems at once.
func (r Rules) Validate() error {
	var errs []error

	if err := r.Rates.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := r.Curve.Validate(); err != nil {
		errs = append(errs, err)
	}
	if r.RateLimit.MaxXP < 0 {
		errs = append(errs, fmt.Errorf("rate limit max_xp must not be negative, got %d", r.RateLimit.MaxXP))
	}
	if r.RateLimit.MaxXP > 0 && r.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate limit window must be positive when max_xp is set"))
	}
	if r.DedupRetention <= 0 {
		errs = append(errs, fmt.Errorf("dedup retention must be positive"))
	}
	if r.PersistenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("persistence timeout must be positive"))
	}
	if r.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", r.MaxAttempts))
	}
	if r.RetryInitialDelay < 0 {
		errs = append(errs, fmt.Errorf("retry initial delay must not be negative"))
	}

	if len(errs) > 0 {
		return shared.WrapError("leveling", "ValidateRules", shared.ErrInvalidConfig, "invalid rules", errors.Join(errs...))
	}
	return nil
}

// NewRules validates the rules and prepares the classifier and calculator.
// The returned snapshot must not be modified.
func NewRules(r Rules) (*Rules, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Location == nil {
		r.Location = time.UTC
	}

	keywords := make([]string, len(r.GratitudeKeywords))
	copy(keywords, r.GratitudeKeywords)
	r.GratitudeKeywords = keywords

	r.classifier = NewActivityClassifier(keywords)
	r.calculator = NewXPCalculator(r.Rates)
	return &r, nil
}

// MustRules is NewRules for static defaults. It panics on invalid rules.
func MustRules(r Rules) *Rules {
	rules, err := NewRules(r)
	if err != nil {
		panic(err)
	}
	return rules
}

// Classifier returns the snapshot's classifier.
func (r *Rules) Classifier() *ActivityClassifier {
	if r.classifier == nil {
		return NewActivityClassifier(r.GratitudeKeywords)
	}
	return r.classifier
}

// Calculator returns the snapshot's XP calculator.
func (r *Rules) Calculator() *XPCalculator {
	if r.calculator == nil {
		return NewXPCalculator(r.Rates)
	}
	return r.calculator
}
