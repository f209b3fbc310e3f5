package leveling

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP RATES
// ══════════════════════════════════════════════════════════════════════════════

// Rates is the XP credited per signal kind.
type Rates struct {
	BaseMessage int64
	LinkShared  int64
	ThanksGiven int64
	StickerSent int64
	MediaShared int64
}

// DefaultRates returns the default XP rates.
func DefaultRates() Rates {
	return Rates{
		BaseMessage: 1,
		LinkShared:  3,
		ThanksGiven: 5,
	}
}

// Validate checks that no rate is negative.
func (r Rates) Validate() error {
	var errs []error
	check := func(name string, v int64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("rate %s must not be negative, got %d", name, v))
		}
	}
	check("base_message", r.BaseMessage)
	check("link_shared", r.LinkShared)
	check("thanks_given", r.ThanksGiven)
	check("sticker_sent", r.StickerSent)
	check("media_shared", r.MediaShared)
	return errors.Join(errs...)
}

// For returns the XP for a signal kind.
func (r Rates) For(kind SignalKind) int64 {
	switch kind {
	case SignalBaseMessage:
		return r.BaseMessage
	case SignalLinkShared:
		return r.LinkShared
	case SignalThanksGiven:
		return r.ThanksGiven
	case SignalStickerSent:
		return r.StickerSent
	case SignalMediaShared:
		return r.MediaShared
	default:
		return 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// XP CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// XPCalculator maps activity signals to per-user XP deltas.
type XPCalculator struct {
	rates Rates
}

// NewXPCalculator creates a calculator with the given rates.
func NewXPCalculator(rates Rates) *XPCalculator {
	return &XPCalculator{rates: rates}
}

// Rates returns the configured rates.
func (c *XPCalculator) Rates() Rates {
	return c.rates
}

// Calculate returns the total XP delta per affected user. Every user credited
// by at least one signal appears in the result, even with a zero delta.
func (c *XPCalculator) Calculate(signals []Signal) map[int64]int64 {
	out := make(map[int64]int64, len(signals))
	for _, s := range signals {
		out[s.UserID] += c.rates.For(s.Kind)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// RAW COUNTERS
// ══════════════════════════════════════════════════════════════════════════════

// CounterDeltas are increments to the raw activity counters. They are never
// rate limited.
type CounterDeltas struct {
	Messages       int64
	Links          int64
	ThanksReceived int64
	ThanksGiven    int64
	Stickers       int64
	Media          int64
}

// Add returns the sum of two deltas.
func (c CounterDeltas) Add(o CounterDeltas) CounterDeltas {
	return CounterDeltas{
		Messages:       c.Messages + o.Messages,
		Links:          c.Links + o.Links,
		ThanksReceived: c.ThanksReceived + o.ThanksReceived,
		ThanksGiven:    c.ThanksGiven + o.ThanksGiven,
		Stickers:       c.Stickers + o.Stickers,
		Media:          c.Media + o.Media,
	}
}

// IsZero reports whether no counter changes.
func (c CounterDeltas) IsZero() bool {
	return c == CounterDeltas{}
}

func (c CounterDeltas) hasNegative() bool {
	return c.Messages < 0 || c.Links < 0 || c.ThanksReceived < 0 ||
		c.ThanksGiven < 0 || c.Stickers < 0 || c.Media < 0
}

// CountersFor returns raw counter increments per affected user. A thanks
// signal increments thanks_received for the recipient and thanks_given for
// the sender.
func CountersFor(signals []Signal) map[int64]CounterDeltas {
	out := make(map[int64]CounterDeltas, len(signals))
	bump := func(user int64, d CounterDeltas) {
		out[user] = out[user].Add(d)
	}

	for _, s := range signals {
		switch s.Kind {
		case SignalBaseMessage:
			bump(s.UserID, CounterDeltas{Messages: 1})
		case SignalLinkShared:
			bump(s.UserID, CounterDeltas{Links: 1})
		case SignalThanksGiven:
			bump(s.UserID, CounterDeltas{ThanksReceived: 1})
			bump(s.ActorID, CounterDeltas{ThanksGiven: 1})
		case SignalStickerSent:
			bump(s.UserID, CounterDeltas{Stickers: 1})
		case SignalMediaShared:
			bump(s.UserID, CounterDeltas{Media: 1})
		}
	}
	return out
}
