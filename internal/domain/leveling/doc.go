// Package leveling contains the domain model that turns chat activity into
// experience points and levels.
//
// The package defines:
//
//   - Inbound value: MessageEvent, a transport-agnostic description of one message
//   - ActivityClassifier: MessageEvent -> typed activity signals
//   - XPCalculator: signals -> per-user XP deltas and raw counter deltas
//   - LevelCurve: XP -> level, and level transition detection
//   - UserChatStats: per (user, chat) progression state and its update rule
//   - Rules: an immutable configuration snapshot shared by one Process call
//   - Ports implemented in infrastructure: StatsRepository, StatsReader,
//     EventClaimer, XPLimiter
//
// # Architectural principles
//
//  1. Zero infrastructure dependencies. The only external import is
//     golang.org/x/text for Unicode case folding.
//  2. Dependency inversion. Persistence and rate limiting are interfaces here
//     and implemented by infrastructure adapters.
//  3. Pure functions where possible. Classification, XP calculation and level
//     computation never touch I/O, so they are deterministic and cheap to test.
//
// # Level curve
//
// threshold(1) = 0, threshold(2) = base_xp, threshold(n) = threshold(n-1) * multiplier.
// With the defaults (50, 2.0) the thresholds are 0, 50, 100, 200, 400, 800 and so on:
//
//	curve := DefaultLevelCurve()
//	curve.Level(52)                 // 2
//	curve.CheckLevelUp(45, 410)     // 5, true (final level only)
//
// # Classification
//
//	rules, _ := NewRules(DefaultRules())
//	signals := rules.Classifier().Classify(event)
//	xp := rules.Calculator().Calculate(signals)
//	counters := CountersFor(signals)
package leveling
