package leveling

import (
	"errors"
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CURVE
// ══════════════════════════════════════════════════════════════════════════════

// MaxLevel bounds level computation for extreme XP values.
const MaxLevel = 1000

const maxXPFloat = float64(math.MaxInt64)

// LevelCurve is the exponential XP threshold function.
//
//	threshold(1) = 0
//	threshold(2) = BaseXP
//	threshold(n) = threshold(n-1) * Multiplier
type LevelCurve struct {
	BaseXP     int64
	Multiplier float64
}

// DefaultLevelCurve returns the default curve: 0, 50, 100, 200, 400, ...
func DefaultLevelCurve() LevelCurve {
	return LevelCurve{
		BaseXP:     50,
		Multiplier: 2.0,
	}
}

// Validate checks the curve is strictly increasing.
func (c LevelCurve) Validate() error {
	var errs []error
	if c.BaseXP <= 0 {
		errs = append(errs, fmt.Errorf("base_xp must be positive, got %d", c.BaseXP))
	}
	if !(c.Multiplier > 1) || math.IsInf(c.Multiplier, 0) {
		errs = append(errs, fmt.Errorf("multiplier must be greater than 1, got %v", c.Multiplier))
	}
	return errors.Join(errs...)
}

// Threshold returns the minimum cumulative XP for the level.
// Thresholds that overflow int64 are clamped to math.MaxInt64.
func (c LevelCurve) Threshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	t := float64(c.BaseXP)
	for n := 3; n <= level; n++ {
		t *= c.Multiplier
		if t >= maxXPFloat {
			return math.MaxInt64
		}
	}
	return int64(t)
}

// Level returns the largest level whose threshold does not exceed xp.
func (c LevelCurve) Level(xp int64) int {
	if xp <= 0 || c.BaseXP <= 0 {
		return 1
	}

	level := 1
	t := float64(c.BaseXP)
	for level < MaxLevel {
		if t >= maxXPFloat || int64(t) > xp {
			break
		}
		level++
		t *= c.Multiplier
	}
	return level
}

// CheckLevelUp returns the level reached after moving from oldXP to newXP, and
// true if it is higher than before. Multi-level jumps report only the final level.
func (c LevelCurve) CheckLevelUp(oldXP, newXP int64) (int, bool) {
	newLevel := c.Level(newXP)
	if newLevel > c.Level(oldXP) {
		return newLevel, true
	}
	return 0, false
}

// LevelProgress describes where an XP total sits on the curve.
type LevelProgress struct {
	Level         int
	XP            int64
	LevelStartXP  int64
	NextLevelXP   int64
	XPToNextLevel int64
}

// Progress returns the level and the XP bounds around it.
func (c LevelCurve) Progress(xp int64) LevelProgress {
	level := c.Level(xp)
	next := c.Threshold(level + 1)
	remaining := next - xp
	if remaining < 0 {
		remaining = 0
	}
	return LevelProgress{
		Level:         level,
		XP:            xp,
		LevelStartXP:  c.Threshold(level),
		NextLevelXP:   next,
		XPToNextLevel: remaining,
	}
}
