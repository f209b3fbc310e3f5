package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDate_UsesLocationBoundary(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)

	// 22:30 UTC is already the next day at UTC+3.
	ts := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), LocalDate(ts, loc))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), LocalDate(ts, time.UTC))
}

func TestDaysBetween(t *testing.T) {
	d1 := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, DaysBetween(d1, d2))
	assert.Equal(t, -2, DaysBetween(d2, d1))
	assert.Equal(t, 0, DaysBetween(d1, d1))
}

func TestIsConsecutiveDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	a := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC) // 23:00 local
	b := time.Date(2024, 5, 1, 22, 30, 0, 0, time.UTC) // 00:30 local, next day

	assert.True(t, IsConsecutiveDay(a, b, loc))
	assert.False(t, IsSameDay(a, b, loc))
	assert.True(t, IsSameDay(a, b, time.UTC))
}

func TestHourInRange(t *testing.T) {
	assert.True(t, HourInRange(0, 0, 6))
	assert.True(t, HourInRange(5, 0, 6))
	assert.False(t, HourInRange(6, 0, 6))
	assert.True(t, HourInRange(23, 22, 4))
	assert.True(t, HourInRange(3, 22, 4))
	assert.False(t, HourInRange(12, 22, 4))
	assert.False(t, HourInRange(5, 5, 5))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
}
