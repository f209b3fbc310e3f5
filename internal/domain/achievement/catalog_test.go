package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.GreaterOrEqual(t, c.Len(), 30)
	for _, category := range Categories() {
		assert.NotEmpty(t, c.ByCategory(category), "category %s", category)
	}

	for _, d := range c.All() {
		assert.NotEmpty(t, d.Emoji, d.ID)
		assert.NotEmpty(t, d.Description, d.ID)
	}

	keys := make([]string, 0)
	for _, r := range c.Records() {
		keys = append(keys, r.Key)
	}
	assert.ElementsMatch(t, []string{"longest_message", "most_links"}, keys)
}

func TestNewCatalog_RejectsDuplicatesAndInvalid(t *testing.T) {
	cond := CounterAtLeast{Counter: leveling.CounterMessages, Threshold: 1}

	_, err := NewCatalog(
		Definition{ID: "a", Title: "A", Condition: cond},
		Definition{ID: "a", Title: "A again", Condition: cond},
	)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	_, err = NewCatalog(Definition{ID: "b", Title: "B"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewCatalog(Definition{Title: "no id", Condition: cond})
	assert.Error(t, err)
}

func TestTiered_SortsByThreshold(t *testing.T) {
	defs := Tiered(CategorySocial, leveling.CounterThanksReceived, "Get thanked %d times", []Tier{
		{ID: "t50", Title: "50", Threshold: 50},
		{ID: "t1", Title: "1", Threshold: 1},
	})

	require.Len(t, defs, 2)
	assert.Equal(t, "t1", defs[0].ID)
	assert.Equal(t, "Get thanked 1 times", defs[0].Description)
	assert.Equal(t, CategorySocial, defs[1].Category)
}

func TestCatalog_Get(t *testing.T) {
	c := DefaultCatalog()

	d, ok := c.Get("early_bird")
	require.True(t, ok)
	assert.Equal(t, CategoryTime, d.Category)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestDefaultCatalog_EarlyBird(t *testing.T) {
	d, _ := DefaultCatalog().Get("early_bird")

	at := func(hour int, first bool) Input {
		return Input{Message: &MessageContext{
			LocalTime:  time.Date(2024, 3, 4, hour, 30, 0, 0, time.UTC),
			FirstToday: first,
		}}
	}

	met, err := d.Condition.Met(at(5, true))
	require.NoError(t, err)
	assert.True(t, met)

	met, _ = d.Condition.Met(at(5, false))
	assert.False(t, met)

	met, _ = d.Condition.Met(at(6, true))
	assert.False(t, met)

	met, _ = d.Condition.Met(Input{})
	assert.False(t, met)
}
