package achievement

import (
	"fmt"
	"sort"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog is an immutable, ordered set of definitions.
type Catalog struct {
	defs     []Definition
	byID     map[string]int
	trackers []Record
}

// NewCatalog validates the definitions and builds a catalog. IDs must be unique.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs: make([]Definition, 0, len(defs)),
		byID: make(map[string]int, len(defs)),
	}
	seenRecords := make(map[string]struct{})

	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, shared.WrapError("achievement", "Register", shared.ErrAlreadyExists,
				"duplicate achievement definition", fmt.Errorf("id %q", d.ID))
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)

		if t, ok := d.Condition.(recordTracker); ok {
			r := t.Tracked()
			if _, dup := seenRecords[r.Key]; !dup && r.Key != "" && r.Measure != nil {
				seenRecords[r.Key] = struct{}{}
				c.trackers = append(c.trackers, r)
			}
		}
	}
	return c, nil
}

// MustCatalog is NewCatalog for static catalogs. It panics on invalid input.
func MustCatalog(defs ...Definition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns every definition in catalog order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Get returns a definition by id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// ByCategory returns the definitions of one category in catalog order.
func (c *Catalog) ByCategory(category Category) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Records returns the chat records tracked by the catalog.
func (c *Catalog) Records() []Record {
	out := make([]Record, len(c.trackers))
	copy(out, c.trackers)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TIERS
// ══════════════════════════════════════════════════════════════════════════════

// Tier is one step of a tiered counter achievement.
type Tier struct {
	ID        string
	Title     string
	Emoji     string
	Threshold int64
}

// Tiered builds one definition per tier over the same counter. Tiers are
// sorted by threshold so that several tiers reached in one update unlock
// independently and in order.
func Tiered(category Category, counter leveling.Counter, describe string, tiers []Tier) []Definition {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	out := make([]Definition, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, Definition{
			ID:          t.ID,
			Title:       t.Title,
			Description: fmt.Sprintf(describe, t.Threshold),
			Emoji:       t.Emoji,
			Category:    category,
			Condition:   CounterAtLeast{Counter: counter, Threshold: t.Threshold},
		})
	}
	return out
}

// StreakTiers builds one definition per streak length.
func StreakTiers(tiers []Tier) []Definition {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	out := make([]Definition, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, Definition{
			ID:          t.ID,
			Title:       t.Title,
			Description: fmt.Sprintf("Write in the chat %d days in a row", t.Threshold),
			Emoji:       t.Emoji,
			Category:    CategoryStreak,
			Condition:   StreakAtLeast{Days: int(t.Threshold)},
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Chat records tracked by the default catalog.
var (
	RecordLongestMessage = Record{
		Key: "longest_message",
		Min: 200,
		Measure: func(m MessageContext) int64 {
			return int64(m.Facts.Length)
		},
	}

	RecordMostLinks = Record{
		Key: "most_links",
		Min: 2,
		Measure: func(m MessageContext) int64 {
			return int64(m.Facts.Links)
		},
	}
)

const (
	novelistMinLength  = 1000
	shoutingMinLetters = 20
	linkSpreeMinLinks  = 3
)

// DefaultDefinitions returns the built-in achievement definitions.
func DefaultDefinitions() []Definition {
	var defs []Definition

	// Activity volume
	defs = append(defs, Tiered(CategoryActivity, leveling.CounterMessages, "Send %d messages", []Tier{
		{ID: "first_message", Title: "Hello, World", Emoji: "👋", Threshold: 1},
		{ID: "messages_100", Title: "Chatterbox", Emoji: "💬", Threshold: 100},
		{ID: "messages_500", Title: "Talkative", Emoji: "🗣️", Threshold: 500},
		{ID: "messages_1000", Title: "Regular", Emoji: "📣", Threshold: 1000},
		{ID: "messages_5000", Title: "Voice of the Chat", Emoji: "🎙️", Threshold: 5000},
		{ID: "messages_10000", Title: "Living Legend", Emoji: "🏛️", Threshold: 10000},
	})...)

	// Streaks
	defs = append(defs, StreakTiers([]Tier{
		{ID: "streak_3", Title: "Warming Up", Emoji: "🔥", Threshold: 3},
		{ID: "streak_7", Title: "Week Without Breaks", Emoji: "📅", Threshold: 7},
		{ID: "streak_14", Title: "Two Weeks Strong", Emoji: "💪", Threshold: 14},
		{ID: "streak_30", Title: "Monthly Regular", Emoji: "🗓️", Threshold: 30},
		{ID: "streak_100", Title: "Unstoppable", Emoji: "☄️", Threshold: 100},
	})...)

	// Time of day and calendar
	defs = append(defs,
		Definition{
			ID:          "early_bird",
			Title:       "Early Bird",
			Description: "Send your first message of the day before 06:00",
			Emoji:       "🐦",
			Category:    CategoryTime,
			Condition:   TimeWindow{FromHour: 0, ToHour: 6, FirstMessageToday: true},
		},
		Definition{
			ID:          "night_owl",
			Title:       "Night Owl",
			Description: "Send a message between 00:00 and 04:00",
			Emoji:       "🦉",
			Category:    CategoryTime,
			Condition:   TimeWindow{FromHour: 0, ToHour: 4},
		},
		Definition{
			ID:          "weekend_warrior",
			Title:       "Weekend Warrior",
			Description: "Send a message on a weekend",
			Emoji:       "🏖️",
			Category:    CategoryTime,
			Condition:   Weekend{},
		},
		Definition{
			ID:          "new_year",
			Title:       "Happy New Year",
			Description: "Send a message on January 1st",
			Emoji:       "🎆",
			Category:    CategoryTime,
			Condition:   CalendarDay{Month: time.January, Day: 1},
		},
	)

	// Links
	defs = append(defs, Tiered(CategoryLinks, leveling.CounterLinks, "Share %d links", []Tier{
		{ID: "first_link", Title: "Link Dropper", Emoji: "🔗", Threshold: 1},
		{ID: "links_10", Title: "Curator", Emoji: "📎", Threshold: 10},
		{ID: "links_50", Title: "Librarian", Emoji: "📚", Threshold: 50},
		{ID: "links_100", Title: "Archivist", Emoji: "🗄️", Threshold: 100},
		{ID: "links_500", Title: "Search Engine", Emoji: "🔍", Threshold: 500},
	})...)

	// Media
	defs = append(defs, Tiered(CategoryMedia, leveling.CounterStickers, "Send %d stickers", []Tier{
		{ID: "first_sticker", Title: "Sticker Pack", Emoji: "🎭", Threshold: 1},
		{ID: "stickers_100", Title: "Sticker Maniac", Emoji: "🤪", Threshold: 100},
	})...)
	defs = append(defs, Tiered(CategoryMedia, leveling.CounterMedia, "Share %d photos, videos or files", []Tier{
		{ID: "first_media", Title: "Show and Tell", Emoji: "📸", Threshold: 1},
		{ID: "media_50", Title: "Photographer", Emoji: "🎞️", Threshold: 50},
	})...)

	// Social
	defs = append(defs, Tiered(CategorySocial, leveling.CounterThanksReceived, "Get thanked %d times", []Tier{
		{ID: "thanks_received_1", Title: "Helping Hand", Emoji: "🤝", Threshold: 1},
		{ID: "thanks_received_10", Title: "Helpful", Emoji: "🙌", Threshold: 10},
		{ID: "thanks_received_50", Title: "Go-To Person", Emoji: "🦸", Threshold: 50},
		{ID: "thanks_received_100", Title: "Guardian Angel", Emoji: "😇", Threshold: 100},
	})...)
	defs = append(defs, Tiered(CategorySocial, leveling.CounterThanksGiven, "Thank others %d times", []Tier{
		{ID: "thanks_given_1", Title: "Polite", Emoji: "🙏", Threshold: 1},
		{ID: "thanks_given_10", Title: "Grateful", Emoji: "💐", Threshold: 10},
		{ID: "thanks_given_50", Title: "Appreciator", Emoji: "💝", Threshold: 50},
	})...)

	// Rare and novelty
	defs = append(defs,
		Definition{
			ID:          "novelist",
			Title:       "Novelist",
			Description: fmt.Sprintf("Write a message of at least %d characters", novelistMinLength),
			Emoji:       "📜",
			Category:    CategoryRare,
			Condition: MessagePredicate{Name: "novelist", Fn: func(m MessageContext) bool {
				return m.Facts.Length >= novelistMinLength
			}},
		},
		Definition{
			ID:          "caps_lock",
			Title:       "CAPS LOCK IS STUCK",
			Description: fmt.Sprintf("Write a message of at least %d letters, all upper case", shoutingMinLetters),
			Emoji:       "📢",
			Category:    CategoryRare,
			Condition: MessagePredicate{Name: "caps_lock", Fn: func(m MessageContext) bool {
				return m.Facts.Shouting(shoutingMinLetters)
			}},
		},
		Definition{
			ID:          "link_spree",
			Title:       "Link Spree",
			Description: fmt.Sprintf("Share %d or more links in one message", linkSpreeMinLinks),
			Emoji:       "🌐",
			Category:    CategoryRare,
			Condition: MessagePredicate{Name: "link_spree", Fn: func(m MessageContext) bool {
				return m.Facts.Links >= linkSpreeMinLinks
			}},
		},
		Definition{
			ID:          "longest_message",
			Title:       "Wall of Text",
			Description: "Write the longest message in the chat's history",
			Emoji:       "🧱",
			Category:    CategoryRare,
			Condition:   RecordHolder{Record: RecordLongestMessage},
		},
		Definition{
			ID:          "most_links",
			Title:       "Hyperlinked",
			Description: "Share the most links in a single message in the chat's history",
			Emoji:       "🕸️",
			Category:    CategoryRare,
			Condition:   RecordHolder{Record: RecordMostLinks},
		},
	)

	// Levels
	defs = append(defs, Tiered(CategoryLevel, leveling.CounterLevel, "Reach level %d", []Tier{
		{ID: "level_5", Title: "Rising Star", Emoji: "⭐", Threshold: 5},
		{ID: "level_10", Title: "Veteran", Emoji: "🌟", Threshold: 10},
		{ID: "level_15", Title: "Elite", Emoji: "💫", Threshold: 15},
		{ID: "level_20", Title: "Chat Royalty", Emoji: "👑", Threshold: 20},
	})...)

	return defs
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultDefinitions()...)
}
