package leveling

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY SIGNALS
// ══════════════════════════════════════════════════════════════════════════════

// SignalKind is the type of an activity signal.
type SignalKind string

const (
	// SignalBaseMessage is emitted for every message.
	SignalBaseMessage SignalKind = "base_message"
	// SignalLinkShared is emitted when the text contains an http(s) URL.
	SignalLinkShared SignalKind = "link_shared"
	// SignalThanksGiven is emitted once per thanked recipient.
	SignalThanksGiven SignalKind = "thanks_given"
	// SignalStickerSent is emitted for sticker messages.
	SignalStickerSent SignalKind = "sticker_sent"
	// SignalMediaShared is emitted for photo, video, voice and document messages.
	SignalMediaShared SignalKind = "media_shared"
)

// Signal is a typed classification of one message.
type Signal struct {
	// Kind is the signal type.
	Kind SignalKind
	// UserID is the credited user: the sender, or the recipient for thanks.
	UserID int64
	// ActorID is the message sender.
	ActorID int64
}

// DefaultGratitudeKeywords are matched as case-insensitive substrings.
var DefaultGratitudeKeywords = []string{
	"thanks",
	"thank you",
	"thx",
	"дякую",
	"дяки",
	"дякс",
	"спасибі",
	"спасибо",
	"спс",
	"10x",
}

var linkPrefixes = []string{"http://", "https://"}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// ActivityClassifier turns one MessageEvent into activity signals.
// It is immutable after construction and safe for concurrent use.
type ActivityClassifier struct {
	keywords []string
}

// NewActivityClassifier creates a classifier for the given gratitude keywords.
// Keywords are case folded once; empty entries are ignored.
func NewActivityClassifier(keywords []string) *ActivityClassifier {
	fold := cases.Fold()
	folded := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		f := fold.String(kw)
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		folded = append(folded, f)
	}
	return &ActivityClassifier{keywords: folded}
}

// Keywords returns the folded gratitude keywords.
func (c *ActivityClassifier) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// Classify returns every signal produced by the message. BaseMessage is always
// present. Text-derived signals are dropped when the text cannot be analyzed.
func (c *ActivityClassifier) Classify(event MessageEvent) []Signal {
	sender := event.UserID
	signals := []Signal{{Kind: SignalBaseMessage, UserID: sender, ActorID: sender}}

	switch {
	case event.MediaKind == MediaSticker:
		signals = append(signals, Signal{Kind: SignalStickerSent, UserID: sender, ActorID: sender})
	case event.MediaKind.IsMedia():
		signals = append(signals, Signal{Kind: SignalMediaShared, UserID: sender, ActorID: sender})
	}

	facts, ok := c.analyze(event.Text)
	if !ok {
		return signals
	}

	if facts.Links > 0 {
		signals = append(signals, Signal{Kind: SignalLinkShared, UserID: sender, ActorID: sender})
	}

	if facts.Gratitude {
		for _, recipient := range Recipients(event) {
			signals = append(signals, Signal{Kind: SignalThanksGiven, UserID: recipient, ActorID: sender})
		}
	}

	return signals
}

// TextFacts are message-level measurements used by message-scoped achievements.
type TextFacts struct {
	// Length is the text length in runes.
	Length int
	// Links is the number of http(s) URLs.
	Links int
	// Letters is the number of letters.
	Letters int
	// Upper is the number of upper case letters.
	Upper int
	// Gratitude reports whether a gratitude keyword is present.
	Gratitude bool
}

// Shouting reports a message written entirely in upper case with at least
// minLetters letters.
func (f TextFacts) Shouting(minLetters int) bool {
	return f.Letters >= minLetters && f.Upper == f.Letters
}

// Analyze measures the text. Malformed text yields zero facts.
func (c *ActivityClassifier) Analyze(text string) TextFacts {
	facts, _ := c.analyze(text)
	return facts
}

// analyze never panics; a failure is reported as ok == false.
func (c *ActivityClassifier) analyze(text string) (facts TextFacts, ok bool) {
	if text == "" {
		return TextFacts{}, true
	}
	if !utf8.ValidString(text) {
		return TextFacts{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			facts, ok = TextFacts{}, false
		}
	}()

	folded := cases.Fold().String(text)

	for _, r := range text {
		facts.Length++
		if unicode.IsLetter(r) {
			facts.Letters++
			if unicode.IsUpper(r) {
				facts.Upper++
			}
		}
	}

	for _, prefix := range linkPrefixes {
		facts.Links += strings.Count(folded, prefix)
	}

	for _, kw := range c.keywords {
		if strings.Contains(folded, kw) {
			facts.Gratitude = true
			break
		}
	}

	return facts, true
}

// Recipients returns the distinct users a message is addressed to: the reply
// target first, then mentions in order. The sender and zero ids are excluded.
func Recipients(event MessageEvent) []int64 {
	seen := make(map[int64]struct{}, len(event.MentionedUserIDs)+1)
	var out []int64

	add := func(id int64) {
		if id == 0 || id == event.UserID {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	add(event.ReplyToUserID)
	for _, id := range event.MentionedUserIDs {
		add(id)
	}
	return out
}
