package leveling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	alice int64 = 1001
	bob   int64 = 1002
	carol int64 = 1003
	chat  int64 = -500
)

func msg(text string) MessageEvent {
	return MessageEvent{
		EventID:   "evt-1",
		UserID:    alice,
		ChatID:    chat,
		Username:  "alice",
		Text:      text,
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func kinds(signals []Signal) []SignalKind {
	out := make([]SignalKind, 0, len(signals))
	for _, s := range signals {
		out = append(out, s.Kind)
	}
	return out
}

func TestClassify_BaseMessageAlways(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)

	signals := c.Classify(msg(""))

	assert.Equal(t, []Signal{{Kind: SignalBaseMessage, UserID: alice, ActorID: alice}}, signals)
}

func TestClassify_Link(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)

	assert.Contains(t, kinds(c.Classify(msg("look https://example.com"))), SignalLinkShared)
	assert.Contains(t, kinds(c.Classify(msg("HTTP://EXAMPLE.COM"))), SignalLinkShared)
	assert.NotContains(t, kinds(c.Classify(msg("example.com without scheme"))), SignalLinkShared)
}

func TestClassify_ThanksToMention(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)
	event := msg("thanks @bob")
	event.MentionedUserIDs = []int64{bob}

	signals := c.Classify(event)

	assert.Equal(t, []Signal{
		{Kind: SignalBaseMessage, UserID: alice, ActorID: alice},
		{Kind: SignalThanksGiven, UserID: bob, ActorID: alice},
	}, signals)
}

func TestClassify_SelfThanksIgnored(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)
	event := msg("thanks @alice")
	event.MentionedUserIDs = []int64{alice}
	event.ReplyToUserID = alice

	assert.Equal(t, []SignalKind{SignalBaseMessage}, kinds(c.Classify(event)))
}

func TestClassify_KeywordWithoutRecipient(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)

	assert.Equal(t, []SignalKind{SignalBaseMessage}, kinds(c.Classify(msg("thank you all"))))
}

func TestClassify_CaseInsensitiveSubstring(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)

	for _, text := range []string{"ДЯКУЮ!!!", "Дяки, друже", "ThAnKsSs", "спс", "10x mate", "СпАсИбІ"} {
		event := msg(text)
		event.ReplyToUserID = bob
		assert.Contains(t, kinds(c.Classify(event)), SignalThanksGiven, text)
	}

	event := msg("hello there")
	event.ReplyToUserID = bob
	assert.NotContains(t, kinds(c.Classify(event)), SignalThanksGiven)
}

func TestClassify_FanOutToDistinctRecipients(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)
	event := msg("дякую @bob @carol @bob")
	event.ReplyToUserID = bob
	event.MentionedUserIDs = []int64{bob, carol, bob, alice, 0}

	var recipients []int64
	for _, s := range c.Classify(event) {
		if s.Kind == SignalThanksGiven {
			recipients = append(recipients, s.UserID)
			assert.Equal(t, alice, s.ActorID)
		}
	}

	assert.Equal(t, []int64{bob, carol}, recipients)
}

func TestClassify_MalformedTextKeepsBaseMessage(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)
	event := msg("thanks https://x.y \xff\xfe")
	event.ReplyToUserID = bob

	assert.Equal(t, []SignalKind{SignalBaseMessage}, kinds(c.Classify(event)))
}

func TestClassify_Media(t *testing.T) {
	c := NewActivityClassifier(nil)

	event := msg("")
	event.MediaKind = MediaSticker
	assert.Equal(t, []SignalKind{SignalBaseMessage, SignalStickerSent}, kinds(c.Classify(event)))

	event.MediaKind = MediaPhoto
	assert.Equal(t, []SignalKind{SignalBaseMessage, SignalMediaShared}, kinds(c.Classify(event)))
}

func TestAnalyze(t *testing.T) {
	c := NewActivityClassifier(DefaultGratitudeKeywords)

	facts := c.Analyze("see https://a.b and http://c.d")
	assert.Equal(t, 2, facts.Links)
	assert.False(t, facts.Gratitude)

	facts = c.Analyze("WHY IS NOBODY ANSWERING ME")
	assert.True(t, facts.Shouting(20))
	assert.False(t, facts.Shouting(30))

	facts = c.Analyze("Привіт")
	assert.Equal(t, 6, facts.Length)
	assert.False(t, facts.Shouting(3))

	assert.Equal(t, TextFacts{}, c.Analyze("\xff"))
}

func TestNewActivityClassifier_NormalizesKeywords(t *testing.T) {
	c := NewActivityClassifier([]string{" Thanks ", "THANKS", "", "Дякую"})

	assert.Equal(t, []string{"thanks", "дякую"}, c.Keywords())
}
