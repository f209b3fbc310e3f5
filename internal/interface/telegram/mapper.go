// Package telegram adapts Telegram updates into leveling message events and
// feeds them to the orchestrator.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/leveling"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/infrastructure/external/telegram"
	"github.com/vo1dee/PsychochauffeurBot-sub001/pkg/logger"
)

// UsernameResolver looks up a chat member by handle.
type UsernameResolver interface {
	FindByUsername(ctx context.Context, chatID int64, username string) (leveling.UserChatStats, error)
}

// Mapper turns Telegram updates into MessageEvents.
type Mapper struct {
	resolver UsernameResolver
	logger   *slog.Logger
}

// NewMapper creates a Mapper. A nil resolver leaves @username mentions
// unresolved.
func NewMapper(resolver UsernameResolver, log *slog.Logger) *Mapper {
	if log == nil {
		log = slog.Default()
	}
	return &Mapper{resolver: resolver, logger: log}
}

// EventID builds the idempotency key of a Telegram message. Telegram
// redelivers the same (chat, message) pair for the same send.
func EventID(chatID, messageID int64) string {
	return fmt.Sprintf("tg:%d:%d", chatID, messageID)
}

// Map converts an update. It returns false for updates the engine ignores:
// edits, bot authors, private chats and service messages without a sender.
func (m *Mapper) Map(ctx context.Context, update *telegram.Update) (leveling.MessageEvent, bool) {
	if update == nil || update.Message == nil {
		return leveling.MessageEvent{}, false
	}
	msg := update.Message
	if msg.From == nil || msg.From.IsBot || !telegram.IsGroupChat(msg) {
		return leveling.MessageEvent{}, false
	}

	text, entities := msg.Text, msg.Entities
	if text == "" {
		text, entities = msg.Caption, msg.CaptionEntities
	}

	event := leveling.MessageEvent{
		EventID:          EventID(msg.Chat.ID, msg.MessageID),
		UserID:           msg.From.ID,
		ChatID:           msg.Chat.ID,
		Username:         msg.From.Username,
		Text:             text,
		MentionedUserIDs: m.mentions(ctx, msg.Chat.ID, text, entities),
		Timestamp:        time.Unix(msg.Date, 0).UTC(),
		MediaKind:        mediaKind(msg),
	}
	if reply := msg.ReplyToMessage; reply != nil && reply.From != nil && !reply.From.IsBot {
		event.ReplyToUserID = reply.From.ID
	}
	return event, true
}

// mentions collects mentioned user ids in text order without duplicates.
func (m *Mapper) mentions(ctx context.Context, chatID int64, text string, entities []telegram.MessageEntity) []int64 {
	var (
		ids  []int64
		seen = make(map[int64]bool)
		u16  []uint16
	)
	add := func(id int64) {
		if id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, e := range entities {
		switch e.Type {
		case "text_mention":
			if e.User != nil && !e.User.IsBot {
				add(e.User.ID)
			}
		case "mention":
			if m.resolver == nil {
				continue
			}
			if u16 == nil {
				u16 = utf16.Encode([]rune(text))
			}
			handle := entityText(u16, e)
			if handle == "" {
				continue
			}
			stats, err := m.resolver.FindByUsername(ctx, chatID, handle)
			if err != nil {
				if !shared.IsNotFound(err) {
					m.logger.Warn("failed to resolve mention",
						logger.ChatID(chatID),
						slog.String("username", handle),
						logger.Err(err),
					)
				}
				continue
			}
			add(stats.UserID)
		}
	}
	return ids
}

// entityText extracts an entity's text. Offsets count UTF-16 code units.
func entityText(u16 []uint16, e telegram.MessageEntity) string {
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(u16) {
		return ""
	}
	s := string(utf16.Decode(u16[e.Offset : e.Offset+e.Length]))
	return strings.TrimPrefix(s, "@")
}

func mediaKind(msg *telegram.Message) leveling.MediaKind {
	switch {
	case msg.Sticker != nil:
		return leveling.MediaSticker
	case len(msg.Photo) > 0:
		return leveling.MediaPhoto
	case msg.Video != nil:
		return leveling.MediaVideo
	case msg.Animation != nil:
		return leveling.MediaAnimation
	case msg.Voice != nil:
		return leveling.MediaVoice
	case msg.Document != nil:
		return leveling.MediaDocument
	default:
		return leveling.MediaNone
	}
}
