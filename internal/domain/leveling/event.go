package leveling

import (
	"fmt"
	"time"

	"github.com/vo1dee/PsychochauffeurBot-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE EVENT
// ══════════════════════════════════════════════════════════════════════════════

// MediaKind describes non-text content attached to a message.
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaSticker   MediaKind = "sticker"
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
	MediaVoice     MediaKind = "voice"
	MediaDocument  MediaKind = "document"
)

// IsMedia reports whether the kind counts as shared media.
// Stickers are tracked separately.
func (k MediaKind) IsMedia() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaAnimation, MediaVoice, MediaDocument:
		return true
	default:
		return false
	}
}

// MessageEvent is one user-authored chat message, independent of the transport
// that delivered it.
type MessageEvent struct {
	// EventID uniquely identifies the logical send. Redeliveries carry the same id.
	EventID string

	// UserID is the sender.
	UserID int64

	// ChatID is the chat the message was sent to.
	ChatID int64

	// Username is the sender's handle without the leading "@", if known.
	Username string

	// Text is the message text or media caption.
	Text string

	// ReplyToUserID is the author of the replied-to message, zero if none.
	ReplyToUserID int64

	// MentionedUserIDs lists users mentioned in the text.
	MentionedUserIDs []int64

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// MediaKind describes attached media.
	MediaKind MediaKind
}

// Validate checks the fields the engine relies on.
func (e MessageEvent) Validate() error {
	if e.EventID == "" {
		return shared.ErrInvalidEventID
	}
	if e.UserID == 0 {
		return shared.ErrInvalidUserID
	}
	if e.ChatID == 0 {
		return shared.ErrInvalidChatID
	}
	if e.Timestamp.IsZero() {
		return shared.ErrMissingTimestamp
	}
	return nil
}

// SenderKey returns the (user, chat) key of the sender.
func (e MessageEvent) SenderKey() MemberKey {
	return MemberKey{UserID: e.UserID, ChatID: e.ChatID}
}

// MemberKey identifies one user inside one chat. All progression state is
// sharded by this key.
type MemberKey struct {
	UserID int64
	ChatID int64
}

// String implements fmt.Stringer.
func (k MemberKey) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}
