package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

// Room-scoped event types; the wire name doubles as the socket frame type.
const (
	EventMessageNew   Type = "message:new"
	EventTypingStart  Type = "typing:start"
	EventTypingStop   Type = "typing:stop"
	EventReactionDiff Type = "reaction:diff"
	EventGroupUpdated Type = "group:updated"
)

// MessageNew announces a persisted message. The server-assigned seq and
// timestamp are authoritative.
type MessageNew struct {
	ChatID    uuid.UUID `json:"chat_id"`
	MessageID uuid.UUID `json:"message_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

type Typing struct {
	ChatID uuid.UUID `json:"chat_id"`
	UserID uuid.UUID `json:"user_id"`
}

// ReactionDiff is applied incrementally by clients; no refetch.
type ReactionDiff struct {
	ChatID     uuid.UUID `json:"chat_id"`
	MessageID  uuid.UUID `json:"message_id"`
	Emoji      string    `json:"emoji"`
	UserID     uuid.UUID `json:"user_id"`
	NowPresent bool      `json:"now_present"`
}

// GroupUpdated carries the fresh membership view after any group
// mutation. Removed lists users whose live connections must leave the
// room.
type GroupUpdated struct {
	ChatID  uuid.UUID   `json:"chat_id"`
	Name    *string     `json:"name,omitempty"`
	Members []uuid.UUID `json:"members,omitempty"`
	Admins  []uuid.UUID `json:"admins,omitempty"`
	Removed []uuid.UUID `json:"removed,omitempty"`
	Added   []uuid.UUID `json:"added,omitempty"`
}
