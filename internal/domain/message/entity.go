package message

import (
	"time"

	"github.com/google/uuid"
)

// Message represents the messages table. Content is immutable after
// creation; Seq is the per-chat ordering key assigned at persistence time.
type Message struct {
	ID        uuid.UUID
	ChatID    uuid.UUID `gorm:"index:idx_messages_chat_seq,unique"`
	SenderID  uuid.UUID
	Seq       int64 `gorm:"index:idx_messages_chat_seq,unique"`
	Content   string
	CreatedAt time.Time
}

// Reaction represents the message_reactions table. The composite primary
// key makes a user's state for one emoji on one message binary: the row
// exists or it does not, so a toggle is an insert or a delete.
type Reaction struct {
	MessageID uuid.UUID `gorm:"primaryKey"`
	UserID    uuid.UUID `gorm:"primaryKey"`
	Emoji     string    `gorm:"primaryKey;size:32"`
	CreatedAt time.Time
}

// ReactionGroup is the aggregated view of one emoji on one message,
// returned by the history API.
type ReactionGroup struct {
	Emoji string      `json:"emoji"`
	Count int         `json:"count"`
	Users []uuid.UUID `json:"users"`
}

func (Message) TableName() string {
	return "messages"
}

func (Reaction) TableName() string {
	return "message_reactions"
}
