package chat

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TypeDirect = "DIRECT"
	TypeGroup  = "GROUP"

	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Chat represents the chats table. Direct chats carry a DirectKey with a
// unique index so a pair of users can only ever own one direct chat.
type Chat struct {
	ID            uuid.UUID
	Type          string
	Name          sql.NullString
	DirectKey     sql.NullString `gorm:"uniqueIndex"`
	CreatedBy     uuid.NullUUID
	LastMessageID uuid.NullUUID
	LastMessageAt sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Members []Member
}

// Member represents the chat_members table.
type Member struct {
	ChatID   uuid.UUID `gorm:"primaryKey"`
	UserID   uuid.UUID `gorm:"primaryKey"`
	Role     string
	JoinedAt time.Time
	AddedBy  uuid.NullUUID
}

// Sequence represents the chat_sequences table, the per-chat message
// ordering counter.
type Sequence struct {
	ChatID       uuid.UUID `gorm:"primaryKey"`
	LastSequence int64
	UpdatedAt    time.Time
}

// DirectKey builds the canonical pair key for a direct chat. The key is
// order-independent so (a,b) and (b,a) land on the same row.
func DirectKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	if strings.Compare(ids[0], ids[1]) > 0 {
		ids[0], ids[1] = ids[1], ids[0]
	}
	return ids[0] + ":" + ids[1]
}

func (c Chat) IsGroup() bool {
	return c.Type == TypeGroup
}

func (Chat) TableName() string {
	return "chats"
}

func (Member) TableName() string {
	return "chat_members"
}

func (Sequence) TableName() string {
	return "chat_sequences"
}
