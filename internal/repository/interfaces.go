package repository

import (
	"context"
	"time"

	"pulsechat/internal/domain/chat"
	"pulsechat/internal/domain/message"
	"pulsechat/internal/domain/user"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type ChatRepository interface {
	Create(ctx context.Context, c *chat.Chat, members []chat.Member) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.Chat, error)
	GetByDirectKey(ctx context.Context, key string) (chat.Chat, error)
	Rename(ctx context.Context, chatID uuid.UUID, name string) error

	// ListForUser orders by latest-message timestamp descending; chats
	// without messages fall back to creation time.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]chat.Chat, error)
	ListChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	GetMember(ctx context.Context, chatID, userID uuid.UUID) (chat.Member, error)
	GetMembers(ctx context.Context, chatID uuid.UUID) ([]chat.Member, error)
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, m *chat.Member) error

	// RemoveMember deletes the membership row unless the target is the
	// chat's last admin, in which case it fails with ErrConflict. Removing
	// an absent member reports removed=false with no error.
	RemoveMember(ctx context.Context, chatID, userID uuid.UUID) (removed bool, err error)
	PromoteMember(ctx context.Context, chatID, userID uuid.UUID) error

	// NextSequence atomically allocates the next per-chat sequence number.
	NextSequence(ctx context.Context, chatID uuid.UUID) (int64, error)
	SetLastMessage(ctx context.Context, chatID, messageID uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)

	// ListBefore returns up to limit messages with seq < beforeSeq in
	// ascending seq order; beforeSeq <= 0 means "from the latest".
	ListBefore(ctx context.Context, chatID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error)
	ListBySeqRange(ctx context.Context, chatID uuid.UUID, fromSeq, toSeq int64) ([]message.Message, error)

	// ToggleReaction flips the (message,user,emoji) reaction row and
	// reports whether it is present after the call.
	ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (nowPresent bool, err error)
	GetReactions(ctx context.Context, messageID uuid.UUID) ([]message.ReactionGroup, error)
}
