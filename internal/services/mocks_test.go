package services

import (
	"context"
	"sync"
	"time"

	"pulsechat/internal/domain/chat"
	"pulsechat/internal/domain/message"
	"pulsechat/internal/domain/user"
	"pulsechat/internal/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, u *user.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(user.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (user.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(user.User), args.Error(1)
}

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Create(ctx context.Context, c *chat.Chat, members []chat.Member) error {
	args := m.Called(ctx, c, members)
	return args.Error(0)
}

func (m *MockChatRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Chat, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(chat.Chat), args.Error(1)
}

func (m *MockChatRepository) GetByDirectKey(ctx context.Context, key string) (chat.Chat, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(chat.Chat), args.Error(1)
}

func (m *MockChatRepository) Rename(ctx context.Context, chatID uuid.UUID, name string) error {
	args := m.Called(ctx, chatID, name)
	return args.Error(0)
}

func (m *MockChatRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]chat.Chat, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]chat.Chat), args.Error(1)
}

func (m *MockChatRepository) ListChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockChatRepository) GetMember(ctx context.Context, chatID, userID uuid.UUID) (chat.Member, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Get(0).(chat.Member), args.Error(1)
}

func (m *MockChatRepository) GetMembers(ctx context.Context, chatID uuid.UUID) ([]chat.Member, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).([]chat.Member), args.Error(1)
}

func (m *MockChatRepository) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatRepository) AddMember(ctx context.Context, member *chat.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockChatRepository) RemoveMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockChatRepository) PromoteMember(ctx context.Context, chatID, userID uuid.UUID) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *MockChatRepository) NextSequence(ctx context.Context, chatID uuid.UUID) (int64, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockChatRepository) SetLastMessage(ctx context.Context, chatID, messageID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, chatID, messageID, at)
	return args.Error(0)
}

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *message.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(message.Message), args.Error(1)
}

func (m *MockMessageRepository) ListBefore(ctx context.Context, chatID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error) {
	args := m.Called(ctx, chatID, beforeSeq, limit)
	return args.Get(0).([]message.Message), args.Error(1)
}

func (m *MockMessageRepository) ListBySeqRange(ctx context.Context, chatID uuid.UUID, fromSeq, toSeq int64) ([]message.Message, error) {
	args := m.Called(ctx, chatID, fromSeq, toSeq)
	return args.Get(0).([]message.Message), args.Error(1)
}

func (m *MockMessageRepository) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepository) GetReactions(ctx context.Context, messageID uuid.UUID) ([]message.ReactionGroup, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).([]message.ReactionGroup), args.Error(1)
}

// recordingBus captures published envelopes for assertions. Publish is
// synchronous, matching the in-process bus the services normally run on.
type recordingBus struct {
	mu        sync.Mutex
	envelopes []events.Envelope
}

func (b *recordingBus) Publish(ctx context.Context, env events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes = append(b.envelopes, env)
	return nil
}

func (b *recordingBus) Subscribe(fn func(env events.Envelope)) {}

func (b *recordingBus) published() []events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Envelope, len(b.envelopes))
	copy(out, b.envelopes)
	return out
}
