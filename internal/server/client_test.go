package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pulsechat/internal/domain/chat"
	"pulsechat/internal/domain/message"
	"pulsechat/internal/events"
	"pulsechat/internal/proxy"
	"pulsechat/internal/services"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChatRepo serves the membership and room queries the socket paths
// touch; everything else is unreachable from these tests.
type stubChatRepo struct {
	member  bool
	chatIDs []uuid.UUID
}

func (s *stubChatRepo) Create(ctx context.Context, c *chat.Chat, members []chat.Member) error {
	return nil
}

func (s *stubChatRepo) GetByID(ctx context.Context, id uuid.UUID) (chat.Chat, error) {
	return chat.Chat{}, pulse_errors.ErrNotFound
}

func (s *stubChatRepo) GetByDirectKey(ctx context.Context, key string) (chat.Chat, error) {
	return chat.Chat{}, pulse_errors.ErrNotFound
}

func (s *stubChatRepo) Rename(ctx context.Context, chatID uuid.UUID, name string) error {
	return nil
}

func (s *stubChatRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]chat.Chat, error) {
	return nil, nil
}

func (s *stubChatRepo) ListChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.chatIDs, nil
}

func (s *stubChatRepo) GetMember(ctx context.Context, chatID, userID uuid.UUID) (chat.Member, error) {
	return chat.Member{}, pulse_errors.ErrNotFound
}

func (s *stubChatRepo) GetMembers(ctx context.Context, chatID uuid.UUID) ([]chat.Member, error) {
	return nil, nil
}

func (s *stubChatRepo) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	return s.member, nil
}

func (s *stubChatRepo) AddMember(ctx context.Context, m *chat.Member) error {
	return nil
}

func (s *stubChatRepo) RemoveMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	return false, nil
}

func (s *stubChatRepo) PromoteMember(ctx context.Context, chatID, userID uuid.UUID) error {
	return nil
}

func (s *stubChatRepo) NextSequence(ctx context.Context, chatID uuid.UUID) (int64, error) {
	return 0, pulse_errors.ErrStoreUnavailable
}

func (s *stubChatRepo) SetLastMessage(ctx context.Context, chatID, messageID uuid.UUID, at time.Time) error {
	return nil
}

type stubMessageRepo struct{}

func (s *stubMessageRepo) Create(ctx context.Context, m *message.Message) error { return nil }

func (s *stubMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	return message.Message{}, pulse_errors.ErrNotFound
}

func (s *stubMessageRepo) ListBefore(ctx context.Context, chatID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) ListBySeqRange(ctx context.Context, chatID uuid.UUID, fromSeq, toSeq int64) ([]message.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	return false, pulse_errors.ErrNotFound
}

func (s *stubMessageRepo) GetReactions(ctx context.Context, messageID uuid.UUID) ([]message.ReactionGroup, error) {
	return nil, nil
}

func newSocketTestHub(chatRepo *stubChatRepo) *Hub {
	svc := services.NewMessageService(&stubMessageRepo{}, chatRepo, proxy.NewAccessControl(chatRepo), events.NewLocalBus())
	return NewHub(chatRepo, svc, nil, nil)
}

func decodeErrorFrame(t *testing.T, data []byte) errorFrame {
	t.Helper()
	require.NotNil(t, data)
	var f errorFrame
	require.NoError(t, json.Unmarshal(data, &f))
	require.Equal(t, "error", f.Type)
	return f
}

func TestRejectedSendAcksWithoutClosingDispatch(t *testing.T) {
	chatRepo := &stubChatRepo{member: false}
	h := newSocketTestHub(chatRepo)
	client := newTestClient(h, uuid.New())

	payload, err := json.Marshal(ClientMessage{
		Type:    "message:send",
		ChatID:  uuid.New(),
		Content: "hello",
	})
	require.NoError(t, err)
	require.NoError(t, client.handleMessage(payload))

	f := decodeErrorFrame(t, received(t, client))
	assert.Equal(t, "message:send", f.Ref)
	assert.Equal(t, "FORBIDDEN", f.Code)

	// Dispatch keeps serving the connection after the rejected frame.
	require.NoError(t, client.handleMessage([]byte(`{"type":"ping"}`)))
	assert.Equal(t, []byte(`{"type":"pong"}`), received(t, client))
}

func TestMalformedFrameAcksWithErrorFrame(t *testing.T) {
	h := newSocketTestHub(&stubChatRepo{})
	client := newTestClient(h, uuid.New())

	require.NoError(t, client.handleMessage([]byte(`{not json`)))

	f := decodeErrorFrame(t, received(t, client))
	assert.Empty(t, f.Ref)
	assert.Equal(t, "INVALID_INPUT", f.Code)

	require.NoError(t, client.handleMessage([]byte(`{"type":"ping"}`)))
	assert.Equal(t, []byte(`{"type":"pong"}`), received(t, client))
}

func TestUnknownReactionTargetAcksNotFound(t *testing.T) {
	h := newSocketTestHub(&stubChatRepo{member: true})
	client := newTestClient(h, uuid.New())

	payload, err := json.Marshal(ClientMessage{
		Type:      "reaction:toggle",
		MessageID: uuid.New(),
		Emoji:     "👍",
	})
	require.NoError(t, err)
	require.NoError(t, client.handleMessage(payload))

	f := decodeErrorFrame(t, received(t, client))
	assert.Equal(t, "reaction:toggle", f.Ref)
	assert.Equal(t, "NOT_FOUND", f.Code)
}
