package services

import (
	"context"
	"strings"
	"time"

	"pulsechat/internal/domain/message"
	"pulsechat/internal/events"
	"pulsechat/internal/proxy"
	"pulsechat/internal/repository"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxEmojiBytes       = 32
)

// MessageService is the delivery pipeline and the reaction ledger:
// everything durable happens before anything is broadcast.
type MessageService struct {
	messageRepo repository.MessageRepository
	chatRepo    repository.ChatRepository
	access      *proxy.AccessControl
	bus         events.Bus
	logger      *zap.Logger
}

func NewMessageService(messageRepo repository.MessageRepository, chatRepo repository.ChatRepository, access *proxy.AccessControl, bus events.Bus) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		chatRepo:    chatRepo,
		access:      access,
		bus:         bus,
		logger:      zap.L().With(zap.String("component", "message_service")),
	}
}

// Send persists a message with the next per-chat sequence number and
// broadcasts it to the chat's room. A failed sequence allocation is never
// retried here: retrying a non-idempotent write risks burning numbers.
func (s *MessageService) Send(ctx context.Context, chatID, senderID uuid.UUID, content string) (message.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return message.Message{}, pulse_errors.ErrInvalidInput
	}

	if err := s.access.CanPost(ctx, senderID, chatID); err != nil {
		return message.Message{}, err
	}

	seq, err := s.chatRepo.NextSequence(ctx, chatID)
	if err != nil {
		return message.Message{}, err
	}

	msg := message.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  senderID,
		Seq:       seq,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}

	// Denormalized pointer driving chat-list ordering.
	if err := s.chatRepo.SetLastMessage(ctx, chatID, msg.ID, msg.CreatedAt); err != nil {
		s.logger.Warn("last message pointer update failed",
			zap.String("chat_id", chatID.String()), zap.Error(err))
	}

	s.publish(ctx, events.EventMessageNew, chatID, events.MessageNew{
		ChatID:    chatID,
		MessageID: msg.ID,
		SenderID:  senderID,
		Content:   msg.Content,
		Seq:       msg.Seq,
		Timestamp: msg.CreatedAt,
	})

	return msg, nil
}

// History returns up to limit messages before beforeSeq in ascending seq
// order. Reconnecting clients page through this instead of relying on
// buffered broadcasts.
func (s *MessageService) History(ctx context.Context, chatID, userID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error) {
	if err := s.access.CanView(ctx, userID, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.messageRepo.ListBefore(ctx, chatID, beforeSeq, limit)
}

// Range returns the messages with fromSeq <= seq <= toSeq, ascending.
func (s *MessageService) Range(ctx context.Context, chatID, userID uuid.UUID, fromSeq, toSeq int64) ([]message.Message, error) {
	if err := s.access.CanView(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.messageRepo.ListBySeqRange(ctx, chatID, fromSeq, toSeq)
}

// ToggleReaction flips the user's emoji state on a message and broadcasts
// the diff to the message's chat room.
func (s *MessageService) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return false, pulse_errors.ErrInvalidInput
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	if err := s.access.CanPost(ctx, userID, msg.ChatID); err != nil {
		return false, err
	}

	nowPresent, err := s.messageRepo.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return false, err
	}

	s.publish(ctx, events.EventReactionDiff, msg.ChatID, events.ReactionDiff{
		ChatID:     msg.ChatID,
		MessageID:  messageID,
		Emoji:      emoji,
		UserID:     userID,
		NowPresent: nowPresent,
	})

	return nowPresent, nil
}

func (s *MessageService) Reactions(ctx context.Context, messageID, userID uuid.UUID) ([]message.ReactionGroup, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.access.CanView(ctx, userID, msg.ChatID); err != nil {
		return nil, err
	}
	return s.messageRepo.GetReactions(ctx, messageID)
}

// publish swallows broadcast failures: the write is already durable and
// clients recover through seq-range catch-up.
func (s *MessageService) publish(ctx context.Context, t events.Type, chatID uuid.UUID, payload interface{}) {
	env, err := events.NewEnvelope(t, chatID, payload)
	if err == nil {
		err = s.bus.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Warn("broadcast failed",
			zap.String("event", string(t)), zap.String("chat_id", chatID.String()), zap.Error(err))
	}
}
