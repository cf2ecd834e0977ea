package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"pulsechat/internal/domain/message"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	return storeErr(r.db.WithContext(ctx).Create(m).Error)
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, pulse_errors.ErrNotFound
		}
		return message.Message{}, storeErr(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) ListBefore(ctx context.Context, chatID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error) {
	var messages []message.Message
	q := r.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}
	// Fetch the newest page, then hand it back in reading order.
	if err := q.Order("seq DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, storeErr(err)
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].Seq < messages[j].Seq })
	return messages, nil
}

func (r *PostgresMessageRepository) ListBySeqRange(ctx context.Context, chatID uuid.UUID, fromSeq, toSeq int64) ([]message.Message, error) {
	var messages []message.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND seq >= ? AND seq <= ?", chatID, fromSeq, toSeq).
		Order("seq ASC").
		Find(&messages).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return messages, nil
}

func (r *PostgresMessageRepository) ToggleReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	var nowPresent bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The composite primary key serializes racing toggles at the
		// store: the insert either claims the row or conflicts away.
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&message.Reaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			nowPresent = true
			return nil
		}
		nowPresent = false
		return tx.Delete(&message.Reaction{}, "message_id = ? AND user_id = ? AND emoji = ?",
			messageID, userID, emoji).Error
	})
	if err != nil {
		return false, storeErr(err)
	}
	return nowPresent, nil
}

func (r *PostgresMessageRepository) GetReactions(ctx context.Context, messageID uuid.UUID) ([]message.ReactionGroup, error) {
	var rows []message.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err)
	}

	byEmoji := make(map[string]*message.ReactionGroup)
	var order []string
	for _, row := range rows {
		g, ok := byEmoji[row.Emoji]
		if !ok {
			g = &message.ReactionGroup{Emoji: row.Emoji}
			byEmoji[row.Emoji] = g
			order = append(order, row.Emoji)
		}
		g.Count++
		g.Users = append(g.Users, row.UserID)
	}

	groups := make([]message.ReactionGroup, 0, len(order))
	for _, emoji := range order {
		groups = append(groups, *byEmoji[emoji])
	}
	return groups, nil
}
