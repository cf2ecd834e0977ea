package repository

import (
	"context"
	"errors"
	"time"

	"pulsechat/internal/domain/chat"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &PostgresChatRepository{db: db}
}

func (r *PostgresChatRepository) Create(ctx context.Context, c *chat.Chat, members []chat.Member) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(c).Error; err != nil {
			return err
		}
		for i := range members {
			members[i].ChatID = c.ID
		}
		return tx.Create(&members).Error
	})
	return storeErr(err)
}

func (r *PostgresChatRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Chat, error) {
	var c chat.Chat
	err := r.db.WithContext(ctx).Preload("Members").Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Chat{}, pulse_errors.ErrNotFound
		}
		return chat.Chat{}, storeErr(err)
	}
	return c, nil
}

func (r *PostgresChatRepository) GetByDirectKey(ctx context.Context, key string) (chat.Chat, error) {
	var c chat.Chat
	err := r.db.WithContext(ctx).Preload("Members").Where("direct_key = ?", key).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Chat{}, pulse_errors.ErrNotFound
		}
		return chat.Chat{}, storeErr(err)
	}
	return c, nil
}

func (r *PostgresChatRepository) Rename(ctx context.Context, chatID uuid.UUID, name string) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{"name": name, "updated_at": time.Now()})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return pulse_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresChatRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]chat.Chat, error) {
	var chats []chat.Chat
	err := r.db.WithContext(ctx).
		Preload("Members").
		Joins("JOIN chat_members ON chat_members.chat_id = chats.id").
		Where("chat_members.user_id = ?", userID).
		Order("COALESCE(chats.last_message_at, chats.created_at) DESC").
		Find(&chats).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return chats, nil
}

func (r *PostgresChatRepository) ListChatIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("user_id = ?", userID).
		Pluck("chat_id", &ids).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}

func (r *PostgresChatRepository) GetMember(ctx context.Context, chatID, userID uuid.UUID) (chat.Member, error) {
	var m chat.Member
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Member{}, pulse_errors.ErrNotFound
		}
		return chat.Member{}, storeErr(err)
	}
	return m, nil
}

func (r *PostgresChatRepository) GetMembers(ctx context.Context, chatID uuid.UUID) ([]chat.Member, error) {
	var members []chat.Member
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return members, nil
}

func (r *PostgresChatRepository) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, storeErr(err)
	}
	return count > 0, nil
}

func (r *PostgresChatRepository) AddMember(ctx context.Context, m *chat.Member) error {
	// ON CONFLICT DO NOTHING keeps re-adding an existing member a no-op.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m).Error
	return storeErr(err)
}

func (r *PostgresChatRepository) RemoveMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	// Locking the chat's admin rows serializes concurrent removals on
	// the same chat. Without the lock, two removals of the two remaining
	// admins each see the other still present and both commit, leaving
	// the group with no admin.
	var removed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var adminIDs []uuid.UUID
		if err := tx.Raw(`
			SELECT user_id FROM chat_members
			WHERE chat_id = ? AND role = ?
			FOR UPDATE`,
			chatID, chat.RoleAdmin).Scan(&adminIDs).Error; err != nil {
			return err
		}

		targetIsAdmin := false
		for _, id := range adminIDs {
			if id == userID {
				targetIsAdmin = true
				break
			}
		}
		if targetIsAdmin && len(adminIDs) == 1 {
			return pulse_errors.ErrConflict
		}

		res := tx.Exec(`DELETE FROM chat_members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
		if res.Error != nil {
			return res.Error
		}
		// Zero rows means the target was not a member; that is a no-op.
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		if errors.Is(err, pulse_errors.ErrConflict) {
			return false, pulse_errors.ErrConflict
		}
		return false, storeErr(err)
	}
	return removed, nil
}

func (r *PostgresChatRepository) PromoteMember(ctx context.Context, chatID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Update("role", chat.RoleAdmin)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return pulse_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresChatRepository) NextSequence(ctx context.Context, chatID uuid.UUID) (int64, error) {
	// Single conflict-free upsert; concurrent sends to the same chat
	// serialize on the row and can never allocate the same number.
	var seq int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO chat_sequences (chat_id, last_sequence, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT (chat_id)
		DO UPDATE SET last_sequence = chat_sequences.last_sequence + 1, updated_at = EXCLUDED.updated_at
		RETURNING last_sequence`,
		chatID, time.Now()).Scan(&seq).Error
	if err != nil {
		return 0, storeErr(err)
	}
	return seq, nil
}

func (r *PostgresChatRepository) SetLastMessage(ctx context.Context, chatID, messageID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Chat{}).
		Where("id = ?", chatID).
		Updates(map[string]interface{}{
			"last_message_id": messageID,
			"last_message_at": at,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return pulse_errors.ErrNotFound
	}
	return nil
}
