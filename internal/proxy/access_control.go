package proxy

import (
	"context"
	"errors"

	"pulsechat/internal/domain/chat"
	"pulsechat/internal/repository"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
)

// AccessControl gates every mutation on the durable membership state at
// call time; it never consults a cached member or admin set.
type AccessControl struct {
	chatRepo repository.ChatRepository
}

func NewAccessControl(chatRepo repository.ChatRepository) *AccessControl {
	return &AccessControl{chatRepo: chatRepo}
}

func (a *AccessControl) CanPost(ctx context.Context, userID, chatID uuid.UUID) error {
	return a.ensureMember(ctx, chatID, userID)
}

func (a *AccessControl) CanView(ctx context.Context, userID, chatID uuid.UUID) error {
	return a.ensureMember(ctx, chatID, userID)
}

func (a *AccessControl) CanManage(ctx context.Context, userID, chatID uuid.UUID) error {
	member, err := a.chatRepo.GetMember(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, pulse_errors.ErrNotFound) {
			return pulse_errors.ErrForbidden
		}
		return err
	}
	if member.Role != chat.RoleAdmin {
		return pulse_errors.ErrForbidden
	}
	return nil
}

func (a *AccessControl) ensureMember(ctx context.Context, chatID, userID uuid.UUID) error {
	ok, err := a.chatRepo.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return pulse_errors.ErrForbidden
	}
	return nil
}
