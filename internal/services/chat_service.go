package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"pulsechat/internal/domain/chat"
	"pulsechat/internal/events"
	"pulsechat/internal/proxy"
	"pulsechat/internal/repository"
	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatService owns chat creation and all group membership mutation. Admin
// rights are re-read from the store at every mutation; the last admin can
// never be removed (callers promote another admin first).
type ChatService struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
	access   *proxy.AccessControl
	bus      events.Bus
	logger   *zap.Logger
}

func NewChatService(chatRepo repository.ChatRepository, userRepo repository.UserRepository, access *proxy.AccessControl, bus events.Bus) *ChatService {
	return &ChatService{
		chatRepo: chatRepo,
		userRepo: userRepo,
		access:   access,
		bus:      bus,
		logger:   zap.L().With(zap.String("component", "chat_service")),
	}
}

// CreateDirect finds or creates the unique direct chat between two users.
// (a,b) and (b,a) resolve to the same chat.
func (s *ChatService) CreateDirect(ctx context.Context, userID, peerID uuid.UUID) (chat.Chat, error) {
	if userID == peerID {
		return chat.Chat{}, pulse_errors.ErrInvalidInput
	}
	if _, err := s.userRepo.GetByID(ctx, peerID); err != nil {
		return chat.Chat{}, err
	}

	key := chat.DirectKey(userID, peerID)
	existing, err := s.chatRepo.GetByDirectKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pulse_errors.ErrNotFound) {
		return chat.Chat{}, err
	}

	now := time.Now()
	c := chat.Chat{
		ID:        uuid.New(),
		Type:      chat.TypeDirect,
		DirectKey: sql.NullString{String: key, Valid: true},
		CreatedBy: uuid.NullUUID{UUID: userID, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	}
	members := []chat.Member{
		{UserID: userID, Role: chat.RoleMember, JoinedAt: now},
		{UserID: peerID, Role: chat.RoleMember, JoinedAt: now},
	}
	if err := s.chatRepo.Create(ctx, &c, members); err != nil {
		// A concurrent create for the same pair won the unique index;
		// return the winner.
		if errors.Is(err, pulse_errors.ErrAlreadyExists) {
			return s.chatRepo.GetByDirectKey(ctx, key)
		}
		return chat.Chat{}, err
	}
	c.Members = members

	// Announce the new room so live connections of both users join it
	// without a reconnect.
	s.publishGroupUpdated(ctx, c.ID, nil, members, nil, []uuid.UUID{userID, peerID})
	return c, nil
}

// CreateGroup creates a group chat; the creator becomes its first admin.
func (s *ChatService) CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (chat.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Chat{}, pulse_errors.ErrInvalidInput
	}

	now := time.Now()
	c := chat.Chat{
		ID:        uuid.New(),
		Type:      chat.TypeGroup,
		Name:      sql.NullString{String: name, Valid: true},
		CreatedBy: uuid.NullUUID{UUID: creatorID, Valid: true},
		CreatedAt: now,
		UpdatedAt: now,
	}

	members := []chat.Member{{UserID: creatorID, Role: chat.RoleAdmin, JoinedAt: now}}
	seen := map[uuid.UUID]bool{creatorID: true}
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			return chat.Chat{}, err
		}
		members = append(members, chat.Member{
			UserID:   id,
			Role:     chat.RoleMember,
			JoinedAt: now,
			AddedBy:  uuid.NullUUID{UUID: creatorID, Valid: true},
		})
	}

	if err := s.chatRepo.Create(ctx, &c, members); err != nil {
		return chat.Chat{}, err
	}
	c.Members = members

	s.publishGroupUpdated(ctx, c.ID, &name, members, nil, memberIDs)
	return c, nil
}

func (s *ChatService) ListChats(ctx context.Context, userID uuid.UUID) ([]chat.Chat, error) {
	return s.chatRepo.ListForUser(ctx, userID)
}

func (s *ChatService) GetChat(ctx context.Context, chatID, userID uuid.UUID) (chat.Chat, error) {
	if err := s.access.CanView(ctx, userID, chatID); err != nil {
		return chat.Chat{}, err
	}
	return s.chatRepo.GetByID(ctx, chatID)
}

// Rename changes a group chat's name. Admin only.
func (s *ChatService) Rename(ctx context.Context, chatID, actorID uuid.UUID, newName string) error {
	if err := s.requireGroupAdmin(ctx, chatID, actorID); err != nil {
		return err
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return pulse_errors.ErrInvalidInput
	}

	if err := s.chatRepo.Rename(ctx, chatID, newName); err != nil {
		return err
	}

	members, err := s.chatRepo.GetMembers(ctx, chatID)
	if err != nil {
		return err
	}
	s.publishGroupUpdated(ctx, chatID, &newName, members, nil, nil)
	return nil
}

// AddMembers adds users to a group chat. Admin only. Adding a user who is
// already a member is a no-op that still succeeds.
func (s *ChatService) AddMembers(ctx context.Context, chatID, actorID uuid.UUID, userIDs []uuid.UUID) error {
	if err := s.requireGroupAdmin(ctx, chatID, actorID); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return pulse_errors.ErrInvalidInput
	}

	now := time.Now()
	for _, id := range userIDs {
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			return err
		}
		err := s.chatRepo.AddMember(ctx, &chat.Member{
			ChatID:   chatID,
			UserID:   id,
			Role:     chat.RoleMember,
			JoinedAt: now,
			AddedBy:  uuid.NullUUID{UUID: actorID, Valid: true},
		})
		if err != nil && !errors.Is(err, pulse_errors.ErrAlreadyExists) {
			return err
		}
	}

	members, err := s.chatRepo.GetMembers(ctx, chatID)
	if err != nil {
		return err
	}
	s.publishGroupUpdated(ctx, chatID, nil, members, nil, userIDs)
	return nil
}

// RemoveMember removes a user from a group chat. Admins may remove
// anyone; a member may remove only themselves (leave). Removing a user
// who is not a member is a no-op that still succeeds. Removing the last
// admin fails with Conflict.
func (s *ChatService) RemoveMember(ctx context.Context, chatID, actorID, targetID uuid.UUID) error {
	c, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !c.IsGroup() {
		return pulse_errors.ErrNotApplicable
	}

	if actorID != targetID {
		if err := s.access.CanManage(ctx, actorID, chatID); err != nil {
			return err
		}
	} else if err := s.access.CanView(ctx, actorID, chatID); err != nil {
		return err
	}

	removed, err := s.chatRepo.RemoveMember(ctx, chatID, targetID)
	if err != nil {
		return err
	}
	if !removed {
		// Target was not a member; nothing to announce.
		return nil
	}

	members, err := s.chatRepo.GetMembers(ctx, chatID)
	if err != nil {
		return err
	}
	s.publishGroupUpdated(ctx, chatID, nil, members, []uuid.UUID{targetID}, nil)
	return nil
}

// PromoteAdmin grants admin rights to an existing member. Admin only and
// idempotent, so "promote another, then leave" always has a path.
func (s *ChatService) PromoteAdmin(ctx context.Context, chatID, actorID, targetID uuid.UUID) error {
	if err := s.requireGroupAdmin(ctx, chatID, actorID); err != nil {
		return err
	}

	if err := s.chatRepo.PromoteMember(ctx, chatID, targetID); err != nil {
		return err
	}

	members, err := s.chatRepo.GetMembers(ctx, chatID)
	if err != nil {
		return err
	}
	s.publishGroupUpdated(ctx, chatID, nil, members, nil, nil)
	return nil
}

func (s *ChatService) requireGroupAdmin(ctx context.Context, chatID, actorID uuid.UUID) error {
	c, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !c.IsGroup() {
		return pulse_errors.ErrNotApplicable
	}
	return s.access.CanManage(ctx, actorID, chatID)
}

// publishGroupUpdated announces the fresh membership view. A lost
// broadcast never fails the mutation; the durable state already changed.
func (s *ChatService) publishGroupUpdated(ctx context.Context, chatID uuid.UUID, name *string, members []chat.Member, removed, added []uuid.UUID) {
	var memberIDs, adminIDs []uuid.UUID
	for _, m := range members {
		memberIDs = append(memberIDs, m.UserID)
		if m.Role == chat.RoleAdmin {
			adminIDs = append(adminIDs, m.UserID)
		}
	}

	env, err := events.NewEnvelope(events.EventGroupUpdated, chatID, events.GroupUpdated{
		ChatID:  chatID,
		Name:    name,
		Members: memberIDs,
		Admins:  adminIDs,
		Removed: removed,
		Added:   added,
	})
	if err == nil {
		err = s.bus.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Warn("group update broadcast failed",
			zap.String("chat_id", chatID.String()), zap.Error(err))
	}
}
