package httpdto

import "time"

type CreateDirectChatRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

type CreateGroupChatRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"member_ids"`
}

type RenameChatRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddMembersRequest struct {
	UserIDs []string `json:"user_ids" binding:"required"`
}

type PromoteAdminRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type ChatMemberDTO struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type ChatDTO struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Name          string          `json:"name,omitempty"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Members       []ChatMemberDTO `json:"members,omitempty"`
}
