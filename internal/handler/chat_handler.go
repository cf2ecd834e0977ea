package handler

import (
	"net/http"

	chatdomain "pulsechat/internal/domain/chat"
	"pulsechat/internal/services"
	"pulsechat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ChatHandler handles chat and group membership HTTP endpoints.
type ChatHandler struct {
	service *services.ChatService
}

func NewChatHandler(service *services.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// CreateDirect finds or creates the direct chat with a peer.
func (h *ChatHandler) CreateDirect(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.CreateDirectChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	peerID, err := uuid.Parse(req.PeerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid peer id", "INVALID_INPUT"))
		return
	}

	chat, err := h.service.CreateDirect(c.Request.Context(), userID, peerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toChatDTO(chat)))
}

// CreateGroup creates a group chat with the caller as initial admin.
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	var req httpdto.CreateGroupChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	memberIDs, err := parseUUIDs(req.MemberIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid member ids", "INVALID_INPUT"))
		return
	}

	chat, err := h.service.CreateGroup(c.Request.Context(), userID, req.Name, memberIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toChatDTO(chat)))
}

// List returns the caller's chats ordered by latest activity.
func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	chats, err := h.service.ListChats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.ChatDTO, 0, len(chats))
	for _, chat := range chats {
		out = append(out, toChatDTO(chat))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

// Get returns a single chat with its members.
func (h *ChatHandler) Get(c *gin.Context) {
	userID, chatID, ok := h.callerAndChat(c)
	if !ok {
		return
	}

	chat, err := h.service.GetChat(c.Request.Context(), chatID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toChatDTO(chat)))
}

// Rename renames a group chat. Admin only.
func (h *ChatHandler) Rename(c *gin.Context) {
	userID, chatID, ok := h.callerAndChat(c)
	if !ok {
		return
	}

	var req httpdto.RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	if err := h.service.Rename(c.Request.Context(), chatID, userID, req.Name); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"renamed": true}))
}

// AddMembers adds users to a group chat. Admin only.
func (h *ChatHandler) AddMembers(c *gin.Context) {
	userID, chatID, ok := h.callerAndChat(c)
	if !ok {
		return
	}

	var req httpdto.AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	userIDs, err := parseUUIDs(req.UserIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user ids", "INVALID_INPUT"))
		return
	}

	if err := h.service.AddMembers(c.Request.Context(), chatID, userID, userIDs); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"added": true}))
}

// PromoteAdmin grants admin rights to a member. Admin only.
func (h *ChatHandler) PromoteAdmin(c *gin.Context) {
	userID, chatID, ok := h.callerAndChat(c)
	if !ok {
		return
	}

	var req httpdto.PromoteAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_INPUT"))
		return
	}

	if err := h.service.PromoteAdmin(c.Request.Context(), chatID, userID, targetID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"promoted": true}))
}

// RemoveMember removes a user from a group chat (admin), or lets the
// caller leave.
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	userID, chatID, ok := h.callerAndChat(c)
	if !ok {
		return
	}

	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_INPUT"))
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), chatID, userID, targetID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"removed": true}))
}

func (h *ChatHandler) callerAndChat(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return uuid.Nil, uuid.Nil, false
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chat id", "INVALID_INPUT"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, chatID, true
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toChatDTO(c chatdomain.Chat) httpdto.ChatDTO {
	dto := httpdto.ChatDTO{
		ID:        c.ID.String(),
		Type:      c.Type,
		CreatedAt: c.CreatedAt,
	}
	if c.Name.Valid {
		dto.Name = c.Name.String
	}
	if c.LastMessageAt.Valid {
		at := c.LastMessageAt.Time
		dto.LastMessageAt = &at
	}
	for _, m := range c.Members {
		dto.Members = append(dto.Members, httpdto.ChatMemberDTO{
			UserID:   m.UserID.String(),
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	return dto
}
