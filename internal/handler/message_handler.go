package handler

import (
	"net/http"
	"strconv"

	"pulsechat/internal/domain/message"
	"pulsechat/internal/services"
	"pulsechat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MessageHandler handles message history and reaction HTTP endpoints.
// Live sends normally arrive over the socket; the POST route exists for
// clients without an open connection.
type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Send persists a message in a chat and fans it out to connected members.
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chat id", "INVALID_INPUT"))
		return
	}

	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	msg, err := h.service.Send(c.Request.Context(), chatID, userID, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(toMessageDTO(msg)))
}

// History returns messages in a chat in ascending sequence order. The
// before_seq query param pages backwards; limit caps the page size.
func (h *MessageHandler) History(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chat id", "INVALID_INPUT"))
		return
	}

	var beforeSeq int64
	if raw := c.Query("before_seq"); raw != "" {
		beforeSeq, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || beforeSeq < 1 {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid before_seq", "INVALID_INPUT"))
			return
		}
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid limit", "INVALID_INPUT"))
			return
		}
	}

	var msgs []message.Message
	if raw := c.Query("from_seq"); raw != "" {
		fromSeq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || fromSeq < 1 {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid from_seq", "INVALID_INPUT"))
			return
		}
		toSeq, err := strconv.ParseInt(c.Query("to_seq"), 10, 64)
		if err != nil || toSeq < fromSeq {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid to_seq", "INVALID_INPUT"))
			return
		}
		msgs, err = h.service.Range(c.Request.Context(), chatID, userID, fromSeq, toSeq)
		if err != nil {
			writeError(c, err)
			return
		}
	} else {
		msgs, err = h.service.History(c.Request.Context(), chatID, userID, beforeSeq, limit)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	out := make([]httpdto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(out))
}

// ToggleReaction flips the caller's reaction state for one emoji on a
// message.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	userID, messageID, ok := h.callerAndMessage(c)
	if !ok {
		return
	}

	var req httpdto.ToggleReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	present, err := h.service.ToggleReaction(c.Request.Context(), messageID, userID, req.Emoji)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ToggleReactionResponse{
		MessageID:  messageID.String(),
		Emoji:      req.Emoji,
		NowPresent: present,
	}))
}

// Reactions returns the aggregated reaction state of a message.
func (h *MessageHandler) Reactions(c *gin.Context) {
	userID, messageID, ok := h.callerAndMessage(c)
	if !ok {
		return
	}

	groups, err := h.service.Reactions(c.Request.Context(), messageID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(groups))
}

func (h *MessageHandler) callerAndMessage(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return uuid.Nil, uuid.Nil, false
	}
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid message id", "INVALID_INPUT"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, messageID, true
}

func toMessageDTO(m message.Message) httpdto.MessageDTO {
	return httpdto.MessageDTO{
		ID:        m.ID.String(),
		ChatID:    m.ChatID.String(),
		SenderID:  m.SenderID.String(),
		Seq:       m.Seq,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
