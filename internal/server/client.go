package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	pulse_errors "pulsechat/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Rate limits per minute
type RateLimits struct {
	MaxMessageSends int
	MaxTypingEvents int
	MaxReactions    int
	MaxPingMessages int
}

var DefaultRateLimits = RateLimits{
	MaxMessageSends: 120,
	MaxTypingEvents: 60,
	MaxReactions:    120,
	MaxPingMessages: 60,
}

// ClientRateLimiter tracks rate limits per client
type ClientRateLimiter struct {
	messageTokens  int
	typingTokens   int
	reactionTokens int
	pingTokens     int
	lastRefill     time.Time
	mu             sync.Mutex
}

func NewClientRateLimiter() *ClientRateLimiter {
	return &ClientRateLimiter{
		messageTokens:  DefaultRateLimits.MaxMessageSends,
		typingTokens:   DefaultRateLimits.MaxTypingEvents,
		reactionTokens: DefaultRateLimits.MaxReactions,
		pingTokens:     DefaultRateLimits.MaxPingMessages,
		lastRefill:     time.Now(),
	}
}

func (rl *ClientRateLimiter) Allow(msgType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.messageTokens = DefaultRateLimits.MaxMessageSends
		rl.typingTokens = DefaultRateLimits.MaxTypingEvents
		rl.reactionTokens = DefaultRateLimits.MaxReactions
		rl.pingTokens = DefaultRateLimits.MaxPingMessages
		rl.lastRefill = now
	}

	switch msgType {
	case "message:send":
		if rl.messageTokens > 0 {
			rl.messageTokens--
			return true
		}
	case "typing:start", "typing:stop":
		if rl.typingTokens > 0 {
			rl.typingTokens--
			return true
		}
	case "reaction:toggle":
		if rl.reactionTokens > 0 {
			rl.reactionTokens--
			return true
		}
	case "ping":
		if rl.pingTokens > 0 {
			rl.pingTokens--
			return true
		}
	}
	return false
}

// Client represents a single WebSocket connection
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	userID       uuid.UUID
	clientID     string
	chats        map[uuid.UUID]bool
	rateLimiter  *ClientRateLimiter
	connectedAt  time.Time
	lastActivity time.Time
	logger       WebSocketLogger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type      string    `json:"type"`
	ChatID    uuid.UUID `json:"chat_id,omitempty"`
	MessageID uuid.UUID `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
}

// errorFrame acknowledges a rejected client frame on the same channel.
// A bad frame never tears the connection down.
type errorFrame struct {
	Type    string `json:"type"`
	Ref     string `json:"ref,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, clientID string, logger WebSocketLogger) *Client {
	now := time.Now()
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		userID:       userID,
		clientID:     clientID,
		chats:        make(map[uuid.UUID]bool),
		rateLimiter:  NewClientRateLimiter(),
		connectedAt:  now,
		lastActivity: now,
		logger:       logger,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.userID, c.clientID, err)
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.lastActivity = time.Now()

		if err := c.handleMessage(message); err != nil {
			c.logger.Error("websocket handle message failed", c.userID, c.clientID, err)
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("", pulse_errors.ErrInvalidInput)
		return nil
	}

	if !c.rateLimiter.Allow(msg.Type) {
		c.logger.Warn("rate limit exceeded", c.userID, c.clientID, zap.String("msg_type", msg.Type))
		return nil
	}

	// Background context: a disconnect mid-flight must not cancel the
	// durable write. Cleanup follows through the unregister path.
	ctx := context.Background()

	switch msg.Type {
	case "message:send":
		if _, err := c.hub.messageService.Send(ctx, msg.ChatID, c.userID, msg.Content); err != nil {
			c.sendError(msg.Type, err)
		}
	case "typing:start":
		if err := c.hub.typing.Start(ctx, msg.ChatID, c.userID); err != nil {
			c.sendError(msg.Type, err)
		}
	case "typing:stop":
		if err := c.hub.typing.Stop(ctx, msg.ChatID, c.userID); err != nil {
			c.sendError(msg.Type, err)
		}
	case "reaction:toggle":
		if _, err := c.hub.messageService.ToggleReaction(ctx, msg.MessageID, c.userID, msg.Emoji); err != nil {
			c.sendError(msg.Type, err)
		}
	case "ping":
		c.enqueueFrame([]byte(`{"type":"pong"}`))
	default:
		c.logger.Warn("unknown message type", c.userID, c.clientID, zap.String("msg_type", msg.Type))
	}
	return nil
}

func (c *Client) sendError(ref string, err error) {
	data, marshalErr := json.Marshal(errorFrame{
		Type:    "error",
		Ref:     ref,
		Code:    pulse_errors.Code(err),
		Message: err.Error(),
	})
	if marshalErr != nil {
		return
	}
	c.enqueueFrame(data)
}

func (c *Client) enqueueFrame(data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full", c.userID, c.clientID)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if time.Since(c.lastActivity) > pongWait*2 {
				c.logger.Info("client idle timeout", c.userID, c.clientID)
				return
			}
		}
	}
}
