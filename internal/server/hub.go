package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pulsechat/internal/events"
	"pulsechat/internal/presence"
	"pulsechat/internal/repository"
	"pulsechat/internal/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxConnectionsPerUser = 10

// Hub is the connection and room registry: it maps live connections to
// users, tracks which connections subscribe to which chat room, and fans
// bus envelopes out to local subscribers. It holds no durable state; room
// membership is rebuilt from the store on every connect.
type Hub struct {
	clients map[uuid.UUID]map[string]*Client
	rooms   map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan events.Envelope

	chatRepo       repository.ChatRepository
	messageService *services.MessageService
	typing         *presence.TypingEngine

	throttle *ConnectionThrottle
	logger   *WebSocketLogger

	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewHub(
	chatRepo repository.ChatRepository,
	messageService *services.MessageService,
	typing *presence.TypingEngine,
	bus events.Bus,
) *Hub {
	h := &Hub{
		clients:        make(map[uuid.UUID]map[string]*Client),
		rooms:          make(map[uuid.UUID]map[*Client]struct{}),
		register:       make(chan *Client, 256),
		unregister:     make(chan *Client, 256),
		broadcast:      make(chan events.Envelope, 256),
		chatRepo:       chatRepo,
		messageService: messageService,
		typing:         typing,
		throttle:       NewConnectionThrottle(),
		logger:         NewWebSocketLogger(),
		stopChan:       make(chan struct{}),
	}
	if bus != nil {
		bus.Subscribe(h.enqueue)
	}
	return h
}

// Run drives the registry loop until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case env := <-h.broadcast:
			h.handleEnvelope(env)

		case <-h.stopChan:
			return
		}
	}
}

// Stop shuts the registry down and closes every live connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.clients {
		for _, client := range userClients {
			h.removeClient(client)
		}
	}
	h.clients = make(map[uuid.UUID]map[string]*Client)
	h.rooms = make(map[uuid.UUID]map[*Client]struct{})
}

func (h *Hub) enqueue(env events.Envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.logger.logger.Warn("broadcast queue full, dropping envelope",
			zap.String("event", string(env.Type)))
	}
}

func (h *Hub) handleRegister(client *Client) {
	// Room membership is derived from durable chat membership, so a
	// reconnect always sees the current view. The query runs before the
	// registry lock; broadcasts must not stall on a store round trip.
	chatIDs, err := h.chatRepo.ListChatIDsForUser(context.Background(), client.userID)
	if err != nil {
		h.logger.Error("room join query failed", client.userID, client.clientID, err)
	}

	if !h.attach(client, chatIDs) {
		client.conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// attach adds the connection to the registry and subscribes it to its
// chats' rooms. Reports false when the connection throttle refuses it.
func (h *Hub) attach(client *Client, chatIDs []uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.throttle.AllowConnection(client.userID) {
		h.logger.Warn("connection rate limit exceeded", client.userID, client.clientID)
		return false
	}

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[string]*Client)
	}
	if len(h.clients[client.userID]) >= maxConnectionsPerUser {
		h.logger.Warn("max connections per user reached", client.userID, client.clientID)
		for id, c := range h.clients[client.userID] {
			h.detachLocked(c)
			delete(h.clients[client.userID], id)
			break
		}
	}
	h.clients[client.userID][client.clientID] = client

	for _, chatID := range chatIDs {
		h.joinRoomLocked(chatID, client)
	}

	h.logger.Info("client connected", client.userID, client.clientID)
	return true
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	lastConnection := false
	if userClients, ok := h.clients[client.userID]; ok {
		if _, ok := userClients[client.clientID]; ok {
			delete(userClients, client.clientID)
			h.detachLocked(client)

			if len(userClients) == 0 {
				delete(h.clients, client.userID)
				lastConnection = true
			}
			h.logger.Info("client disconnected", client.userID, client.clientID)
		}
	}
	h.mu.Unlock()

	if lastConnection && h.typing != nil {
		h.typing.DropUser(context.Background(), client.userID)
	}
}

// detachLocked removes the client from every room and closes it.
// Callers hold h.mu.
func (h *Hub) detachLocked(client *Client) {
	for chatID := range client.chats {
		h.leaveRoomLocked(chatID, client)
	}
	h.removeClient(client)
}

func (h *Hub) removeClient(client *Client) {
	close(client.send)
	if client.conn != nil {
		client.conn.Close()
	}
}

// JoinRoom and LeaveRoom are the only mutators of the room map.

func (h *Hub) JoinRoom(chatID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinRoomLocked(chatID, client)
}

func (h *Hub) LeaveRoom(chatID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(chatID, client)
}

func (h *Hub) joinRoomLocked(chatID uuid.UUID, client *Client) {
	if h.rooms[chatID] == nil {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][client] = struct{}{}
	client.chats[chatID] = true
}

func (h *Hub) leaveRoomLocked(chatID uuid.UUID, client *Client) {
	if room, ok := h.rooms[chatID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
	delete(client.chats, chatID)
}

// frame is the server-to-client wire format. Exclusions never leave the
// envelope.
type frame struct {
	Type       events.Type     `json:"type"`
	ChatID     uuid.UUID       `json:"chat_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func (h *Hub) handleEnvelope(env events.Envelope) {
	data, err := json.Marshal(frame{
		Type:       env.Type,
		ChatID:     env.ChatID,
		OccurredAt: env.OccurredAt,
		Payload:    env.Payload,
	})
	if err != nil {
		h.logger.logger.Error("frame marshal failed", zap.Error(err))
		return
	}

	// Deliver before applying membership changes so a removed user's
	// connection still learns why it is being evicted.
	h.deliver(env.ChatID, data, env.Exclude)

	if env.Type == events.EventGroupUpdated {
		h.applyGroupUpdate(env)
	}
}

// deliver sends data to every connection in the chat's room except the
// excluded users. A room with no live subscribers is a silent no-op.
func (h *Hub) deliver(chatID uuid.UUID, data []byte, exclude []uuid.UUID) {
	excluded := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[chatID] {
		if excluded[client.userID] {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full", client.userID, client.clientID)
		}
	}
}

// applyGroupUpdate reconciles room subscriptions with a membership
// mutation: removed users' connections leave the room, added users' live
// connections join it.
func (h *Hub) applyGroupUpdate(env events.Envelope) {
	var update events.GroupUpdated
	if err := json.Unmarshal(env.Payload, &update); err != nil {
		h.logger.logger.Warn("malformed group update payload", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userID := range update.Removed {
		for _, client := range h.clients[userID] {
			h.leaveRoomLocked(update.ChatID, client)
		}
	}
	for _, userID := range update.Added {
		for _, client := range h.clients[userID] {
			h.joinRoomLocked(update.ChatID, client)
		}
	}
}

// ConnectionThrottle caps how fast one user may open new connections.
type ConnectionThrottle struct {
	connectionsPerUser map[uuid.UUID][]time.Time
	mu                 sync.Mutex
}

func NewConnectionThrottle() *ConnectionThrottle {
	ct := &ConnectionThrottle{
		connectionsPerUser: make(map[uuid.UUID][]time.Time),
	}
	go ct.cleanupLoop()
	return ct
}

func (ct *ConnectionThrottle) AllowConnection(userID uuid.UUID) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)

	valid := ct.connectionsPerUser[userID][:0]
	for _, t := range ct.connectionsPerUser[userID] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= maxConnectionsPerUser {
		ct.connectionsPerUser[userID] = valid
		return false
	}
	ct.connectionsPerUser[userID] = append(valid, now)
	return true
}

func (ct *ConnectionThrottle) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		ct.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for userID, times := range ct.connectionsPerUser {
			valid := times[:0]
			for _, t := range times {
				if t.After(cutoff) {
					valid = append(valid, t)
				}
			}
			if len(valid) == 0 {
				delete(ct.connectionsPerUser, userID)
			} else {
				ct.connectionsPerUser[userID] = valid
			}
		}
		ct.mu.Unlock()
	}
}
