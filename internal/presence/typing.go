package presence

import (
	"context"
	"sync"
	"time"

	"pulsechat/internal/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

type typingKey struct {
	chatID uuid.UUID
	userID uuid.UUID
}

// typingState is one active (chat,user) typing interval. gen identifies
// the interval; an expiry carrying a stale gen backs off.
type typingState struct {
	timer *time.Timer
	gen   uint64
}

// TypingEngine owns the ephemeral per-(chat,user) typing state. Nothing
// here is persisted; a restart reconstructs the state as empty.
type TypingEngine struct {
	bus     events.Bus
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	gen    uint64
	timers map[typingKey]*typingState
}

func NewTypingEngine(bus events.Bus, timeout time.Duration) *TypingEngine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TypingEngine{
		bus:     bus,
		timeout: timeout,
		logger:  zap.L().With(zap.String("component", "typing")),
		timers:  make(map[typingKey]*typingState),
	}
}

// Start transitions (chat,user) to typing. The first call broadcasts
// typing:start to the room excluding the sender; repeated calls only
// refresh the expiry timer.
func (e *TypingEngine) Start(ctx context.Context, chatID, userID uuid.UUID) error {
	key := typingKey{chatID: chatID, userID: userID}

	e.mu.Lock()
	if st, ok := e.timers[key]; ok {
		if st.timer.Stop() {
			st.timer.Reset(e.timeout)
			e.mu.Unlock()
			return nil
		}
		// Expiry fired but has not taken the lock yet; it carries the old
		// generation and will back off.
		delete(e.timers, key)
	}

	e.gen++
	gen := e.gen
	e.timers[key] = &typingState{
		timer: time.AfterFunc(e.timeout, func() { e.expire(key, gen) }),
		gen:   gen,
	}
	e.mu.Unlock()

	return e.broadcast(ctx, events.EventTypingStart, chatID, userID)
}

// Stop transitions (chat,user) back to idle. It is a no-op when the user
// was not typing; otherwise exactly one typing:stop broadcast goes out.
func (e *TypingEngine) Stop(ctx context.Context, chatID, userID uuid.UUID) error {
	key := typingKey{chatID: chatID, userID: userID}

	e.mu.Lock()
	st, ok := e.timers[key]
	if ok {
		st.timer.Stop()
		delete(e.timers, key)
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}
	return e.broadcast(ctx, events.EventTypingStop, chatID, userID)
}

// DropUser clears every typing state the user holds, broadcasting
// typing:stop per affected chat. Called when the user's last live
// connection goes away.
func (e *TypingEngine) DropUser(ctx context.Context, userID uuid.UUID) {
	e.mu.Lock()
	var dropped []typingKey
	for key, st := range e.timers {
		if key.userID == userID {
			st.timer.Stop()
			delete(e.timers, key)
			dropped = append(dropped, key)
		}
	}
	e.mu.Unlock()

	for _, key := range dropped {
		if err := e.broadcast(ctx, events.EventTypingStop, key.chatID, key.userID); err != nil {
			e.logger.Warn("typing stop broadcast failed",
				zap.String("chat_id", key.chatID.String()), zap.Error(err))
		}
	}
}

// Shutdown cancels every timer without broadcasting.
func (e *TypingEngine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, st := range e.timers {
		st.timer.Stop()
		delete(e.timers, key)
	}
}

func (e *TypingEngine) expire(key typingKey, gen uint64) {
	e.mu.Lock()
	st, ok := e.timers[key]
	if !ok || st.gen != gen {
		// Stopped or restarted since this expiry was scheduled.
		e.mu.Unlock()
		return
	}
	delete(e.timers, key)
	e.mu.Unlock()

	if err := e.broadcast(context.Background(), events.EventTypingStop, key.chatID, key.userID); err != nil {
		e.logger.Warn("typing expiry broadcast failed",
			zap.String("chat_id", key.chatID.String()), zap.Error(err))
	}
}

func (e *TypingEngine) broadcast(ctx context.Context, t events.Type, chatID, userID uuid.UUID) error {
	env, err := events.NewEnvelope(t, chatID, events.Typing{ChatID: chatID, UserID: userID}, userID)
	if err != nil {
		return err
	}
	return e.bus.Publish(ctx, env)
}
