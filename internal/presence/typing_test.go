package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"pulsechat/internal/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBus struct {
	mu        sync.Mutex
	envelopes []events.Envelope
}

func (b *captureBus) Publish(ctx context.Context, env events.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes = append(b.envelopes, env)
	return nil
}

func (b *captureBus) Subscribe(fn func(env events.Envelope)) {}

func (b *captureBus) byType(t events.Type) []events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Envelope
	for _, env := range b.envelopes {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func TestStartBroadcastsOnceWhileTyping(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, time.Second)
	defer engine.Shutdown()

	chatID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, engine.Start(ctx, chatID, userID))
	}

	starts := bus.byType(events.EventTypingStart)
	require.Len(t, starts, 1)
	assert.Equal(t, chatID, starts[0].ChatID)
	assert.Equal(t, []uuid.UUID{userID}, starts[0].Exclude)
	assert.Empty(t, bus.byType(events.EventTypingStop))
}

func TestExplicitStopBroadcastsOnce(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, time.Second)
	defer engine.Shutdown()

	chatID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, chatID, userID))
	require.NoError(t, engine.Stop(ctx, chatID, userID))
	require.NoError(t, engine.Stop(ctx, chatID, userID))

	assert.Len(t, bus.byType(events.EventTypingStart), 1)
	assert.Len(t, bus.byType(events.EventTypingStop), 1)
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, time.Second)
	defer engine.Shutdown()

	require.NoError(t, engine.Stop(context.Background(), uuid.New(), uuid.New()))

	assert.Empty(t, bus.envelopes)
}

func TestExpiryBroadcastsStopExactlyOnce(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, 30*time.Millisecond)
	defer engine.Shutdown()

	chatID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, chatID, userID))

	time.Sleep(100 * time.Millisecond)

	assert.Len(t, bus.byType(events.EventTypingStop), 1)

	// A stop after expiry finds no state and stays silent.
	require.NoError(t, engine.Stop(ctx, chatID, userID))
	assert.Len(t, bus.byType(events.EventTypingStop), 1)
}

func TestStartRefreshDelaysExpiry(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, 60*time.Millisecond)
	defer engine.Shutdown()

	chatID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, chatID, userID))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, engine.Start(ctx, chatID, userID))
	time.Sleep(40 * time.Millisecond)

	// The refresh pushed expiry past the original deadline.
	assert.Empty(t, bus.byType(events.EventTypingStop))

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, bus.byType(events.EventTypingStop), 1)
	assert.Len(t, bus.byType(events.EventTypingStart), 1)
}

func TestDropUserStopsEveryChat(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, time.Second)
	defer engine.Shutdown()

	userID := uuid.New()
	otherID := uuid.New()
	chatA := uuid.New()
	chatB := uuid.New()
	ctx := context.Background()

	require.NoError(t, engine.Start(ctx, chatA, userID))
	require.NoError(t, engine.Start(ctx, chatB, userID))
	require.NoError(t, engine.Start(ctx, chatA, otherID))

	engine.DropUser(ctx, userID)

	stops := bus.byType(events.EventTypingStop)
	require.Len(t, stops, 2)
	chats := map[uuid.UUID]bool{stops[0].ChatID: true, stops[1].ChatID: true}
	assert.True(t, chats[chatA])
	assert.True(t, chats[chatB])

	// The other user's state survives.
	require.NoError(t, engine.Stop(ctx, chatA, otherID))
	assert.Len(t, bus.byType(events.EventTypingStop), 3)
}

func TestRestartsRacingExpiryNeverOverStop(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, 2*time.Millisecond)
	defer engine.Shutdown()

	chatID := uuid.New()
	userID := uuid.New()
	ctx := context.Background()

	// Restart repeatedly right around the expiry deadline so expiries
	// land before, during, and after the restarts.
	for i := 0; i < 50; i++ {
		require.NoError(t, engine.Start(ctx, chatID, userID))
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	starts := len(bus.byType(events.EventTypingStart))
	stops := len(bus.byType(events.EventTypingStop))
	assert.LessOrEqual(t, stops, starts)
	assert.GreaterOrEqual(t, stops, 1)

	// Everything has expired; an explicit stop finds nothing.
	require.NoError(t, engine.Stop(ctx, chatID, userID))
	assert.Len(t, bus.byType(events.EventTypingStop), stops)
}

func TestShutdownCancelsWithoutBroadcast(t *testing.T) {
	bus := &captureBus{}
	engine := NewTypingEngine(bus, 30*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, engine.Start(ctx, uuid.New(), uuid.New()))

	engine.Shutdown()
	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, bus.byType(events.EventTypingStop))
}
