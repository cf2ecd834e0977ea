package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelEvents = "pulsechat:events"

// RedisBus relays envelopes through redis pub/sub so multiple server
// instances sharing one store converge on the same fan-out. The
// publishing instance receives its own envelopes back through the
// subscription, which keeps delivery uniform across instances.
type RedisBus struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	mu       sync.RWMutex
	handlers []func(Envelope)
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
}

func NewRedisBus(client *redis.Client) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		logger: zap.L().With(zap.String("component", "redis_bus")),
	}
}

func (b *RedisBus) Start() error {
	b.pubsub = b.client.Subscribe(b.ctx, channelEvents)
	// Force the subscription before anything publishes.
	if _, err := b.pubsub.Receive(b.ctx); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	go b.listen()
	return nil
}

func (b *RedisBus) Stop() error {
	b.cancel()
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return b.client.Publish(ctx, channelEvents, data).Err()
}

func (b *RedisBus) Subscribe(fn func(env Envelope)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

func (b *RedisBus) listen() {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed envelope", zap.Error(err))
				continue
			}
			b.dispatch(env)
		}
	}
}

func (b *RedisBus) dispatch(env Envelope) {
	b.mu.RLock()
	handlers := make([]func(Envelope), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(env)
	}
}
