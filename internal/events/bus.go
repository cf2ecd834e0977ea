package events

import (
	"context"
	"sync"
)

// Bus carries envelopes from the mutation path to every instance's room
// fan-out. A broadcast that reaches nobody is a no-op; durability is the
// store's job.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(fn func(env Envelope))
}

// LocalBus is the in-process bus for single-instance deployments and
// tests. Dispatch is synchronous with Publish.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []func(Envelope)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	handlers := make([]func(Envelope), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(env)
	}
	return nil
}

func (b *LocalBus) Subscribe(fn func(env Envelope)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}
