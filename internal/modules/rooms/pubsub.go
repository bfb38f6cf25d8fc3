// README: Pub/sub backend abstraction; in-memory for single-process, Redis for multi-process.
package rooms

import (
	"context"
	"encoding/json"
	"sync"
)

// Envelope is the wire form of one room broadcast.
type Envelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// PubSubBackend decouples "a broadcast was requested" from "deliver it to
// the sessions connected to this process". A multi-process deployment backs
// this with a shared broker so every instance sees every broadcast.
type PubSubBackend interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(fn func(env Envelope))
	Close() error
}

// MemoryPubSub is the single-process backend: publish invokes subscribers
// directly.
type MemoryPubSub struct {
	mu       sync.RWMutex
	handlers []func(env Envelope)
}

func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{}
}

func (m *MemoryPubSub) Publish(ctx context.Context, env Envelope) error {
	m.mu.RLock()
	handlers := m.handlers
	m.mu.RUnlock()
	for _, fn := range handlers {
		fn(env)
	}
	return nil
}

func (m *MemoryPubSub) Subscribe(fn func(env Envelope)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	m.mu.Unlock()
}

func (m *MemoryPubSub) Close() error { return nil }
