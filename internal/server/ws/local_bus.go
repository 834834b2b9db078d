package ws

import (
	"context"
	"errors"
)

// LocalBus is an in-process domain.SignalBus that publishes straight to a
// Hub. It stands in for Redis when no shared bus is configured. Streams are
// discarded and subscriptions are not supported.
type LocalBus struct {
	hub *Hub
}

// NewLocalBus creates a LocalBus feeding hub.
func NewLocalBus(hub *Hub) *LocalBus {
	return &LocalBus{hub: hub}
}

// Publish broadcasts payload to clients subscribed to channel.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.hub.Broadcast(channel, payload)
	return nil
}

// Subscribe is unsupported on the local bus.
func (b *LocalBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("ws: local bus does not support subscriptions")
}

// StreamAppend is a no-op.
func (b *LocalBus) StreamAppend(context.Context, string, []byte) error {
	return nil
}
