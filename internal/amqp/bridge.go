package amqp

import (
	"context"
	"log/slog"
	"sync"

	"budget/internal/store"
)

const outboxSize = 1024

// Broker is what the bridge needs from a Client.
type Broker interface {
	PublishChange(ctx context.Context, evt store.ChangeEvent) error
	ConsumeChanges(ctx context.Context, handler func(context.Context, store.ChangeEvent) error) error
}

// LocalHub is the part of realtime.Hub the bridge connects to.
type LocalHub interface {
	Forward(fn func(store.ChangeEvent))
	DeliverRemote(evt store.ChangeEvent)
}

// Bridge mirrors the change events of several instances through the
// exchange: local events are published, remote events are delivered to the
// local hub. Each instance must consume from its own queue.
type Bridge struct {
	broker Broker
	hub    LocalHub
	outbox chan store.ChangeEvent
	wg     sync.WaitGroup
}

func NewBridge(broker Broker, hub LocalHub) *Bridge {
	return &Bridge{
		broker: broker,
		hub:    hub,
		outbox: make(chan store.ChangeEvent, outboxSize),
	}
}

// Start registers the forwarder and runs the publisher until ctx is done.
// Gateway writers never wait on the broker; when the outbox is full the
// event is dropped and logged.
func (b *Bridge) Start(ctx context.Context) {
	b.hub.Forward(func(evt store.ChangeEvent) {
		select {
		case b.outbox <- evt:
		default:
			slog.Warn("Change bridge outbox full, dropping event", "table", evt.Table)
		}
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-b.outbox:
				if err := b.broker.PublishChange(ctx, evt); err != nil {
					slog.ErrorContext(ctx, "Failed to bridge change event",
						"table", evt.Table,
						"type", evt.Type,
						"error", err)
				}
			}
		}
	}()
}

// Consume delivers remote events into the hub until ctx is done.
func (b *Bridge) Consume(ctx context.Context) error {
	return b.broker.ConsumeChanges(ctx, func(_ context.Context, evt store.ChangeEvent) error {
		b.hub.DeliverRemote(evt)
		return nil
	})
}

// Wait blocks until the publisher stopped.
func (b *Bridge) Wait() {
	b.wg.Wait()
}
