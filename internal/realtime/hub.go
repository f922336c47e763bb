// Package realtime fans gateway change events out to subscribers and
// coalesces bursts of notifications into single re-fetches.
package realtime

import (
	"log/slog"
	"sync"

	"budget/internal/store"
)

const subscriberBuffer = 256

// Hub delivers change events to table-scoped subscriptions. Each
// subscription is served by its own goroutine, so a subscriber sees its
// events one at a time and in publish order. There is no ordering between
// different subscriptions.
type Hub struct {
	origin string

	mu         sync.RWMutex
	subs       map[uint64]*subscription
	next       uint64
	forwarders []func(store.ChangeEvent)
}

type subscription struct {
	table   string
	filters []store.Filter
	fn      func(store.ChangeEvent)
	ch      chan store.ChangeEvent
	done    chan struct{}
	once    sync.Once
}

// NewHub creates a hub. origin tags locally published events so bridged
// copies can be recognised when they come back.
func NewHub(origin string) *Hub {
	return &Hub{
		origin: origin,
		subs:   make(map[uint64]*subscription),
	}
}

// Origin returns the instance tag stamped on local events.
func (h *Hub) Origin() string {
	return h.origin
}

// Publish stamps the event with this hub's origin, delivers it locally and
// hands it to every forwarder.
func (h *Hub) Publish(evt store.ChangeEvent) {
	evt.Origin = h.origin
	h.Deliver(evt)

	h.mu.RLock()
	forwarders := append([]func(store.ChangeEvent){}, h.forwarders...)
	h.mu.RUnlock()
	for _, fwd := range forwarders {
		fwd(evt)
	}
}

// Deliver hands an event to local subscribers only. A subscriber whose
// buffer is full misses the event.
func (h *Hub) Deliver(evt store.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if s.table != "" && s.table != evt.Table {
			continue
		}
		if !store.MatchAll(evt.Row, s.filters) {
			continue
		}
		select {
		case s.ch <- evt:
		case <-s.done:
		default:
			slog.Warn("Change subscriber is lagging, dropping event", "table", evt.Table)
		}
	}
}

// DeliverRemote is Deliver for events received from another instance; it
// ignores echoes of this hub's own events.
func (h *Hub) DeliverRemote(evt store.ChangeEvent) {
	if evt.Origin == h.origin {
		return
	}
	slog.Debug("Delivering bridged change event", "table", evt.Table, "origin", evt.Origin)
	h.Deliver(evt)
}

// Forward registers fn to receive every locally published event.
func (h *Hub) Forward(fn func(store.ChangeEvent)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forwarders = append(h.forwarders, fn)
}

// Subscribe registers fn for events on table ("" for all tables) whose row
// matches every filter. The returned function unsubscribes and is safe to
// call more than once. Events already being handled when it is called may
// still complete.
func (h *Hub) Subscribe(table string, filters []store.Filter, fn func(store.ChangeEvent)) func() {
	s := &subscription{
		table:   table,
		filters: append([]store.Filter(nil), filters...),
		fn:      fn,
		ch:      make(chan store.ChangeEvent, subscriberBuffer),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = s
	h.mu.Unlock()

	go s.run()

	return func() {
		s.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(s.done)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case evt := <-s.ch:
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(evt)
		}
	}
}
