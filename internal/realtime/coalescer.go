package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coalescer turns a stream of change notifications into re-fetches. All
// triggers arriving within one window produce a single call to fetch.
// Flushes share an in-flight call only if it started after they were
// requested; otherwise they wait for one follow-up call.
type Coalescer struct {
	window time.Duration
	fetch  func(context.Context) error
	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group

	mu        sync.Mutex
	timer     *time.Timer
	stopped   bool
	requested uint64

	// OnError is called with fetch failures from timer-driven runs.
	OnError func(error)
}

// NewCoalescer returns a coalescer bound to ctx; cancelling ctx stops it.
func NewCoalescer(ctx context.Context, window time.Duration, fetch func(context.Context) error) *Coalescer {
	cctx, cancel := context.WithCancel(ctx)
	return &Coalescer{
		window: window,
		fetch:  fetch,
		ctx:    cctx,
		cancel: cancel,
	}
}

// Trigger schedules a re-fetch at the end of the current window. The window
// is not extended by later triggers, so a steady stream of notifications
// still re-fetches once per window.
func (c *Coalescer) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.window, c.fire)
}

func (c *Coalescer) fire() {
	c.mu.Lock()
	c.timer = nil
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}
	if err := c.Flush(c.ctx); err != nil && c.ctx.Err() == nil {
		if c.OnError != nil {
			c.OnError(err)
		} else {
			slog.Warn("Coalesced re-fetch failed", "error", err)
		}
	}
}

// Flush runs fetch now and returns once a call that started after this
// request has finished. Callers arriving while a fetch runs share a single
// follow-up call.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.requested++
	want := c.requested
	c.mu.Unlock()

	for {
		ch := c.group.DoChan("fetch", func() (any, error) {
			c.mu.Lock()
			covered := c.requested
			c.mu.Unlock()
			return covered, c.fetch(c.ctx)
		})
		select {
		case res := <-ch:
			if res.Val.(uint64) >= want {
				return res.Err
			}
			if err := c.ctx.Err(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop cancels any pending window and the context passed to fetch.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.cancel()
}
