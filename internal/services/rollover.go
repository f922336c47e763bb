package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budget/internal/core"
)

// RolloverConfig holds configuration for the month rollover processor
type RolloverConfig struct {
	// Interval is how often the current month is checked (default: 1h)
	Interval time.Duration

	// Lookahead also prepares the following month when the current one ends
	// within this duration (default: 0, disabled)
	Lookahead time.Duration
}

// DefaultRolloverConfig returns sensible defaults
func DefaultRolloverConfig() RolloverConfig {
	return RolloverConfig{
		Interval: time.Hour,
	}
}

// monthPreparer is the part of MonthInitializer the rollover needs.
type monthPreparer interface {
	PrepareMonth(ctx context.Context, year, month int) (core.MonthSnapshot, error)
}

// MonthRollover keeps the current month initialized so the first visitor of
// a new month finds its rows already in place.
type MonthRollover struct {
	months monthPreparer
	config RolloverConfig
	now    func() time.Time

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	lastMonth string
}

// NewMonthRollover creates a new rollover processor
func NewMonthRollover(months monthPreparer, config RolloverConfig) *MonthRollover {
	return &MonthRollover{
		months: months,
		config: config,
		now:    time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *MonthRollover) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("month rollover is already running")
	}
	if p.config.Interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("rollover interval must be positive, got %v", p.config.Interval)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Month rollover started",
		"interval", p.config.Interval,
		"lookahead", p.config.Lookahead)

	return nil
}

// Stop gracefully stops the processor and waits for completion. After a
// timeout Stop may be called again to keep waiting.
func (p *MonthRollover) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	if !p.stopping {
		p.stopping = true
		close(p.stopCh)
	}
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Month rollover stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Month rollover stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.stopping = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *MonthRollover) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MonthRollover) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Prepare immediately on startup
	p.RunOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce prepares the current month and, inside the lookahead window, the
// next one. It returns the months it prepared.
func (p *MonthRollover) RunOnce(ctx context.Context) []string {
	now := p.now()
	targets := []time.Time{now}
	if p.config.Lookahead > 0 {
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		if next.Sub(now) <= p.config.Lookahead {
			targets = append(targets, next)
		}
	}

	var prepared []string
	for _, t := range targets {
		year, month := t.Year(), int(t.Month())
		key := core.MonthKey(year, month)
		if _, err := p.months.PrepareMonth(ctx, year, month); err != nil {
			if errors.Is(err, core.ErrDefaultIncomeMissing) {
				slog.WarnContext(ctx, "Skipping rollover until a default income is configured", "month", key)
			} else {
				slog.ErrorContext(ctx, "Month rollover failed", "month", key, "error", err)
			}
			continue
		}
		prepared = append(prepared, key)
	}

	if len(prepared) > 0 {
		p.mu.Lock()
		changed := p.lastMonth != prepared[0]
		p.lastMonth = prepared[0]
		p.mu.Unlock()
		if changed {
			slog.InfoContext(ctx, "Current month prepared", "months", prepared)
		}
	}
	return prepared
}
