// Package worker keeps the Google Sheets copy of the current year in step
// with the data store.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"budget/internal/core"
	"budget/internal/export"
	"budget/internal/log"
	"budget/internal/realtime"
	"budget/internal/session"
)

// YearExporter writes a year's views somewhere outside the store.
type YearExporter interface {
	ExportYear(ctx context.Context, report export.YearReport) error
}

// SheetsSync follows the current month through a session and re-exports
// the year whenever its comparison or matrix view reloads. Reloads arriving
// within the window produce one export.
type SheetsSync struct {
	session  *session.Session
	exporter YearExporter
	window   time.Duration
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	export  *realtime.Coalescer
	opened  string
	exports int
}

func NewSheetsSync(sess *session.Session, exporter YearExporter, window time.Duration, logger *log.Logger) *SheetsSync {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SheetsSync{
		session:  sess,
		exporter: exporter,
		window:   window,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// Start opens the current month and begins exporting. Call Stop to end it.
func (w *SheetsSync) Start(ctx context.Context) error {
	c := realtime.NewCoalescer(ctx, w.window, w.exportYear)
	c.OnError = func(err error) {
		w.logger.ErrorContext(ctx, "Sheets export failed", log.FieldError, err)
	}

	w.mu.Lock()
	if w.export != nil {
		w.mu.Unlock()
		c.Stop()
		return fmt.Errorf("sheets sync is already running")
	}
	w.export = c
	w.mu.Unlock()

	w.session.OnChange(func(view string) {
		if view == session.ViewComparison || view == session.ViewMatrix {
			c.Trigger()
		}
	})
	return w.Follow(ctx)
}

// Follow reopens the session when the calendar month changed since the last
// successful open.
func (w *SheetsSync) Follow(ctx context.Context) error {
	now := w.now()
	year, month := now.Year(), int(now.Month())
	key := core.MonthKey(year, month)

	w.mu.Lock()
	current := w.opened
	w.mu.Unlock()
	if current == key {
		return nil
	}

	if err := w.session.OpenMonth(ctx, year, month); err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	w.mu.Lock()
	w.opened = key
	w.mu.Unlock()
	w.logger.InfoContext(ctx, "Following month", log.FieldYear, year, log.FieldMonth, month)
	return nil
}

// Run calls Follow every interval until ctx is done.
func (w *SheetsSync) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Follow(ctx); err != nil {
				w.logger.WarnContext(ctx, "Cannot follow current month", log.FieldError, err)
			}
		}
	}
}

// Exports returns how many exports completed.
func (w *SheetsSync) Exports() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exports
}

func (w *SheetsSync) Stop() {
	w.mu.Lock()
	c := w.export
	w.export = nil
	w.mu.Unlock()
	if c != nil {
		c.Stop()
	}
	w.session.Close()
}

// exportYear sends the session's year views. While either view is still
// loading nothing is sent; its completion triggers another attempt.
func (w *SheetsSync) exportYear(ctx context.Context) error {
	year, _ := w.session.Month()
	if year == 0 {
		return nil
	}
	comparison, loadingC, errC := w.session.Comparison.Snapshot()
	matrix, loadingM, errM := w.session.Matrix.Snapshot()
	if loadingC || loadingM {
		return nil
	}
	if errC != nil {
		return fmt.Errorf("comparison view: %w", errC)
	}
	if errM != nil {
		return fmt.Errorf("matrix view: %w", errM)
	}

	start := time.Now()
	if err := w.exporter.ExportYear(ctx, export.YearReport{Year: year, Comparison: comparison, Matrix: matrix}); err != nil {
		return err
	}
	w.mu.Lock()
	w.exports++
	w.mu.Unlock()
	w.logger.InfoContext(ctx, "Exported year to Google Sheets",
		log.FieldYear, year,
		"categories", len(matrix),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}
