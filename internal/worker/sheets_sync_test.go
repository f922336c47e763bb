package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/budget"
	"budget/internal/core"
	"budget/internal/export"
	"budget/internal/log"
	"budget/internal/realtime"
	"budget/internal/repository"
	"budget/internal/services"
	"budget/internal/session"
	"budget/internal/store/memory"
)

type fakeExporter struct {
	mu      sync.Mutex
	reports []export.YearReport
	err     error
}

func (f *fakeExporter) ExportYear(_ context.Context, report export.YearReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeExporter) last() (export.YearReport, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reports) == 0 {
		return export.YearReport{}, 0
	}
	return f.reports[len(f.reports)-1], len(f.reports)
}

func newSync(t *testing.T, exporter YearExporter) (*SheetsSync, *repository.Repositories) {
	t.Helper()
	hub := realtime.NewHub("worker-test")
	gw := memory.New(hub)
	repos := repository.New(gw)
	sess := session.New(session.Dependencies{
		Gateway: gw,
		Repos:   repos,
		Months:  services.NewMonthInitializer(repos),
		Engine:  budget.NewEngine(repos),
	}, 5*time.Millisecond)

	w := NewSheetsSync(sess, exporter, 10*time.Millisecond, log.New(log.Config{Output: &bytes.Buffer{}}))
	w.now = func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(w.Stop)
	return w, repos
}

func TestSheetsSync_ExportsOnOpenAndOnChange(t *testing.T) {
	exporter := &fakeExporter{}
	w, repos := newSync(t, exporter)
	ctx := context.Background()

	_, err := repos.DefaultIncome.Set(ctx, core.Incomes{Lucas: core.Euros(1000)})
	require.NoError(t, err)
	cat, err := repos.Categories.Create(ctx, "Food")
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool { _, n := exporter.last(); return n >= 1 }, time.Second, 5*time.Millisecond)
	report, _ := exporter.last()
	assert.Equal(t, 2024, report.Year)
	assert.Empty(t, report.Comparison)

	_, err = repos.VariableExpenses.Create(ctx, core.VariableExpense{
		CategoryID: cat.ID, Description: "Market", Amount: core.Euros(42), Date: core.NewDate(2024, 5, 3),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		report, _ := exporter.last()
		return len(report.Comparison) == 1 && len(report.Matrix) == 1
	}, time.Second, 5*time.Millisecond)
	report, _ = exporter.last()
	assert.Equal(t, core.Euros(42), report.Comparison[0].Actual)
	assert.Equal(t, "Food", report.Matrix[0].Category)
	assert.GreaterOrEqual(t, w.Exports(), 2)
}

func TestSheetsSync_FollowReopensOnlyOnNewMonth(t *testing.T) {
	w, repos := newSync(t, &fakeExporter{})
	ctx := context.Background()

	err := w.Start(ctx)
	assert.ErrorIs(t, err, core.ErrDefaultIncomeMissing)
	assert.ErrorContains(t, w.Start(ctx), "already running")

	_, err = repos.DefaultIncome.Set(ctx, core.Incomes{Camila: core.Euros(10)})
	require.NoError(t, err)
	require.NoError(t, w.Follow(ctx))
	year, month := w.session.Month()
	assert.Equal(t, 2024, year)
	assert.Equal(t, 5, month)

	w.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, w.Follow(ctx))
	_, month = w.session.Month()
	assert.Equal(t, 6, month)
}

func TestSheetsSync_ExportErrorsAreReported(t *testing.T) {
	exporter := &fakeExporter{err: errors.New("quota exceeded")}
	w, repos := newSync(t, exporter)
	ctx := context.Background()
	_, err := repos.DefaultIncome.Set(ctx, core.Incomes{})
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	assert.EqualError(t, w.exportYear(ctx), "quota exceeded")
	assert.Equal(t, 0, w.Exports())
}
