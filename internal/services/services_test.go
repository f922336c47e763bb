package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
	"budget/internal/repository"
	"budget/internal/store"
	"budget/internal/store/memory"
)

func newFixture(t *testing.T) (*repository.Repositories, *memory.Gateway) {
	t.Helper()
	gw := memory.New(nil)
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	gw.SetClock(clock)
	repos := repository.New(gw)
	repos.SetClock(clock)
	return repos, gw
}

func seedFixed(t *testing.T, repos *repository.Repositories, n int) []core.FixedExpense {
	t.Helper()
	ctx := context.Background()
	cat, err := repos.Categories.Create(ctx, "Housing")
	require.NoError(t, err)
	var out []core.FixedExpense
	for i := 0; i < n; i++ {
		f, err := repos.FixedExpenses.Create(ctx, core.FixedExpense{
			CategoryID: cat.ID, Description: "Bill", EstimatedAmount: core.Euros(int64(10 * (i + 1))), Owner: core.OwnerLucas,
		})
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func TestEnsureMonth_IsIdempotentAndBackfillsNewExpenses(t *testing.T) {
	repos, _ := newFixture(t)
	ctx := context.Background()
	svc := NewMonthInitializer(repos)
	seedFixed(t, repos, 2)

	first, err := svc.EnsureMonth(ctx, 2024, 5)
	require.NoError(t, err)
	require.Len(t, first, 2)
	for _, s := range first {
		assert.False(t, s.Completed)
		assert.Nil(t, s.CompletedAt)
	}

	again, err := svc.EnsureMonth(ctx, 2024, 5)
	require.NoError(t, err)
	assert.Len(t, again, 2)

	cats, err := repos.Categories.List(ctx)
	require.NoError(t, err)
	_, err = repos.FixedExpenses.Create(ctx, core.FixedExpense{
		CategoryID: cats[0].ID, Description: "Gym", EstimatedAmount: core.Euros(40), Owner: core.OwnerCamila,
	})
	require.NoError(t, err)

	// Earlier months are not touched until they are initialized again.
	april, err := repos.Statuses.ListMonth(ctx, 2024, 4)
	require.NoError(t, err)
	assert.Empty(t, april)

	again, err = svc.EnsureMonth(ctx, 2024, 5)
	require.NoError(t, err)
	assert.Len(t, again, 3)
}

func TestPrepareMonth_FailsWithoutDefaultIncome(t *testing.T) {
	repos, _ := newFixture(t)
	ctx := context.Background()
	svc := NewMonthInitializer(repos)

	_, err := svc.PrepareMonth(ctx, 2024, 2)
	assert.ErrorIs(t, err, core.ErrDefaultIncomeMissing)

	_, err = repos.DefaultIncome.Set(ctx, core.Incomes{Lucas: core.Euros(2000), Camila: core.Euros(1800), Other: core.Euros(100)})
	require.NoError(t, err)
	seedFixed(t, repos, 1)

	snap, err := svc.PrepareMonth(ctx, 2024, 2)
	require.NoError(t, err)
	assert.Equal(t, core.Euros(3900), snap.Income.Total())
	assert.True(t, snap.CreditCard.Amount.IsZero())
	assert.Len(t, snap.Statuses, 1)

	_, err = svc.PrepareMonth(ctx, 2024, 13)
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}

func TestPrepareMonth_StoreFailureReturnsNoSnapshot(t *testing.T) {
	repos, gw := newFixture(t)
	ctx := context.Background()
	svc := NewMonthInitializer(repos)
	_, err := repos.DefaultIncome.Set(ctx, core.Incomes{Lucas: core.Euros(1)})
	require.NoError(t, err)

	boom := errors.New("network unreachable")
	gw.FailNext(store.RPCInitializeMonthlyFixed, boom)

	snap, err := svc.PrepareMonth(ctx, 2024, 3)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, snap.Year)
}

func TestResetIncomeToDefault(t *testing.T) {
	repos, _ := newFixture(t)
	ctx := context.Background()
	svc := NewMonthInitializer(repos)

	_, err := svc.ResetIncomeToDefault(ctx, 2024, 1)
	assert.ErrorIs(t, err, core.ErrDefaultIncomeMissing)

	_, err = repos.DefaultIncome.Set(ctx, core.Incomes{Lucas: core.Euros(1000)})
	require.NoError(t, err)
	_, err = repos.MonthlyIncome.Set(ctx, 2024, 1, core.Incomes{Lucas: core.Euros(5)})
	require.NoError(t, err)

	income, err := svc.ResetIncomeToDefault(ctx, 2024, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Euros(1000), income.Lucas)
}

func newHoldingService(t *testing.T) (*HoldingService, *repository.Repositories, *memory.Gateway, core.Holding) {
	t.Helper()
	repos, gw := newFixture(t)
	h, err := repos.Holdings.Create(context.Background(), core.Holding{
		Kind: core.KindInvestment, Name: "ETF World", Category: "Stocks", CurrentValue: core.Euros(1000),
	})
	require.NoError(t, err)
	svc := NewHoldingService(repos.Holdings, NewHistoryRecorder(repos.History))
	return svc, repos, gw, h
}

func TestUpdateValue_RecordsHistory(t *testing.T) {
	svc, repos, _, h := newHoldingService(t)
	ctx := context.Background()

	updated, err := svc.UpdateValue(ctx, core.KindInvestment, h.ID, core.Euros(1250), "user-42")
	require.NoError(t, err)
	assert.Equal(t, core.Euros(1250), updated.CurrentValue)

	history, err := repos.History.List(ctx, core.KindInvestment, h.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.Euros(1000), history[0].PreviousValue)
	assert.Equal(t, core.Euros(1250), history[0].NewValue)
	assert.Equal(t, "user-42", history[0].UpdatedBy)
}

func TestUpdateValue_RequiresUserAndExistingHolding(t *testing.T) {
	svc, repos, _, h := newHoldingService(t)
	ctx := context.Background()

	_, err := svc.UpdateValue(ctx, core.KindInvestment, h.ID, core.Euros(1), " ")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	_, err = svc.UpdateValue(ctx, core.KindInvestment, "missing", core.Euros(1), "user")
	assert.ErrorIs(t, err, core.ErrNotFound)

	got, err := repos.Holdings.Get(ctx, core.KindInvestment, h.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Euros(1000), got.CurrentValue, "rejected updates leave the value alone")
}

func TestUpdateValue_HistoryFailureKeepsNewValue(t *testing.T) {
	svc, repos, gw, h := newHoldingService(t)
	ctx := context.Background()
	boom := errors.New("insert failed")
	gw.FailNext(store.TableInvestmentHistory, boom)

	updated, err := svc.UpdateValue(ctx, core.KindInvestment, h.ID, core.Euros(900), "user")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrHistoryNotRecorded)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.Euros(900), updated.CurrentValue)

	got, err := repos.Holdings.Get(ctx, core.KindInvestment, h.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Euros(900), got.CurrentValue)

	history, err := repos.History.List(ctx, core.KindInvestment, h.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

type fakePreparer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakePreparer) PrepareMonth(_ context.Context, year, month int) (core.MonthSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, core.MonthKey(year, month))
	if f.err != nil {
		return core.MonthSnapshot{}, f.err
	}
	return core.MonthSnapshot{Year: year, Month: month}, nil
}

func (f *fakePreparer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestDefaultRolloverConfig(t *testing.T) {
	config := DefaultRolloverConfig()
	assert.Equal(t, time.Hour, config.Interval)
	assert.Zero(t, config.Lookahead)
}

func TestMonthRollover_RunOnceWithLookahead(t *testing.T) {
	prep := &fakePreparer{}
	p := NewMonthRollover(prep, RolloverConfig{Interval: time.Hour, Lookahead: 48 * time.Hour})

	p.now = func() time.Time { return time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC) }
	assert.Equal(t, []string{"2024-12", "2025-01"}, p.RunOnce(context.Background()))

	p.now = func() time.Time { return time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC) }
	assert.Equal(t, []string{"2025-01"}, p.RunOnce(context.Background()))
}

func TestMonthRollover_FailuresAreSkipped(t *testing.T) {
	prep := &fakePreparer{err: core.ErrDefaultIncomeMissing}
	p := NewMonthRollover(prep, DefaultRolloverConfig())
	assert.Empty(t, p.RunOnce(context.Background()))
	assert.Len(t, prep.Calls(), 1)
}

func TestMonthRollover_Lifecycle(t *testing.T) {
	prep := &fakePreparer{}
	p := NewMonthRollover(prep, RolloverConfig{Interval: 20 * time.Millisecond})
	assert.False(t, p.IsRunning())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(ctx), "second start is rejected")

	assert.Eventually(t, func() bool { return len(prep.Calls()) >= 2 }, time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Stop(stopCtx), "stopping a stopped processor is a no-op")
}

type blockingPreparer struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingPreparer) PrepareMonth(ctx context.Context, year, month int) (core.MonthSnapshot, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return core.MonthSnapshot{Year: year, Month: month}, nil
}

func TestMonthRollover_StopAfterTimeoutCanBeRetried(t *testing.T) {
	prep := &blockingPreparer{started: make(chan struct{}), release: make(chan struct{})}
	p := NewMonthRollover(prep, RolloverConfig{Interval: time.Hour})
	require.NoError(t, p.Start(context.Background()))
	<-prep.started

	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(short), context.DeadlineExceeded)
	assert.True(t, p.IsRunning())

	assert.NotPanics(t, func() {
		assert.ErrorIs(t, p.Stop(short), context.DeadlineExceeded)
	})

	close(prep.release)
	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, p.IsRunning())
}

func TestMonthRollover_RejectsNonPositiveInterval(t *testing.T) {
	p := NewMonthRollover(&fakePreparer{}, RolloverConfig{})
	assert.Error(t, p.Start(context.Background()))
	assert.False(t, p.IsRunning())
}
