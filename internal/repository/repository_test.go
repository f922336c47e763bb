package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/core"
	"budget/internal/realtime"
	"budget/internal/store"
	"budget/internal/store/memory"
)

// tickingClock returns a time source that advances one second per call.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newRepos(t *testing.T) (*Repositories, *memory.Gateway) {
	t.Helper()
	gw := memory.New(nil)
	clock := tickingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	gw.SetClock(clock)
	repos := New(gw)
	repos.SetClock(clock)
	return repos, gw
}

func mustCategory(t *testing.T, repos *Repositories, name string) core.Category {
	t.Helper()
	c, err := repos.Categories.Create(context.Background(), name)
	require.NoError(t, err)
	return c
}

func TestCategories_CreateListRename(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	mustCategory(t, repos, "  Transport ")
	food := mustCategory(t, repos, "Food")

	_, err := repos.Categories.Create(ctx, "   ")
	assert.ErrorIs(t, err, core.ErrEmptyName)

	list, err := repos.Categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Food", list[0].Name)
	assert.Equal(t, "Transport", list[1].Name, "names are trimmed")

	renamed, err := repos.Categories.Rename(ctx, food.ID, "Groceries")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", renamed.Name)

	_, err = repos.Categories.Rename(ctx, "missing", "X")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCategories_RenameKeepsNamesUnique(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	mustCategory(t, repos, "Food")
	home := mustCategory(t, repos, "Home")

	_, err := repos.Categories.Rename(ctx, home.ID, "Food")
	assert.ErrorContains(t, err, "duplicate key")

	list, err := repos.Categories.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Food", list[0].Name)
	assert.Equal(t, "Home", list[1].Name)
}

func TestCategories_DeleteReferencedIsRejected(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()
	cat := mustCategory(t, repos, "Leisure")

	_, err := repos.VariableExpenses.Create(ctx, core.VariableExpense{
		CategoryID: cat.ID, Description: "Cinema", Amount: core.Euros(12), Date: core.NewDate(2024, 2, 3),
	})
	require.NoError(t, err)

	err = repos.Categories.Delete(ctx, cat.ID)
	assert.ErrorIs(t, err, core.ErrCategoryInUse)

	unused := mustCategory(t, repos, "Unused")
	require.NoError(t, repos.Categories.Delete(ctx, unused.ID))
	assert.ErrorIs(t, repos.Categories.Delete(ctx, unused.ID), core.ErrNotFound)
}

func TestFixedExpenses_DeleteRemovesStatuses(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()
	cat := mustCategory(t, repos, "Housing")

	rent, err := repos.FixedExpenses.Create(ctx, core.FixedExpense{
		CategoryID: cat.ID, Description: "Rent", EstimatedAmount: core.Euros(1200), Owner: core.OwnerLucas,
	})
	require.NoError(t, err)
	_, err = repos.FixedExpenses.Create(ctx, core.FixedExpense{
		CategoryID: cat.ID, Description: "Water", EstimatedAmount: core.Euros(30), Owner: core.OwnerCamila,
	})
	require.NoError(t, err)

	statuses, err := repos.Statuses.Initialize(ctx, 2024, 3)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, rent.ID, statuses[0].FixedExpenseID, "statuses follow fixed expense creation order")

	require.NoError(t, repos.FixedExpenses.Delete(ctx, rent.ID))

	statuses, err = repos.Statuses.ListMonth(ctx, 2024, 3)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.NotEqual(t, rent.ID, statuses[0].FixedExpenseID)

	assert.ErrorIs(t, repos.FixedExpenses.Delete(ctx, rent.ID), core.ErrNotFound)
}

func TestFixedExpenses_Validation(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()
	cat := mustCategory(t, repos, "Housing")

	_, err := repos.FixedExpenses.Create(ctx, core.FixedExpense{
		CategoryID: cat.ID, Description: "Rent", EstimatedAmount: core.Euros(1), Owner: "Someone",
	})
	assert.ErrorIs(t, err, core.ErrInvalidOwner)

	_, err = repos.FixedExpenses.Create(ctx, core.FixedExpense{
		CategoryID: "nope", Description: "Rent", EstimatedAmount: core.Euros(1), Owner: core.OwnerLucas,
	})
	assert.ErrorIs(t, err, core.ErrMissingCategory)
}

func TestVariableExpenses_CreateDerivesPeriodAndOrdersByDate(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()
	cat := mustCategory(t, repos, "Food")

	for _, day := range []int{3, 17, 9} {
		_, err := repos.VariableExpenses.Create(ctx, core.VariableExpense{
			CategoryID: cat.ID, Description: "Market", Amount: core.Money{Cents: 1050}, Date: core.NewDate(2024, 5, day),
		})
		require.NoError(t, err)
	}
	_, err := repos.VariableExpenses.Create(ctx, core.VariableExpense{
		CategoryID: cat.ID, Description: "Refund", Amount: core.Money{Cents: -500}, Date: core.NewDate(2024, 6, 1),
	})
	require.NoError(t, err, "negative amounts are accepted")

	may, err := repos.VariableExpenses.ListMonth(ctx, 2024, 5)
	require.NoError(t, err)
	require.Len(t, may, 3)
	assert.Equal(t, 17, may[0].Date.Day())
	assert.Equal(t, 3, may[2].Date.Day())
	assert.Equal(t, 5, may[0].Month)

	year, err := repos.VariableExpenses.ListYear(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, year, 4)

	_, err = repos.VariableExpenses.Create(ctx, core.VariableExpense{
		CategoryID: cat.ID, Description: "Zero", Date: core.NewDate(2024, 6, 1),
	})
	assert.ErrorIs(t, err, core.ErrMissingAmount)
}

func TestIncome_DefaultAndMonthly(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	_, err := repos.DefaultIncome.Get(ctx)
	assert.ErrorIs(t, err, core.ErrDefaultIncomeMissing)
	_, err = repos.MonthlyIncome.GetOrCreate(ctx, 2024, 1)
	assert.ErrorIs(t, err, core.ErrDefaultIncomeMissing)

	first, err := repos.DefaultIncome.Set(ctx, core.Incomes{Lucas: core.Euros(3000), Camila: core.Euros(2500)})
	require.NoError(t, err)
	second, err := repos.DefaultIncome.Set(ctx, core.Incomes{Lucas: core.Euros(3100), Camila: core.Euros(2500)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "default income is a singleton")
	assert.True(t, second.LastUpdated.After(first.LastUpdated))

	jan, err := repos.MonthlyIncome.GetOrCreate(ctx, 2024, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Euros(3100), jan.Lucas)

	edited, err := repos.MonthlyIncome.Set(ctx, 2024, 1, core.Incomes{Lucas: core.Euros(1), Camila: core.Euros(2), Other: core.Euros(3)})
	require.NoError(t, err)
	assert.Equal(t, jan.ID, edited.ID)
	assert.Equal(t, core.Euros(6), edited.Total())

	_, err = repos.MonthlyIncome.Set(ctx, 2024, 1, core.Incomes{Lucas: core.Money{Cents: -1}})
	assert.ErrorIs(t, err, core.ErrNegativeAmount)
}

func TestCreditCard_GetOrCreateAndSet(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	card, err := repos.CreditCards.GetOrCreate(ctx, 2024, 8)
	require.NoError(t, err)
	assert.True(t, card.Amount.IsZero())

	set, err := repos.CreditCards.Set(ctx, 2024, 8, core.Money{Cents: 45075})
	require.NoError(t, err)
	assert.Equal(t, card.ID, set.ID)

	again, err := repos.CreditCards.GetOrCreate(ctx, 2024, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(45075), again.Amount.Cents)

	_, err = repos.CreditCards.GetOrCreate(ctx, 2024, 0)
	assert.ErrorIs(t, err, core.ErrInvalidMonth)
}

func TestStatuses_SetCompletedKeepsTimestampConsistent(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()
	cat := mustCategory(t, repos, "Bills")
	_, err := repos.FixedExpenses.Create(ctx, core.FixedExpense{
		CategoryID: cat.ID, Description: "Phone", EstimatedAmount: core.Euros(20), Owner: core.OwnerCamila, StatusRequired: true,
	})
	require.NoError(t, err)

	statuses, err := repos.Statuses.Initialize(ctx, 2024, 4)
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	done, err := repos.Statuses.SetCompleted(ctx, statuses[0].ID, true)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)

	undone, err := repos.Statuses.SetCompleted(ctx, statuses[0].ID, false)
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	assert.Nil(t, undone.CompletedAt)

	_, err = repos.Statuses.SetCompleted(ctx, "missing", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestHoldingsAndHistory(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()
	target := core.Euros(10000)

	reserve, err := repos.Holdings.Create(ctx, core.Holding{
		Kind: core.KindReserve, Name: "Emergency", CurrentValue: core.Euros(2000), TargetValue: &target,
	})
	require.NoError(t, err)
	require.NotNil(t, reserve.TargetValue)
	assert.Equal(t, target, *reserve.TargetValue)

	_, err = repos.Holdings.Create(ctx, core.Holding{
		Kind: core.KindInvestment, Name: "ETF", CurrentValue: core.Euros(1), TargetValue: &target,
	})
	assert.Error(t, err, "investments carry no target")

	updated, err := repos.Holdings.SetValue(ctx, core.KindReserve, reserve.ID, core.Euros(2500))
	require.NoError(t, err)
	assert.Equal(t, core.Euros(2500), updated.CurrentValue)
	assert.True(t, updated.LastUpdated.After(reserve.LastUpdated))

	_, err = repos.Holdings.SetValue(ctx, core.KindReserve, "missing", core.Euros(1))
	assert.ErrorIs(t, err, core.ErrNotFound)

	for _, v := range []int64{2500, 2700} {
		_, err := repos.History.Append(ctx, core.HistoryEntry{
			Kind: core.KindReserve, HoldingID: reserve.ID, PreviousValue: core.Euros(2000), NewValue: core.Euros(v), UpdatedBy: "user-1",
		})
		require.NoError(t, err)
	}
	history, err := repos.History.List(ctx, core.KindReserve, reserve.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, core.Euros(2700), history[0].NewValue, "newest first")

	_, err = repos.History.Append(ctx, core.HistoryEntry{Kind: core.KindReserve, HoldingID: reserve.ID})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	_, err = repos.Holdings.List(ctx, "bond")
	assert.ErrorIs(t, err, core.ErrInvalidKind)
}

func TestStoreErrorsKeepTheirMessage(t *testing.T) {
	repos, gw := newRepos(t)
	boom := errors.New("connection reset by peer")
	gw.FailNext(store.TableCategories, boom)

	_, err := repos.Categories.Create(context.Background(), "Food")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.False(t, core.IsValidation(err))
}

func TestWritesPublishChangeEvents(t *testing.T) {
	hub := realtime.NewHub("test")
	gw := memory.New(hub)
	repos := New(gw)

	got := make(chan store.ChangeEvent, 4)
	unsubscribe := hub.Subscribe(store.TableCategories, nil, func(evt store.ChangeEvent) { got <- evt })
	defer unsubscribe()

	_, err := repos.Categories.Create(context.Background(), "Travel")
	require.NoError(t, err)

	select {
	case evt := <-got:
		assert.Equal(t, store.EventInsert, evt.Type)
		assert.Equal(t, "Travel", evt.Row.String("name"))
	case <-time.After(2 * time.Second):
		t.Fatal("no change event delivered")
	}
}
