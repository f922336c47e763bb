package memory

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
)

func TestSelectFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	g := New(nil)

	_, err := g.Insert(ctx, store.TableVariableExpenses,
		store.Row{"year": int64(2024), "month": int64(1), "date": "2024-01-05", "amount": int64(100)},
		store.Row{"year": int64(2024), "month": int64(1), "date": "2024-01-20", "amount": int64(200)},
		store.Row{"year": int64(2024), "month": int64(2), "date": "2024-02-01", "amount": int64(300)},
		store.Row{"year": int64(2023), "month": int64(1), "date": "2023-01-01", "amount": int64(400)},
	)
	require.NoError(t, err)

	rows, err := g.Select(ctx, store.TableVariableExpenses,
		store.Where(store.Eq("year", 2024), store.Eq("month", 1)).OrderBy(store.Desc("date")))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-20", rows[0].String("date"))
	assert.NotEmpty(t, rows[0].String("id"))
	assert.False(t, rows[0].IsNull("created_at"))

	rows, err = g.Select(ctx, store.TableVariableExpenses,
		store.Where(store.Gte("month", 2)))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = g.Select(ctx, "users", store.Query{})
	assert.ErrorIs(t, err, store.ErrUnknownTable)
}

func TestUniqueKeysAndUpsert(t *testing.T) {
	ctx := context.Background()
	g := New(nil)

	_, err := g.Insert(ctx, store.TableCategories, store.Row{"name": "Food"})
	require.NoError(t, err)
	_, err = g.Insert(ctx, store.TableCategories, store.Row{"name": "Food"})
	assert.ErrorContains(t, err, "duplicate key")

	first, err := g.Upsert(ctx, store.TableMonthlyCreditCard,
		store.Row{"year": int64(2024), "month": int64(3), "amount": int64(100)}, "year", "month")
	require.NoError(t, err)
	second, err := g.Upsert(ctx, store.TableMonthlyCreditCard,
		store.Row{"year": int64(2024), "month": int64(3), "amount": int64(250)}, "year", "month")
	require.NoError(t, err)

	assert.Equal(t, first.String("id"), second.String("id"))
	assert.Equal(t, int64(250), second.Int64("amount"))

	rows, err := g.Select(ctx, store.TableMonthlyCreditCard, store.Query{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpdateRejectsDuplicateNaturalKeys(t *testing.T) {
	ctx := context.Background()
	g := New(nil)

	rows, err := g.Insert(ctx, store.TableCategories, store.Row{"name": "Food"}, store.Row{"name": "Home"})
	require.NoError(t, err)
	homeID := rows[1].String("id")

	_, err = g.Update(ctx, store.TableCategories, store.Row{"name": "Food"}, store.Eq("id", homeID))
	assert.ErrorContains(t, err, "categories_name_key")

	_, err = g.Upsert(ctx, store.TableCategories, store.Row{"id": homeID, "name": "Food"})
	assert.ErrorContains(t, err, "categories_name_key")

	updated, err := g.Update(ctx, store.TableCategories, store.Row{"name": "Home"}, store.Eq("id", homeID))
	require.NoError(t, err, "a row may keep its own key")
	require.Len(t, updated, 1)

	_, err = g.Update(ctx, store.TableCategories, store.Row{"name": "Same"}, store.Gte("name", "A"))
	assert.ErrorContains(t, err, "duplicate key", "patched rows may not collide with each other")

	got, err := g.Select(ctx, store.TableCategories, store.Query{}.OrderBy(store.Asc("name")))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Food", got[0].String("name"))
	assert.Equal(t, "Home", got[1].String("name"))
}

func TestInsertBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub("test")
	g := New(hub)

	events := make(chan store.ChangeEvent, 4)
	unsub := g.Subscribe(store.TableCategories, nil, func(evt store.ChangeEvent) { events <- evt })
	defer unsub()

	_, err := g.Insert(ctx, store.TableCategories,
		store.Row{"name": "Food"}, store.Row{"name": "Home"}, store.Row{"name": "Food"})
	assert.ErrorContains(t, err, "duplicate key")

	rows, err := g.Select(ctx, store.TableCategories, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, events)
}

func TestUpdateAndDeleteRequireFilters(t *testing.T) {
	ctx := context.Background()
	g := New(nil)

	_, err := g.Update(ctx, store.TableCategories, store.Row{"name": "x"})
	assert.ErrorIs(t, err, store.ErrEmptyFilter)
	_, err = g.Delete(ctx, store.TableCategories)
	assert.ErrorIs(t, err, store.ErrEmptyFilter)

	rows, err := g.Insert(ctx, store.TableCategories, store.Row{"name": "Old"})
	require.NoError(t, err)
	id := rows[0].String("id")

	updated, err := g.Update(ctx, store.TableCategories, store.Row{"id": "hijack", "name": "New"}, store.Eq("id", id))
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, id, updated[0].String("id"))
	assert.Equal(t, "New", updated[0].String("name"))

	n, err := g.Delete(ctx, store.TableCategories, store.Eq("id", id))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetOrCreateMonthlyIncome(t *testing.T) {
	ctx := context.Background()
	g := New(nil)

	_, err := g.Call(ctx, store.RPCGetOrCreateMonthlyIncome, store.Row{"year": 2024, "month": 5})
	assert.ErrorIs(t, err, core.ErrDefaultIncomeMissing)

	_, err = g.Insert(ctx, store.TableDefaultIncome, store.Row{
		"lucas_income": int64(300000), "camila_income": int64(250000), "other_income": int64(1000),
	})
	require.NoError(t, err)

	rows, err := g.Call(ctx, store.RPCGetOrCreateMonthlyIncome, store.Row{"year": 2024, "month": 5})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(300000), rows[0].Int64("lucas_income"))

	// Later edits to the default do not touch an existing month.
	_, err = g.Update(ctx, store.TableDefaultIncome, store.Row{"lucas_income": int64(1)}, store.Gte("lucas_income", 0))
	require.NoError(t, err)
	again, err := g.Call(ctx, store.RPCGetOrCreateMonthlyIncome, store.Row{"year": 2024, "month": 5})
	require.NoError(t, err)
	assert.Equal(t, rows[0].String("id"), again[0].String("id"))
	assert.Equal(t, int64(300000), again[0].Int64("lucas_income"))
}

func TestGetOrCreateIsAtomicUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	g := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Call(ctx, store.RPCGetOrCreateMonthlyCreditCard, store.Row{"year": 2024, "month": 7})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := g.Select(ctx, store.TableMonthlyCreditCard, store.Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0].Int64("amount"))
}

func TestInitializeMonthlyFixedExpensesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := New(nil)

	_, err := g.Insert(ctx, store.TableFixedExpenses,
		store.Row{"description": "rent"},
		store.Row{"description": "power"},
	)
	require.NoError(t, err)

	first, err := g.Call(ctx, store.RPCInitializeMonthlyFixed, store.Row{"year": 2024, "month": 1})
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = g.Insert(ctx, store.TableFixedExpenses, store.Row{"description": "internet"})
	require.NoError(t, err)

	second, err := g.Call(ctx, store.RPCInitializeMonthlyFixed, store.Row{"year": 2024, "month": 1})
	require.NoError(t, err)
	assert.Len(t, second, 3)

	third, err := g.Call(ctx, store.RPCInitializeMonthlyFixed, store.Row{"year": 2024, "month": 1})
	require.NoError(t, err)
	assert.Len(t, third, 3)
	for _, s := range third {
		assert.False(t, s.Bool("completed"))
		assert.True(t, s.IsNull("completed_at"))
	}

	_, err = g.Call(ctx, "drop_everything", nil)
	assert.ErrorIs(t, err, store.ErrUnknownRPC)
}

func TestWritesPublishEvents(t *testing.T) {
	ctx := context.Background()
	hub := realtime.NewHub("test")
	g := New(hub)

	events := make(chan store.ChangeEvent, 10)
	unsub := g.Subscribe(store.TableCategories, nil, func(evt store.ChangeEvent) { events <- evt })
	defer unsub()

	rows, err := g.Insert(ctx, store.TableCategories, store.Row{"name": "Food"})
	require.NoError(t, err)
	_, err = g.Delete(ctx, store.TableCategories, store.Eq("id", rows[0].String("id")))
	require.NoError(t, err)

	for _, want := range []store.EventType{store.EventInsert, store.EventDelete} {
		select {
		case evt := <-events:
			assert.Equal(t, want, evt.Type)
			assert.Equal(t, "Food", evt.Row.String("name"))
		case <-time.After(time.Second):
			t.Fatalf("no %s event", want)
		}
	}
}

func TestFailNext(t *testing.T) {
	ctx := context.Background()
	g := New(nil)
	boom := errors.New("connection reset")

	g.FailNext(store.TableCategories, boom)
	_, err := g.Insert(ctx, store.TableCategories, store.Row{"name": "x"})
	assert.ErrorIs(t, err, boom)

	_, err = g.Insert(ctx, store.TableCategories, store.Row{"name": "x"})
	assert.NoError(t, err)
}
