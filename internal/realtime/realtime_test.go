package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budget/internal/store"
)

func incomeEvent(year, month int) store.ChangeEvent {
	return store.ChangeEvent{
		Table: store.TableMonthlyIncome,
		Type:  store.EventUpdate,
		Row:   store.Row{"year": int64(year), "month": int64(month)},
		At:    time.Now(),
	}
}

func TestHubSubscribeFiltersByTableAndRow(t *testing.T) {
	hub := NewHub("local")

	var mu sync.Mutex
	var got []store.ChangeEvent
	unsub := hub.Subscribe(store.TableMonthlyIncome,
		[]store.Filter{store.Eq("year", 2024), store.Eq("month", 3)},
		func(evt store.ChangeEvent) {
			mu.Lock()
			got = append(got, evt)
			mu.Unlock()
		})
	defer unsub()

	hub.Publish(incomeEvent(2024, 3))
	hub.Publish(incomeEvent(2024, 4))
	hub.Publish(store.ChangeEvent{Table: store.TableMonthlyCreditCard, Row: store.Row{"year": int64(2024), "month": int64(3)}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1)
	assert.Equal(t, "local", got[0].Origin)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub("local")
	var calls atomic.Int32
	unsub := hub.Subscribe("", nil, func(store.ChangeEvent) { calls.Add(1) })

	hub.Publish(incomeEvent(2024, 1))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish(incomeEvent(2024, 1))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHubForwardAndRemoteEcho(t *testing.T) {
	hub := NewHub("a")
	var forwarded []store.ChangeEvent
	hub.Forward(func(evt store.ChangeEvent) { forwarded = append(forwarded, evt) })

	var calls atomic.Int32
	defer hub.Subscribe("", nil, func(store.ChangeEvent) { calls.Add(1) })()

	hub.Publish(incomeEvent(2024, 1))
	require.Len(t, forwarded, 1)
	assert.Equal(t, "a", forwarded[0].Origin)

	hub.DeliverRemote(forwarded[0]) // our own echo
	remote := incomeEvent(2024, 2)
	remote.Origin = "b"
	hub.DeliverRemote(remote)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, forwarded, 1, "remote events are not forwarded again")
}

func TestCoalescerCollapsesBurst(t *testing.T) {
	var calls atomic.Int32
	c := NewCoalescer(context.Background(), 30*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	defer c.Stop()

	for i := 0; i < 20; i++ {
		c.Trigger()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	c.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCoalescerFlushDuringFetchWaitsForFollowUp(t *testing.T) {
	first, second := make(chan struct{}), make(chan struct{})
	var calls atomic.Int32
	c := NewCoalescer(context.Background(), time.Hour, func(context.Context) error {
		if calls.Add(1) == 1 {
			<-first
			return errors.New("stale")
		}
		<-second
		return errors.New("boom")
	})
	defer c.Stop()

	firstErr := make(chan error, 1)
	go func() { firstErr <- c.Flush(context.Background()) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Flush(context.Background())
		}(i)
	}
	time.Sleep(10 * time.Millisecond)

	close(first)
	assert.EqualError(t, <-firstErr, "stale")
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(second)
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load(), "late flushes share one follow-up call")
	for _, err := range errs {
		assert.EqualError(t, err, "boom")
	}
}

func TestCoalescerTriggerDuringFetchRefetches(t *testing.T) {
	var source, view atomic.Int64
	var calls atomic.Int32
	c := NewCoalescer(context.Background(), 10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		v := source.Load()
		time.Sleep(60 * time.Millisecond)
		view.Store(v)
		return nil
	})
	defer c.Stop()

	source.Store(1)
	c.Trigger()
	time.Sleep(25 * time.Millisecond)
	source.Store(2)
	c.Trigger()

	require.Eventually(t, func() bool { return view.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCoalescerStopCancelsPendingWindow(t *testing.T) {
	var calls atomic.Int32
	c := NewCoalescer(context.Background(), 20*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	c.Trigger()
	c.Stop()
	c.Trigger()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCoalescerReportsErrors(t *testing.T) {
	errCh := make(chan error, 1)
	c := NewCoalescer(context.Background(), time.Millisecond, func(context.Context) error {
		return errors.New("store down")
	})
	c.OnError = func(err error) { errCh <- err }
	defer c.Stop()

	c.Trigger()
	select {
	case err := <-errCh:
		assert.EqualError(t, err, "store down")
	case <-time.After(time.Second):
		t.Fatal("OnError was not called")
	}
}
