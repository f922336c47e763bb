// Package session owns the application state of one open month: a set of
// view states kept fresh by change-event subscriptions.
package session

import "sync"

// ViewState holds one loaded collection together with its loading flag and
// last error.
//
// Every load calls Begin and later Succeed or Fail with the generation Begin
// returned. Results from a generation that was superseded or cancelled are
// dropped, so a re-fetch that resolves after Cancel never overwrites state.
type ViewState[T any] struct {
	mu       sync.RWMutex
	data     T
	loading  bool
	err      error
	gen      uint64
	onChange func()
}

// Snapshot returns the current data, whether a load is in progress and the
// error of the last failed load.
func (v *ViewState[T]) Snapshot() (data T, loading bool, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.data, v.loading, v.err
}

func (v *ViewState[T]) Data() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.data
}

func (v *ViewState[T]) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Begin marks the state as loading and returns the new generation.
func (v *ViewState[T]) Begin() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen++
	v.loading = true
	return v.gen
}

// Succeed stores data and clears the error. It reports false when gen is stale.
func (v *ViewState[T]) Succeed(gen uint64, data T) bool {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return false
	}
	v.data = data
	v.err = nil
	v.loading = false
	notify := v.onChange
	v.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// Fail records err and stops loading; the previous data is kept. There is no
// retry. It reports false when gen is stale.
func (v *ViewState[T]) Fail(gen uint64, err error) bool {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return false
	}
	v.err = err
	v.loading = false
	notify := v.onChange
	v.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// Cancel invalidates any load in flight and stops loading.
func (v *ViewState[T]) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen++
	v.loading = false
}

// ClearError dismisses the last error.
func (v *ViewState[T]) ClearError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = nil
}

func (v *ViewState[T]) setOnChange(fn func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}
