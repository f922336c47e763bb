package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"budget/internal/budget"
	"budget/internal/core"
	"budget/internal/realtime"
	"budget/internal/repository"
	"budget/internal/services"
	"budget/internal/store"
)

// View names passed to the change callback.
const (
	ViewIncome     = "income"
	ViewCreditCard = "credit_card"
	ViewStatuses   = "statuses"
	ViewVariable   = "variable_expenses"
	ViewComparison = "comparison"
	ViewMatrix     = "matrix"
)

// Dependencies are the collaborators a Session reads through.
type Dependencies struct {
	Gateway store.Gateway
	Repos   *repository.Repositories
	Months  *services.MonthInitializer
	Engine  *budget.Engine
}

// Session owns the view states of one open month and its year. While a month
// is open, every relevant table change triggers a coalesced re-fetch of the
// affected view.
type Session struct {
	deps   Dependencies
	window time.Duration

	Income     ViewState[core.MonthlyIncome]
	CreditCard ViewState[core.MonthlyCreditCard]
	Statuses   ViewState[[]core.MonthlyFixedExpenseStatus]
	Variable   ViewState[[]core.VariableExpense]
	Comparison ViewState[[]core.MonthlyComparison]
	Matrix     ViewState[[]core.CategoryExpense]

	mu         sync.Mutex
	year       int
	month      int
	open       bool
	unsubs     []func()
	coalescers []*realtime.Coalescer
}

// New creates a session. window is the coalescing window for re-fetches.
func New(deps Dependencies, window time.Duration) *Session {
	return &Session{deps: deps, window: window}
}

// OnChange registers fn to run whenever a view finishes loading or failing.
// It must be set before OpenMonth.
func (s *Session) OnChange(fn func(view string)) {
	notify := func(view string) func() {
		return func() {
			if fn != nil {
				fn(view)
			}
		}
	}
	s.Income.setOnChange(notify(ViewIncome))
	s.CreditCard.setOnChange(notify(ViewCreditCard))
	s.Statuses.setOnChange(notify(ViewStatuses))
	s.Variable.setOnChange(notify(ViewVariable))
	s.Comparison.setOnChange(notify(ViewComparison))
	s.Matrix.setOnChange(notify(ViewMatrix))
}

// Month returns the open month, or zeros when none is open.
func (s *Session) Month() (year, month int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.year, s.month
}

// load runs fetch under the view's generation guard.
func load[T any](ctx context.Context, v *ViewState[T], fetch func(context.Context) (T, error)) error {
	gen := v.Begin()
	data, err := fetch(ctx)
	if err != nil {
		v.Fail(gen, err)
		return err
	}
	v.Succeed(gen, data)
	return nil
}

// OpenMonth prepares (year, month), loads every view and subscribes to the
// tables they depend on. A previously open month is closed first. When month
// preparation fails the month views carry the error and no subscription is
// made.
func (s *Session) OpenMonth(ctx context.Context, year, month int) error {
	s.Close()

	s.mu.Lock()
	s.year, s.month = year, month
	s.open = true
	s.mu.Unlock()

	genIncome, genCard, genStatuses := s.Income.Begin(), s.CreditCard.Begin(), s.Statuses.Begin()
	snap, err := s.deps.Months.PrepareMonth(ctx, year, month)
	if err != nil {
		s.Income.Fail(genIncome, err)
		s.CreditCard.Fail(genCard, err)
		s.Statuses.Fail(genStatuses, err)
		return err
	}
	s.Income.Succeed(genIncome, snap.Income)
	s.CreditCard.Succeed(genCard, snap.CreditCard)
	s.Statuses.Succeed(genStatuses, snap.Statuses)

	fetchVariable := func(ctx context.Context) error {
		return load(ctx, &s.Variable, func(ctx context.Context) ([]core.VariableExpense, error) {
			return s.deps.Repos.VariableExpenses.ListMonth(ctx, year, month)
		})
	}
	fetchComparison := func(ctx context.Context) error {
		return load(ctx, &s.Comparison, func(ctx context.Context) ([]core.MonthlyComparison, error) {
			return s.deps.Engine.Comparison(ctx, year)
		})
	}
	fetchMatrix := func(ctx context.Context) error {
		return load(ctx, &s.Matrix, func(ctx context.Context) ([]core.CategoryExpense, error) {
			return s.deps.Engine.CategoryMatrix(ctx, year, budget.DefaultMatrixSort())
		})
	}
	for _, fetch := range []func(context.Context) error{fetchVariable, fetchComparison, fetchMatrix} {
		if err := fetch(ctx); err != nil {
			slog.WarnContext(ctx, "Initial view load failed", "year", year, "month", month, "error", err)
		}
	}

	fetchIncome := func(ctx context.Context) error {
		return load(ctx, &s.Income, func(ctx context.Context) (core.MonthlyIncome, error) {
			return s.deps.Months.MonthlyIncome(ctx, year, month)
		})
	}
	fetchCard := func(ctx context.Context) error {
		return load(ctx, &s.CreditCard, func(ctx context.Context) (core.MonthlyCreditCard, error) {
			return s.deps.Months.MonthlyCreditCard(ctx, year, month)
		})
	}
	fetchStatuses := func(ctx context.Context) error {
		return load(ctx, &s.Statuses, func(ctx context.Context) ([]core.MonthlyFixedExpenseStatus, error) {
			return s.deps.Repos.Statuses.ListMonth(ctx, year, month)
		})
	}
	yearViews := func(ctx context.Context) error {
		errC := fetchComparison(ctx)
		errM := fetchMatrix(ctx)
		if errC != nil {
			return errC
		}
		return errM
	}

	inMonth := []store.Filter{store.Eq("year", year), store.Eq("month", month)}
	inYear := []store.Filter{store.Eq("year", year)}

	s.watch(ctx, store.TableMonthlyIncome, inMonth, fetchIncome)
	s.watch(ctx, store.TableMonthlyCreditCard, inMonth, fetchCard)
	s.watch(ctx, store.TableFixedExpenseStatus, inMonth, fetchStatuses)
	s.watchMatching(ctx, store.TableVariableExpenses, scopedOrUpdate(inMonth), fetchVariable)
	s.watchMatching(ctx, store.TableVariableExpenses, scopedOrUpdate(inYear), yearViews)
	s.watch(ctx, store.TableFixedExpenseStatus, inYear, yearViews)
	s.watch(ctx, store.TableFixedExpenses, nil, yearViews)
	s.watch(ctx, store.TableCategories, nil, fetchMatrix)

	return nil
}

// scopedOrUpdate matches rows inside filters and every update. Update events
// carry only the new row, so an expense moved out of the period is only
// visible as an update somewhere else.
func scopedOrUpdate(filters []store.Filter) func(store.ChangeEvent) bool {
	return func(evt store.ChangeEvent) bool {
		return evt.Type == store.EventUpdate || store.MatchAll(evt.Row, filters)
	}
}

// watch subscribes to table and re-fetches through a coalescer.
func (s *Session) watch(ctx context.Context, table string, filters []store.Filter, fetch func(context.Context) error) {
	s.subscribe(ctx, table, filters, nil, fetch)
}

// watchMatching is watch with a predicate evaluated on every event of table.
func (s *Session) watchMatching(ctx context.Context, table string, match func(store.ChangeEvent) bool, fetch func(context.Context) error) {
	s.subscribe(ctx, table, nil, match, fetch)
}

func (s *Session) subscribe(ctx context.Context, table string, filters []store.Filter, match func(store.ChangeEvent) bool, fetch func(context.Context) error) {
	c := realtime.NewCoalescer(ctx, s.window, fetch)
	c.OnError = func(err error) {
		slog.WarnContext(ctx, "View refresh failed", "table", table, "error", err)
	}
	unsubscribe := s.deps.Gateway.Subscribe(table, filters, func(evt store.ChangeEvent) {
		if match == nil || match(evt) {
			c.Trigger()
		}
	})

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubscribe)
	s.coalescers = append(s.coalescers, c)
	s.mu.Unlock()
}

// Close unsubscribes and cancels every load still in flight. Results that
// arrive afterwards are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	unsubs, coalescers := s.unsubs, s.coalescers
	s.unsubs, s.coalescers = nil, nil
	wasOpen := s.open
	s.open = false
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	for _, c := range coalescers {
		c.Stop()
	}
	if !wasOpen {
		return
	}
	s.Income.Cancel()
	s.CreditCard.Cancel()
	s.Statuses.Cancel()
	s.Variable.Cancel()
	s.Comparison.Cancel()
	s.Matrix.Cancel()
}
