package budget

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"budget/internal/core"
	"budget/internal/repository"
)

// Engine reads fresh inputs from the repositories on every call and hands
// them to the pure aggregation functions. It never caches.
type Engine struct {
	repos *repository.Repositories
}

func NewEngine(repos *repository.Repositories) *Engine {
	return &Engine{repos: repos}
}

type yearInputs struct {
	categories []core.Category
	fixed      []core.FixedExpense
	variable   []core.VariableExpense
	statuses   []core.MonthlyFixedExpenseStatus
}

// load fetches the year's inputs concurrently. Categories are only read when
// withCategories is set.
func (e *Engine) load(ctx context.Context, year int, withCategories bool) (yearInputs, error) {
	var in yearInputs
	g, ctx := errgroup.WithContext(ctx)

	if withCategories {
		g.Go(func() (err error) {
			in.categories, err = e.repos.Categories.List(ctx)
			return err
		})
	}
	g.Go(func() (err error) {
		in.fixed, err = e.repos.FixedExpenses.List(ctx)
		return err
	})
	g.Go(func() (err error) {
		in.variable, err = e.repos.VariableExpenses.ListYear(ctx, year)
		return err
	})
	g.Go(func() (err error) {
		in.statuses, err = e.repos.Statuses.ListYear(ctx, year)
		return err
	})

	if err := g.Wait(); err != nil {
		return yearInputs{}, fmt.Errorf("load %d: %w", year, err)
	}
	return in, nil
}

// Comparison returns the Plan-vs-Actual rows of year.
func (e *Engine) Comparison(ctx context.Context, year int) ([]core.MonthlyComparison, error) {
	if err := core.ValidateYearMonth(year, 1); err != nil {
		return nil, err
	}
	in, err := e.load(ctx, year, false)
	if err != nil {
		return nil, err
	}
	return CompareMonthly(year, in.fixed, in.variable, in.statuses), nil
}

// CategoryMatrix returns the year's Category Expense Matrix in the given order.
func (e *Engine) CategoryMatrix(ctx context.Context, year int, order MatrixSort) ([]core.CategoryExpense, error) {
	if err := core.ValidateYearMonth(year, 1); err != nil {
		return nil, err
	}
	in, err := e.load(ctx, year, true)
	if err != nil {
		return nil, err
	}
	matrix := BuildCategoryMatrix(year, in.categories, in.variable, in.fixed, in.statuses)
	if order != DefaultMatrixSort() {
		SortMatrix(matrix, order)
	}
	return matrix, nil
}

// Totals returns the running totals of investments and reserves.
func (e *Engine) Totals(ctx context.Context) (core.BudgetTotals, error) {
	var investments, reserves []core.Holding
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		investments, err = e.repos.Holdings.List(ctx, core.KindInvestment)
		return err
	})
	g.Go(func() (err error) {
		reserves, err = e.repos.Holdings.List(ctx, core.KindReserve)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.BudgetTotals{}, fmt.Errorf("load holdings: %w", err)
	}
	return Totals(investments, reserves), nil
}

// MonthDetail summarizes a prepared month against the current fixed expenses.
func (e *Engine) MonthDetail(ctx context.Context, snap core.MonthSnapshot) (core.MonthSummary, []core.VariableExpense, error) {
	var (
		fixed    []core.FixedExpense
		variable []core.VariableExpense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		fixed, err = e.repos.FixedExpenses.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		variable, err = e.repos.VariableExpenses.ListMonth(gctx, snap.Year, snap.Month)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.MonthSummary{}, nil, err
	}
	return SummarizeMonth(snap, fixed, variable), variable, nil
}
