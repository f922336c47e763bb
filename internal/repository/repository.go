// Package repository maps the budget entities onto rows of a store.Gateway.
//
// Each repository validates its input with the core rules, generates ids,
// and translates "no matching row" into core.ErrNotFound. Store errors are
// wrapped with the operation but keep their original message.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budget/internal/core"
	"budget/internal/store"
)

// Repositories bundles one repository per entity kind over a shared gateway.
type Repositories struct {
	Categories       *CategoryRepository
	FixedExpenses    *FixedExpenseRepository
	DefaultIncome    *DefaultIncomeRepository
	MonthlyIncome    *MonthlyIncomeRepository
	CreditCards      *CreditCardRepository
	Statuses         *StatusRepository
	VariableExpenses *VariableExpenseRepository
	Holdings         *HoldingRepository
	History          *HistoryRepository
}

func New(gw store.Gateway) *Repositories {
	b := base{gw: gw, now: time.Now, newID: uuid.NewString}
	return &Repositories{
		Categories:       &CategoryRepository{b},
		FixedExpenses:    &FixedExpenseRepository{b},
		DefaultIncome:    &DefaultIncomeRepository{b},
		MonthlyIncome:    &MonthlyIncomeRepository{b},
		CreditCards:      &CreditCardRepository{b},
		Statuses:         &StatusRepository{b},
		VariableExpenses: &VariableExpenseRepository{b},
		Holdings:         &HoldingRepository{b},
		History:          &HistoryRepository{b},
	}
}

// SetClock replaces the time source of every repository.
func (r *Repositories) SetClock(now func() time.Time) {
	r.Categories.now = now
	r.FixedExpenses.now = now
	r.DefaultIncome.now = now
	r.MonthlyIncome.now = now
	r.CreditCards.now = now
	r.Statuses.now = now
	r.VariableExpenses.now = now
	r.Holdings.now = now
	r.History.now = now
}

type base struct {
	gw    store.Gateway
	now   func() time.Time
	newID func() string
}

func (b base) getByID(ctx context.Context, table, id string) (store.Row, error) {
	rows, err := b.gw.Select(ctx, table, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, core.ErrNotFound)
	}
	return rows[0], nil
}

// updateByID applies patch to one row and fails with ErrNotFound when the id is unknown.
func (b base) updateByID(ctx context.Context, table, id string, patch store.Row) (store.Row, error) {
	rows, err := b.gw.Update(ctx, table, patch, store.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, core.ErrNotFound)
	}
	return rows[0], nil
}

func (b base) deleteByID(ctx context.Context, table, id string) error {
	n, err := b.gw.Delete(ctx, table, store.Eq("id", id))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, core.ErrNotFound)
	}
	return nil
}

func (b base) monthQuery(year, month int) store.Query {
	return store.Where(store.Eq("year", year), store.Eq("month", month))
}

func money(r store.Row, col string) core.Money {
	return core.Money{Cents: r.Int64(col)}
}

func callOne(ctx context.Context, gw store.Gateway, procedure string, year, month int) (store.Row, error) {
	rows, err := gw.Call(ctx, procedure, store.Row{"year": year, "month": month})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s returned no row", procedure)
	}
	return rows[0], nil
}
