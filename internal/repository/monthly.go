package repository

import (
	"context"
	"errors"
	"fmt"

	"budget/internal/core"
	"budget/internal/store"
)

type DefaultIncomeRepository struct{ base }

func toIncomes(r store.Row) core.Incomes {
	return core.Incomes{
		Lucas:  money(r, "lucas_income"),
		Camila: money(r, "camila_income"),
		Other:  money(r, "other_income"),
	}
}

func incomesRow(i core.Incomes) store.Row {
	return store.Row{
		"lucas_income":  i.Lucas.Cents,
		"camila_income": i.Camila.Cents,
		"other_income":  i.Other.Cents,
	}
}

func toDefaultIncome(r store.Row) core.DefaultIncome {
	return core.DefaultIncome{
		ID:          r.String("id"),
		Incomes:     toIncomes(r),
		LastUpdated: r.Time("last_updated"),
		CreatedAt:   r.Time("created_at"),
	}
}

// Get returns the singleton default income, or ErrDefaultIncomeMissing.
func (r *DefaultIncomeRepository) Get(ctx context.Context) (core.DefaultIncome, error) {
	rows, err := r.gw.Select(ctx, store.TableDefaultIncome, store.Query{Limit: 1}.OrderBy(store.Asc("created_at")))
	if err != nil {
		return core.DefaultIncome{}, fmt.Errorf("get default income: %w", err)
	}
	if len(rows) == 0 {
		return core.DefaultIncome{}, core.ErrDefaultIncomeMissing
	}
	return toDefaultIncome(rows[0]), nil
}

// Set replaces the default income figures, creating the singleton on first use.
func (r *DefaultIncomeRepository) Set(ctx context.Context, in core.Incomes) (core.DefaultIncome, error) {
	if err := in.Validate(); err != nil {
		return core.DefaultIncome{}, err
	}
	now := r.now().UTC()
	row := incomesRow(in)
	row["last_updated"] = now

	current, err := r.Get(ctx)
	switch {
	case errors.Is(err, core.ErrDefaultIncomeMissing):
		row["id"] = r.newID()
		row["created_at"] = now
		rows, err := r.gw.Insert(ctx, store.TableDefaultIncome, row)
		if err != nil {
			return core.DefaultIncome{}, fmt.Errorf("create default income: %w", err)
		}
		return toDefaultIncome(rows[0]), nil
	case err != nil:
		return core.DefaultIncome{}, err
	}

	updated, err := r.updateByID(ctx, store.TableDefaultIncome, current.ID, row)
	if err != nil {
		return core.DefaultIncome{}, fmt.Errorf("update default income: %w", err)
	}
	return toDefaultIncome(updated), nil
}

type MonthlyIncomeRepository struct{ base }

func toMonthlyIncome(r store.Row) core.MonthlyIncome {
	return core.MonthlyIncome{
		ID:        r.String("id"),
		Year:      r.Int("year"),
		Month:     r.Int("month"),
		Incomes:   toIncomes(r),
		CreatedAt: r.Time("created_at"),
	}
}

// GetOrCreate returns the month's income, seeding it from the default income
// atomically when the month has none yet.
func (r *MonthlyIncomeRepository) GetOrCreate(ctx context.Context, year, month int) (core.MonthlyIncome, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return core.MonthlyIncome{}, err
	}
	row, err := callOne(ctx, r.gw, store.RPCGetOrCreateMonthlyIncome, year, month)
	if err != nil {
		return core.MonthlyIncome{}, fmt.Errorf("monthly income %s: %w", core.MonthKey(year, month), err)
	}
	return toMonthlyIncome(row), nil
}

// Set overwrites the month's income figures.
func (r *MonthlyIncomeRepository) Set(ctx context.Context, year, month int, in core.Incomes) (core.MonthlyIncome, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return core.MonthlyIncome{}, err
	}
	if err := in.Validate(); err != nil {
		return core.MonthlyIncome{}, err
	}
	row := incomesRow(in)
	row["year"] = year
	row["month"] = month
	out, err := r.gw.Upsert(ctx, store.TableMonthlyIncome, row, "year", "month")
	if err != nil {
		return core.MonthlyIncome{}, fmt.Errorf("set monthly income %s: %w", core.MonthKey(year, month), err)
	}
	return toMonthlyIncome(out), nil
}

func (r *MonthlyIncomeRepository) ListYear(ctx context.Context, year int) ([]core.MonthlyIncome, error) {
	rows, err := r.gw.Select(ctx, store.TableMonthlyIncome, store.Where(store.Eq("year", year)).OrderBy(store.Asc("month")))
	if err != nil {
		return nil, fmt.Errorf("list monthly income: %w", err)
	}
	out := make([]core.MonthlyIncome, 0, len(rows))
	for _, row := range rows {
		out = append(out, toMonthlyIncome(row))
	}
	return out, nil
}

type CreditCardRepository struct{ base }

func toCreditCard(r store.Row) core.MonthlyCreditCard {
	return core.MonthlyCreditCard{
		ID:        r.String("id"),
		Year:      r.Int("year"),
		Month:     r.Int("month"),
		Amount:    money(r, "amount"),
		CreatedAt: r.Time("created_at"),
	}
}

func (r *CreditCardRepository) GetOrCreate(ctx context.Context, year, month int) (core.MonthlyCreditCard, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return core.MonthlyCreditCard{}, err
	}
	row, err := callOne(ctx, r.gw, store.RPCGetOrCreateMonthlyCreditCard, year, month)
	if err != nil {
		return core.MonthlyCreditCard{}, fmt.Errorf("credit card %s: %w", core.MonthKey(year, month), err)
	}
	return toCreditCard(row), nil
}

// Set records the month's credit-card bill.
func (r *CreditCardRepository) Set(ctx context.Context, year, month int, amount core.Money) (core.MonthlyCreditCard, error) {
	c := core.MonthlyCreditCard{Year: year, Month: month, Amount: amount}
	if err := c.Validate(); err != nil {
		return core.MonthlyCreditCard{}, err
	}
	out, err := r.gw.Upsert(ctx, store.TableMonthlyCreditCard, store.Row{
		"year":   year,
		"month":  month,
		"amount": amount.Cents,
	}, "year", "month")
	if err != nil {
		return core.MonthlyCreditCard{}, fmt.Errorf("set credit card %s: %w", core.MonthKey(year, month), err)
	}
	return toCreditCard(out), nil
}

type StatusRepository struct{ base }

func toStatus(r store.Row) core.MonthlyFixedExpenseStatus {
	return core.MonthlyFixedExpenseStatus{
		ID:             r.String("id"),
		Year:           r.Int("year"),
		Month:          r.Int("month"),
		FixedExpenseID: r.String("fixed_expense_id"),
		Completed:      r.Bool("completed"),
		CompletedAt:    r.TimePtr("completed_at"),
		CreatedAt:      r.Time("created_at"),
	}
}

func toStatuses(rows []store.Row) []core.MonthlyFixedExpenseStatus {
	out := make([]core.MonthlyFixedExpenseStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, toStatus(row))
	}
	return out
}

// Initialize creates the missing status rows of the month and returns all of them.
func (r *StatusRepository) Initialize(ctx context.Context, year, month int) ([]core.MonthlyFixedExpenseStatus, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return nil, err
	}
	rows, err := r.gw.Call(ctx, store.RPCInitializeMonthlyFixed, store.Row{"year": year, "month": month})
	if err != nil {
		return nil, fmt.Errorf("initialize statuses %s: %w", core.MonthKey(year, month), err)
	}
	return toStatuses(rows), nil
}

func (r *StatusRepository) ListMonth(ctx context.Context, year, month int) ([]core.MonthlyFixedExpenseStatus, error) {
	rows, err := r.gw.Select(ctx, store.TableFixedExpenseStatus, r.monthQuery(year, month).OrderBy(store.Asc("created_at")))
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return toStatuses(rows), nil
}

func (r *StatusRepository) ListYear(ctx context.Context, year int) ([]core.MonthlyFixedExpenseStatus, error) {
	rows, err := r.gw.Select(ctx, store.TableFixedExpenseStatus,
		store.Where(store.Eq("year", year)).OrderBy(store.Asc("month"), store.Asc("created_at")))
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return toStatuses(rows), nil
}

// SetCompleted marks a status done or pending; completed_at is set exactly
// when the status is completed.
func (r *StatusRepository) SetCompleted(ctx context.Context, id string, completed bool) (core.MonthlyFixedExpenseStatus, error) {
	var s core.MonthlyFixedExpenseStatus
	s.SetCompleted(completed, r.now())

	patch := store.Row{"completed": s.Completed, "completed_at": nil}
	if s.CompletedAt != nil {
		patch["completed_at"] = *s.CompletedAt
	}
	row, err := r.updateByID(ctx, store.TableFixedExpenseStatus, id, patch)
	if err != nil {
		return core.MonthlyFixedExpenseStatus{}, fmt.Errorf("set status: %w", err)
	}
	return toStatus(row), nil
}
