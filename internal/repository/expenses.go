package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"budget/internal/core"
	"budget/internal/store"
)

type FixedExpenseRepository struct{ base }

func toFixedExpense(r store.Row) core.FixedExpense {
	return core.FixedExpense{
		ID:              r.String("id"),
		CategoryID:      r.String("category_id"),
		Description:     r.String("description"),
		EstimatedAmount: money(r, "estimated_amount"),
		Owner:           core.Owner(r.String("owner")),
		StatusRequired:  r.Bool("status_required"),
		CreatedAt:       r.Time("created_at"),
	}
}

func fixedExpenseRow(f core.FixedExpense) store.Row {
	return store.Row{
		"category_id":      f.CategoryID,
		"description":      strings.TrimSpace(f.Description),
		"estimated_amount": f.EstimatedAmount.Cents,
		"owner":            string(f.Owner),
		"status_required":  f.StatusRequired,
	}
}

// List returns the current fixed expense definitions in creation order.
func (r *FixedExpenseRepository) List(ctx context.Context) ([]core.FixedExpense, error) {
	rows, err := r.gw.Select(ctx, store.TableFixedExpenses, store.Query{}.OrderBy(store.Asc("created_at")))
	if err != nil {
		return nil, fmt.Errorf("list fixed expenses: %w", err)
	}
	out := make([]core.FixedExpense, 0, len(rows))
	for _, row := range rows {
		out = append(out, toFixedExpense(row))
	}
	return out, nil
}

func (r *FixedExpenseRepository) Get(ctx context.Context, id string) (core.FixedExpense, error) {
	row, err := r.getByID(ctx, store.TableFixedExpenses, id)
	if err != nil {
		return core.FixedExpense{}, err
	}
	return toFixedExpense(row), nil
}

func (r *FixedExpenseRepository) Create(ctx context.Context, f core.FixedExpense) (core.FixedExpense, error) {
	if err := f.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	if err := ensureCategory(ctx, r.base, f.CategoryID); err != nil {
		return core.FixedExpense{}, fmt.Errorf("create fixed expense: %w", err)
	}
	row := fixedExpenseRow(f)
	row["id"] = r.newID()
	row["created_at"] = r.now().UTC()
	rows, err := r.gw.Insert(ctx, store.TableFixedExpenses, row)
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("create fixed expense: %w", err)
	}
	return toFixedExpense(rows[0]), nil
}

func (r *FixedExpenseRepository) Update(ctx context.Context, f core.FixedExpense) (core.FixedExpense, error) {
	if err := f.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	if err := ensureCategory(ctx, r.base, f.CategoryID); err != nil {
		return core.FixedExpense{}, fmt.Errorf("update fixed expense: %w", err)
	}
	row, err := r.updateByID(ctx, store.TableFixedExpenses, f.ID, fixedExpenseRow(f))
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("update fixed expense: %w", err)
	}
	return toFixedExpense(row), nil
}

// Delete removes a fixed expense together with its monthly status rows.
func (r *FixedExpenseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return fmt.Errorf("delete fixed expense: %w", err)
	}
	n, err := r.gw.Delete(ctx, store.TableFixedExpenseStatus, store.Eq("fixed_expense_id", id))
	if err != nil {
		return fmt.Errorf("delete fixed expense statuses: %w", err)
	}
	if err := r.deleteByID(ctx, store.TableFixedExpenses, id); err != nil {
		return fmt.Errorf("delete fixed expense: %w", err)
	}
	slog.InfoContext(ctx, "Fixed expense deleted", "fixed_expense_id", id, "statuses_removed", n)
	return nil
}

type VariableExpenseRepository struct{ base }

func toVariableExpense(r store.Row) core.VariableExpense {
	d := r.Time("date")
	return core.VariableExpense{
		ID:          r.String("id"),
		Year:        r.Int("year"),
		Month:       r.Int("month"),
		CategoryID:  r.String("category_id"),
		Description: r.String("description"),
		Amount:      money(r, "amount"),
		Date:        core.NewDate(d.Year(), int(d.Month()), d.Day()),
		CreatedAt:   r.Time("created_at"),
	}
}

func variableExpenseRow(v core.VariableExpense) store.Row {
	return store.Row{
		"year":        v.Year,
		"month":       v.Month,
		"category_id": v.CategoryID,
		"description": strings.TrimSpace(v.Description),
		"amount":      v.Amount.Cents,
		"date":        v.Date.String(),
	}
}

// withPeriod fills year and month from the date when the caller left them unset.
func withPeriod(v core.VariableExpense) core.VariableExpense {
	if v.Year == 0 && v.Month == 0 && !v.Date.IsZero() {
		v.Year, v.Month = v.Date.Year(), int(v.Date.Month())
	}
	return v
}

func (r *VariableExpenseRepository) list(ctx context.Context, q store.Query) ([]core.VariableExpense, error) {
	rows, err := r.gw.Select(ctx, store.TableVariableExpenses, q.OrderBy(store.Desc("date"), store.Desc("created_at")))
	if err != nil {
		return nil, fmt.Errorf("list variable expenses: %w", err)
	}
	out := make([]core.VariableExpense, 0, len(rows))
	for _, row := range rows {
		out = append(out, toVariableExpense(row))
	}
	return out, nil
}

// ListMonth returns the month's expenses, newest date first.
func (r *VariableExpenseRepository) ListMonth(ctx context.Context, year, month int) ([]core.VariableExpense, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return nil, err
	}
	return r.list(ctx, r.monthQuery(year, month))
}

func (r *VariableExpenseRepository) ListYear(ctx context.Context, year int) ([]core.VariableExpense, error) {
	if err := core.ValidateYearMonth(year, 1); err != nil {
		return nil, err
	}
	return r.list(ctx, store.Where(store.Eq("year", year)))
}

func (r *VariableExpenseRepository) Get(ctx context.Context, id string) (core.VariableExpense, error) {
	row, err := r.getByID(ctx, store.TableVariableExpenses, id)
	if err != nil {
		return core.VariableExpense{}, err
	}
	return toVariableExpense(row), nil
}

func (r *VariableExpenseRepository) Create(ctx context.Context, v core.VariableExpense) (core.VariableExpense, error) {
	v = withPeriod(v)
	if err := v.Validate(); err != nil {
		return core.VariableExpense{}, err
	}
	if err := ensureCategory(ctx, r.base, v.CategoryID); err != nil {
		return core.VariableExpense{}, fmt.Errorf("create variable expense: %w", err)
	}
	row := variableExpenseRow(v)
	row["id"] = r.newID()
	row["created_at"] = r.now().UTC()
	rows, err := r.gw.Insert(ctx, store.TableVariableExpenses, row)
	if err != nil {
		return core.VariableExpense{}, fmt.Errorf("create variable expense: %w", err)
	}
	slog.InfoContext(ctx, "Variable expense created",
		"year", v.Year, "month", v.Month, "amount_cents", v.Amount.Cents)
	return toVariableExpense(rows[0]), nil
}

func (r *VariableExpenseRepository) Update(ctx context.Context, v core.VariableExpense) (core.VariableExpense, error) {
	v = withPeriod(v)
	if err := v.Validate(); err != nil {
		return core.VariableExpense{}, err
	}
	if err := ensureCategory(ctx, r.base, v.CategoryID); err != nil {
		return core.VariableExpense{}, fmt.Errorf("update variable expense: %w", err)
	}
	row, err := r.updateByID(ctx, store.TableVariableExpenses, v.ID, variableExpenseRow(v))
	if err != nil {
		return core.VariableExpense{}, fmt.Errorf("update variable expense: %w", err)
	}
	return toVariableExpense(row), nil
}

func (r *VariableExpenseRepository) Delete(ctx context.Context, id string) error {
	if err := r.deleteByID(ctx, store.TableVariableExpenses, id); err != nil {
		return fmt.Errorf("delete variable expense: %w", err)
	}
	return nil
}
