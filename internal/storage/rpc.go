package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"budget/internal/core"
	"budget/internal/store"
)

// Call runs one of the get-or-create procedures in a single transaction.
// Inserts use ON CONFLICT DO NOTHING so two concurrent callers converge on
// the same row.
func (g *Gateway) Call(ctx context.Context, procedure string, params store.Row) ([]store.Row, error) {
	year, month := params.Int("year"), params.Int("month")
	if err := core.ValidateYearMonth(year, month); err != nil {
		return nil, err
	}

	var fn func(ctx context.Context, tx *sql.Tx, year, month int) ([]store.Row, []store.ChangeEvent, error)
	switch procedure {
	case store.RPCGetOrCreateMonthlyIncome:
		fn = g.monthlyIncome
	case store.RPCGetOrCreateMonthlyCreditCard:
		fn = g.monthlyCreditCard
	case store.RPCInitializeMonthlyFixed:
		fn = g.initializeFixed
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownRPC, procedure)
	}

	var (
		out    []store.Row
		events []store.ChangeEvent
	)
	err := g.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, events, err = fn(ctx, tx, year, month)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", procedure, err)
	}
	if g.hub != nil {
		for _, evt := range events {
			g.hub.Publish(evt)
		}
	}
	return out, nil
}

func (g *Gateway) selectMonth(ctx context.Context, tx *sql.Tx, table string, year, month int, order ...store.Order) ([]store.Row, error) {
	b := g.builder()
	b.WriteString("SELECT * FROM " + table)
	b.where([]store.Filter{store.Eq("year", year), store.Eq("month", month)})
	b.orderBy(order)
	return queryRows(ctx, tx, b)
}

// insertIgnore inserts row unless it collides on conflict and returns the
// inserted row, or nil when the row already existed.
func (g *Gateway) insertIgnore(ctx context.Context, tx *sql.Tx, table string, row store.Row, conflict ...string) (store.Row, error) {
	cols := sortedColumns(row)
	b := g.builder()
	b.WriteString("INSERT INTO " + table + " (" + joinCols(cols) + ") VALUES (")
	b.values(row, cols)
	b.WriteString(") ON CONFLICT (" + joinCols(conflict) + ") DO NOTHING RETURNING *")
	rows, err := queryRows(ctx, tx, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (g *Gateway) monthlyIncome(ctx context.Context, tx *sql.Tx, year, month int) ([]store.Row, []store.ChangeEvent, error) {
	existing, err := g.selectMonth(ctx, tx, store.TableMonthlyIncome, year, month)
	if err != nil {
		return nil, nil, err
	}
	if len(existing) > 0 {
		return existing[:1], nil, nil
	}

	b := g.builder()
	b.WriteString("SELECT * FROM " + store.TableDefaultIncome + " ORDER BY created_at ASC LIMIT 1")
	defaults, err := queryRows(ctx, tx, b)
	if err != nil {
		return nil, nil, err
	}
	if len(defaults) == 0 {
		return nil, nil, core.ErrDefaultIncomeMissing
	}
	d := defaults[0]

	now := g.now().UTC()
	inserted, err := g.insertIgnore(ctx, tx, store.TableMonthlyIncome, store.Row{
		"id":            uuid.NewString(),
		"year":          int64(year),
		"month":         int64(month),
		"lucas_income":  d.Int64("lucas_income"),
		"camila_income": d.Int64("camila_income"),
		"other_income":  d.Int64("other_income"),
		"created_at":    now,
	}, "year", "month")
	if err != nil {
		return nil, nil, err
	}
	if inserted != nil {
		return []store.Row{inserted}, store.Events(store.TableMonthlyIncome, store.EventInsert, []store.Row{inserted}, now), nil
	}

	rows, err := g.selectMonth(ctx, tx, store.TableMonthlyIncome, year, month)
	if err != nil {
		return nil, nil, err
	}
	return firstRow(rows), nil, nil
}

func (g *Gateway) monthlyCreditCard(ctx context.Context, tx *sql.Tx, year, month int) ([]store.Row, []store.ChangeEvent, error) {
	existing, err := g.selectMonth(ctx, tx, store.TableMonthlyCreditCard, year, month)
	if err != nil {
		return nil, nil, err
	}
	if len(existing) > 0 {
		return existing[:1], nil, nil
	}

	now := g.now().UTC()
	inserted, err := g.insertIgnore(ctx, tx, store.TableMonthlyCreditCard, store.Row{
		"id":         uuid.NewString(),
		"year":       int64(year),
		"month":      int64(month),
		"amount":     int64(0),
		"created_at": now,
	}, "year", "month")
	if err != nil {
		return nil, nil, err
	}
	if inserted != nil {
		return []store.Row{inserted}, store.Events(store.TableMonthlyCreditCard, store.EventInsert, []store.Row{inserted}, now), nil
	}

	rows, err := g.selectMonth(ctx, tx, store.TableMonthlyCreditCard, year, month)
	if err != nil {
		return nil, nil, err
	}
	return firstRow(rows), nil, nil
}

func (g *Gateway) initializeFixed(ctx context.Context, tx *sql.Tx, year, month int) ([]store.Row, []store.ChangeEvent, error) {
	b := g.builder()
	b.WriteString("SELECT id FROM " + store.TableFixedExpenses + " ORDER BY created_at ASC")
	fixed, err := queryRows(ctx, tx, b)
	if err != nil {
		return nil, nil, err
	}

	now := g.now().UTC()
	var inserted []store.Row
	for i, f := range fixed {
		row, err := g.insertIgnore(ctx, tx, store.TableFixedExpenseStatus, store.Row{
			"id":               uuid.NewString(),
			"year":             int64(year),
			"month":            int64(month),
			"fixed_expense_id": f.String("id"),
			"completed":        false,
			"completed_at":     nil,
			// Offset so the month's statuses sort like their fixed expenses.
			"created_at": now.Add(time.Duration(i) * time.Microsecond),
		}, "year", "month", "fixed_expense_id")
		if err != nil {
			return nil, nil, err
		}
		if row != nil {
			inserted = append(inserted, row)
		}
	}

	rows, err := g.selectMonth(ctx, tx, store.TableFixedExpenseStatus, year, month, store.Asc("created_at"))
	if err != nil {
		return nil, nil, err
	}
	return rows, store.Events(store.TableFixedExpenseStatus, store.EventInsert, inserted, now), nil
}

func firstRow(rows []store.Row) []store.Row {
	if len(rows) == 0 {
		return nil
	}
	return rows[:1]
}
