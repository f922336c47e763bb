// Package store defines the record-store port used by the repositories.
//
// A Gateway is a generic table store: rows are column maps, reads take
// equality and range filters plus an ordering, and writes publish typed
// change events that subscribers can scope to a table and filter.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Table names.
const (
	TableCategories         = "categories"
	TableFixedExpenses      = "fixed_expenses"
	TableDefaultIncome      = "default_income"
	TableMonthlyIncome      = "monthly_income"
	TableMonthlyCreditCard  = "monthly_credit_card"
	TableFixedExpenseStatus = "monthly_fixed_expense_status"
	TableVariableExpenses   = "variable_expenses"
	TableInvestments        = "investments"
	TableInvestmentHistory  = "investment_history"
	TableReserves           = "reserves"
	TableReserveHistory     = "reserve_history"
)

// Tables lists every table a gateway must serve.
var Tables = []string{
	TableCategories, TableFixedExpenses, TableDefaultIncome, TableMonthlyIncome,
	TableMonthlyCreditCard, TableFixedExpenseStatus, TableVariableExpenses,
	TableInvestments, TableInvestmentHistory, TableReserves, TableReserveHistory,
}

// UniqueKeys are the natural keys each table enforces besides id.
var UniqueKeys = map[string][][]string{
	TableCategories:         {{"name"}},
	TableMonthlyIncome:      {{"year", "month"}},
	TableMonthlyCreditCard:  {{"year", "month"}},
	TableFixedExpenseStatus: {{"year", "month", "fixed_expense_id"}},
}

// Atomic get-or-create procedures. Each takes "year" and "month" parameters.
const (
	RPCGetOrCreateMonthlyIncome     = "get_or_create_monthly_income"
	RPCGetOrCreateMonthlyCreditCard = "get_or_create_monthly_credit_card"
	RPCInitializeMonthlyFixed       = "initialize_monthly_fixed_expenses"
)

var (
	ErrUnknownTable = errors.New("unknown table")
	ErrUnknownRPC   = errors.New("unknown procedure")
	ErrBadColumn    = errors.New("invalid column name")
	ErrEmptyFilter  = errors.New("refusing to write without filters")
)

// Gateway is the record store the repositories are written against.
type Gateway interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)
	// Update applies patch to every row matching filters and returns the updated rows.
	Update(ctx context.Context, table string, patch Row, filters ...Filter) ([]Row, error)
	// Delete removes matching rows and returns how many were removed.
	Delete(ctx context.Context, table string, filters ...Filter) (int, error)
	// Upsert inserts row or, when a row with the same conflict columns exists, updates it.
	Upsert(ctx context.Context, table string, row Row, conflict ...string) (Row, error)
	// Call runs one of the atomic get-or-create procedures.
	Call(ctx context.Context, procedure string, params Row) ([]Row, error)
	Subscribe(table string, filters []Filter, fn func(ChangeEvent)) (unsubscribe func())
}

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, v any) Filter  { return Filter{Column: column, Op: OpEq, Value: v} }
func Gte(column string, v any) Filter { return Filter{Column: column, Op: OpGte, Value: v} }
func Lte(column string, v any) Filter { return Filter{Column: column, Op: OpLte, Value: v} }

// Match reports whether row satisfies the filter. Values of incomparable
// types never match.
func (f Filter) Match(row Row) bool {
	v, ok := row[f.Column]
	if !ok {
		return false
	}
	c, ok := Compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpGte:
		return c >= 0
	case OpLte:
		return c <= 0
	}
	return false
}

// MatchAll reports whether row satisfies every filter.
func MatchAll(row Row, filters []Filter) bool {
	for _, f := range filters {
		if !f.Match(row) {
			return false
		}
	}
	return true
}

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

// Where builds a query from filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

// OrderBy returns a copy of q with the given ordering appended.
func (q Query) OrderBy(o ...Order) Query {
	q.Order = append(append([]Order(nil), q.Order...), o...)
	return q
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CheckTable rejects tables the gateways do not know.
func CheckTable(table string) error {
	for _, t := range Tables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownTable, table)
}

// CheckColumn rejects identifiers that are not plain snake_case names.
func CheckColumn(column string) error {
	if !identRe.MatchString(column) {
		return fmt.Errorf("%w: %q", ErrBadColumn, column)
	}
	return nil
}

// Validate checks table, filter and order identifiers.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		if err := CheckColumn(f.Column); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpGte, OpLte:
		default:
			return fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	for _, o := range q.Order {
		if err := CheckColumn(o.Column); err != nil {
			return err
		}
	}
	return nil
}
