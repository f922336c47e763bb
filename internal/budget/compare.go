// Package budget holds the aggregation engine: the Plan-vs-Actual monthly
// comparison, the Category Expense Matrix and running totals. The functions
// are pure; Engine only loads their inputs.
package budget

import (
	"sort"

	"github.com/shopspring/decimal"

	"budget/internal/core"
)

var hundred = decimal.NewFromInt(100)

// CompareMonthly compares the planned fixed budget with what was actually
// spent in each month of year that has any activity.
//
// Planned is the sum of the current fixed expense definitions and is the same
// for every month. Actual is the month's variable expenses plus the estimated
// amounts of the fixed expenses marked completed that month. Months with no
// variable expense and no status row produce no entry.
func CompareMonthly(year int, fixed []core.FixedExpense, variable []core.VariableExpense, statuses []core.MonthlyFixedExpenseStatus) []core.MonthlyComparison {
	var planned core.Money
	estimates := make(map[string]core.Money, len(fixed))
	for _, f := range fixed {
		planned = planned.Add(f.EstimatedAmount)
		estimates[f.ID] = f.EstimatedAmount
	}

	actual := make(map[int]core.Money)
	for _, v := range variable {
		if v.Year != year {
			continue
		}
		actual[v.Month] = actual[v.Month].Add(v.Amount)
	}
	for _, s := range statuses {
		if s.Year != year {
			continue
		}
		// A status row marks the month as active even when its fixed
		// expense no longer exists.
		sum := actual[s.Month]
		if s.Completed {
			sum = sum.Add(estimates[s.FixedExpenseID])
		}
		actual[s.Month] = sum
	}

	months := make([]int, 0, len(actual))
	for m := range actual {
		months = append(months, m)
	}
	sort.Ints(months)

	out := make([]core.MonthlyComparison, 0, len(months))
	for _, m := range months {
		deviation := actual[m].Sub(planned)
		pct, defined := DeviationPercentage(deviation, planned)
		out = append(out, core.MonthlyComparison{
			Year:                year,
			Month:               m,
			Planned:             planned,
			Actual:              actual[m],
			Deviation:           deviation,
			DeviationPercentage: pct,
			PercentageDefined:   defined,
		})
	}
	return out
}

// DeviationPercentage returns deviation / planned * 100 rounded to two
// decimals. With nothing planned the ratio is undefined and (0, false) is
// returned.
func DeviationPercentage(deviation, planned core.Money) (float64, bool) {
	if planned.IsZero() {
		return 0, false
	}
	pct := decimal.NewFromInt(deviation.Cents).
		Mul(hundred).
		DivRound(decimal.NewFromInt(planned.Cents), 2)
	f, _ := pct.Float64()
	return f, true
}
