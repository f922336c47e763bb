// Package export renders the yearly budget views as spreadsheets, either as
// an XLSX file or into a Google Sheets document.
package export

import (
	"budget/internal/budget"
	"budget/internal/core"
)

// Sheet titles shared by every exporter.
const (
	ComparisonSheet = "Plan vs Actual"
	MatrixSheet     = "Categories"
)

// YearReport is everything exported for one year.
type YearReport struct {
	Year       int
	Comparison []core.MonthlyComparison
	Matrix     []core.CategoryExpense
}

// comparisonRows lays out the Plan-vs-Actual view. An undefined percentage
// is left blank.
func comparisonRows(rows []core.MonthlyComparison) [][]any {
	out := [][]any{{"Month", "Planned", "Actual", "Deviation", "Deviation %"}}
	for _, r := range rows {
		var pct any = ""
		if r.PercentageDefined {
			pct = r.DeviationPercentage
		}
		out = append(out, []any{
			core.MonthKey(r.Year, r.Month),
			r.Planned.Euros(),
			r.Actual.Euros(),
			r.Deviation.Euros(),
			pct,
		})
	}
	return out
}

// matrixRows lays out the Category Expense Matrix with one column per month
// that has entries, followed by a totals row.
func matrixRows(matrix []core.CategoryExpense) [][]any {
	keys := budget.MonthKeys(matrix)

	header := []any{"Category"}
	for _, k := range keys {
		header = append(header, k)
	}
	header = append(header, "Total", "Average")
	out := [][]any{header}

	var grand core.Money
	for _, row := range matrix {
		line := []any{row.Category}
		for _, k := range keys {
			line = append(line, row.Months[k].Euros())
		}
		line = append(line, row.Total.Euros(), row.Average.Euros())
		out = append(out, line)
		grand = grand.Add(row.Total)
	}

	if len(matrix) > 0 {
		totals := budget.MonthlyTotals(matrix)
		line := []any{"Total"}
		for _, k := range keys {
			line = append(line, totals[k].Euros())
		}
		line = append(line, grand.Euros(), "")
		out = append(out, line)
	}
	return out
}
