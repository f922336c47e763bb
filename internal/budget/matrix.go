package budget

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"budget/internal/core"
)

// BuildCategoryMatrix spreads the year's spending over categories and months.
//
// Variable expenses and completed fixed expenses both contribute. Every
// category gets a row, including those without activity. Records pointing at
// a category (or fixed expense) that no longer exists are skipped. Rows come
// back in the default order: total descending, then name.
func BuildCategoryMatrix(year int, categories []core.Category, variable []core.VariableExpense, fixed []core.FixedExpense, statuses []core.MonthlyFixedExpenseStatus) []core.CategoryExpense {
	rows := make([]core.CategoryExpense, len(categories))
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		rows[i] = core.CategoryExpense{
			CategoryID: c.ID,
			Category:   c.Name,
			Months:     make(map[string]core.Money),
		}
		index[c.ID] = i
	}

	add := func(categoryID string, month int, amount core.Money) {
		i, ok := index[categoryID]
		if !ok {
			return
		}
		key := core.MonthKey(year, month)
		rows[i].Months[key] = rows[i].Months[key].Add(amount)
		rows[i].Total = rows[i].Total.Add(amount)
	}

	for _, v := range variable {
		if v.Year == year {
			add(v.CategoryID, v.Month, v.Amount)
		}
	}

	byID := make(map[string]core.FixedExpense, len(fixed))
	for _, f := range fixed {
		byID[f.ID] = f
	}
	for _, s := range statuses {
		if s.Year != year || !s.Completed {
			continue
		}
		if f, ok := byID[s.FixedExpenseID]; ok {
			add(f.CategoryID, s.Month, f.EstimatedAmount)
		}
	}

	for i := range rows {
		rows[i].Average = average(rows[i])
	}

	SortMatrix(rows, DefaultMatrixSort())
	return rows
}

// average divides the total by the number of months with a nonzero entry.
func average(row core.CategoryExpense) core.Money {
	active := 0
	for _, m := range row.Months {
		if !m.IsZero() {
			active++
		}
	}
	if active == 0 {
		return core.Money{}
	}
	avg := decimal.NewFromInt(row.Total.Cents).Div(decimal.NewFromInt(int64(active))).Round(0)
	return core.Money{Cents: avg.IntPart()}
}

// MonthlyTotals sums each month column of the matrix.
func MonthlyTotals(matrix []core.CategoryExpense) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, row := range matrix {
		for k, v := range row.Months {
			out[k] = out[k].Add(v)
		}
	}
	return out
}

// MonthKeys returns the sorted month keys present anywhere in the matrix.
func MonthKeys(matrix []core.CategoryExpense) []string {
	seen := make(map[string]bool)
	for _, row := range matrix {
		for k := range row.Months {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type SortField string

const (
	SortByName    SortField = "name"
	SortByTotal   SortField = "total"
	SortByAverage SortField = "average"
)

type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// MatrixSort is the active ordering of the matrix view.
type MatrixSort struct {
	Field     SortField     `json:"field"`
	Direction SortDirection `json:"direction"`
}

func DefaultMatrixSort() MatrixSort {
	return MatrixSort{Field: SortByTotal, Direction: Descending}
}

// Toggle returns the ordering after the user picks field: the active field
// flips direction, a new field starts descending.
func (s MatrixSort) Toggle(field SortField) MatrixSort {
	if s.Field == field {
		if s.Direction == Descending {
			return MatrixSort{Field: field, Direction: Ascending}
		}
		return MatrixSort{Field: field, Direction: Descending}
	}
	return MatrixSort{Field: field, Direction: Descending}
}

// ParseMatrixSort reads a field/direction pair, falling back to the default
// for anything it does not recognise.
func ParseMatrixSort(field, dir string) MatrixSort {
	s := DefaultMatrixSort()
	switch f := SortField(strings.ToLower(field)); f {
	case SortByName, SortByTotal, SortByAverage:
		s.Field = f
	}
	if SortDirection(strings.ToLower(dir)) == Ascending {
		s.Direction = Ascending
	}
	return s
}

// CollationLanguage selects the locale used to order category names.
var CollationLanguage = language.English

// SortMatrix orders rows in place. The sort is stable; names compare with
// locale-aware collation, totals and averages numerically. An unknown field
// leaves the order untouched.
func SortMatrix(rows []core.CategoryExpense, s MatrixSort) {
	// Collators keep internal buffers and cannot be shared between goroutines.
	nameCollator := collate.New(CollationLanguage)
	var cmp func(a, b core.CategoryExpense) int
	switch s.Field {
	case SortByName:
		cmp = func(a, b core.CategoryExpense) int { return nameCollator.CompareString(a.Category, b.Category) }
	case SortByTotal:
		cmp = func(a, b core.CategoryExpense) int { return compareCents(a.Total, b.Total) }
	case SortByAverage:
		cmp = func(a, b core.CategoryExpense) int { return compareCents(a.Average, b.Average) }
	default:
		return
	}
	desc := s.Direction != Ascending

	sort.SliceStable(rows, func(i, j int) bool {
		c := cmp(rows[i], rows[j])
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		// Numeric ties fall back to the name so equal totals read alphabetically.
		if s.Field != SortByName {
			return nameCollator.CompareString(rows[i].Category, rows[j].Category) < 0
		}
		return false
	})
}

func compareCents(a, b core.Money) int {
	switch {
	case a.Cents < b.Cents:
		return -1
	case a.Cents > b.Cents:
		return 1
	}
	return 0
}
