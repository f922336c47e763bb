package budget

import "budget/internal/core"

// Totals sums the current value of every investment and reserve.
func Totals(investments, reserves []core.Holding) core.BudgetTotals {
	var t core.BudgetTotals
	for _, h := range investments {
		t.Investments = t.Investments.Add(h.CurrentValue)
	}
	for _, h := range reserves {
		t.Reserves = t.Reserves.Add(h.CurrentValue)
	}
	t.Total = t.Investments.Add(t.Reserves)
	return t
}

// SummarizeMonth condenses a prepared month for the detail view.
//
// Balance is income minus the credit-card bill, the variable expenses and
// the fixed expenses already completed. Statuses whose fixed expense is gone
// are ignored.
func SummarizeMonth(snap core.MonthSnapshot, fixed []core.FixedExpense, variable []core.VariableExpense) core.MonthSummary {
	sum := core.MonthSummary{
		Year:       snap.Year,
		Month:      snap.Month,
		Income:     snap.Income.Total(),
		CreditCard: snap.CreditCard.Amount,
	}

	for _, v := range variable {
		if v.Year == snap.Year && v.Month == snap.Month {
			sum.Variable = sum.Variable.Add(v.Amount)
		}
	}

	byID := make(map[string]core.FixedExpense, len(fixed))
	for _, f := range fixed {
		byID[f.ID] = f
	}
	owners := map[core.Owner]*core.OwnerTotal{
		core.OwnerLucas:  {Owner: core.OwnerLucas},
		core.OwnerCamila: {Owner: core.OwnerCamila},
	}
	for _, s := range snap.Statuses {
		f, ok := byID[s.FixedExpenseID]
		if !ok {
			continue
		}
		o := owners[f.Owner]
		if o != nil {
			o.Planned = o.Planned.Add(f.EstimatedAmount)
		}
		if f.StatusRequired {
			sum.TasksRequired++
		}
		if s.Completed {
			sum.FixedCompleted = sum.FixedCompleted.Add(f.EstimatedAmount)
			if o != nil {
				o.Completed = o.Completed.Add(f.EstimatedAmount)
			}
			if f.StatusRequired {
				sum.TasksCompleted++
			}
		} else {
			sum.FixedPending = sum.FixedPending.Add(f.EstimatedAmount)
		}
	}
	sum.ByOwner = []core.OwnerTotal{*owners[core.OwnerLucas], *owners[core.OwnerCamila]}

	sum.Balance = sum.Income.Sub(sum.CreditCard).Sub(sum.Variable).Sub(sum.FixedCompleted)
	return sum
}
