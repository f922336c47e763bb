package core

// MonthlyComparison is one row of the Plan-vs-Actual view.
type MonthlyComparison struct {
	Year      int   `json:"year"`
	Month     int   `json:"month"`
	Planned   Money `json:"planned"`
	Actual    Money `json:"actual"`
	Deviation Money `json:"deviation"`
	// DeviationPercentage is 0 when Planned is 0; PercentageDefined tells the two cases apart.
	DeviationPercentage float64 `json:"deviation_percentage"`
	PercentageDefined   bool    `json:"percentage_defined"`
}

// CategoryExpense is one row of the Category Expense Matrix.
type CategoryExpense struct {
	CategoryID string           `json:"category_id"`
	Category   string           `json:"category"`
	Months     map[string]Money `json:"months"`
	Total      Money            `json:"total"`
	Average    Money            `json:"average"`
}

// BudgetTotals is the running total of all holdings.
type BudgetTotals struct {
	Investments Money `json:"total_investments"`
	Reserves    Money `json:"total_reserves"`
	Total       Money `json:"total_budget"`
}

// MonthSnapshot is everything the monthly detail view needs once a month is prepared.
type MonthSnapshot struct {
	Year       int                         `json:"year"`
	Month      int                         `json:"month"`
	Income     MonthlyIncome               `json:"income"`
	CreditCard MonthlyCreditCard           `json:"credit_card"`
	Statuses   []MonthlyFixedExpenseStatus `json:"statuses"`
}

// OwnerTotal is the fixed-expense load carried by one owner.
type OwnerTotal struct {
	Owner     Owner `json:"owner"`
	Planned   Money `json:"planned"`
	Completed Money `json:"completed"`
}

// MonthSummary condenses a month into the figures shown on the detail page.
type MonthSummary struct {
	Year           int          `json:"year"`
	Month          int          `json:"month"`
	Income         Money        `json:"income"`
	CreditCard     Money        `json:"credit_card"`
	Variable       Money        `json:"variable"`
	FixedCompleted Money        `json:"fixed_completed"`
	FixedPending   Money        `json:"fixed_pending"`
	Balance        Money        `json:"balance"`
	TasksRequired  int          `json:"tasks_required"`
	TasksCompleted int          `json:"tasks_completed"`
	ByOwner        []OwnerTotal `json:"by_owner"`
}
