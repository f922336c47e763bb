package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Owner is the household member responsible for a fixed expense.
type Owner string

const (
	OwnerLucas  Owner = "Lucas"
	OwnerCamila Owner = "Camila"
)

// Valid reports whether o is one of the two household owners.
func (o Owner) Valid() bool {
	return o == OwnerLucas || o == OwnerCamila
}

// HoldingKind selects between the two value-tracked holdings.
type HoldingKind string

const (
	KindInvestment HoldingKind = "investment"
	KindReserve    HoldingKind = "reserve"
)

type (
	Category struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}

	FixedExpense struct {
		ID              string    `json:"id"`
		CategoryID      string    `json:"category_id"`
		Description     string    `json:"description"`
		EstimatedAmount Money     `json:"estimated_amount"`
		Owner           Owner     `json:"owner"`
		StatusRequired  bool      `json:"status_required"`
		CreatedAt       time.Time `json:"created_at"`
	}

	// Incomes groups the three income figures shared by default and monthly income.
	Incomes struct {
		Lucas  Money `json:"lucas_income"`
		Camila Money `json:"camila_income"`
		Other  Money `json:"other_income"`
	}

	DefaultIncome struct {
		ID string `json:"id"`
		Incomes
		LastUpdated time.Time `json:"last_updated"`
		CreatedAt   time.Time `json:"created_at"`
	}

	MonthlyIncome struct {
		ID    string `json:"id"`
		Year  int    `json:"year"`
		Month int    `json:"month"`
		Incomes
		CreatedAt time.Time `json:"created_at"`
	}

	MonthlyCreditCard struct {
		ID        string    `json:"id"`
		Year      int       `json:"year"`
		Month     int       `json:"month"`
		Amount    Money     `json:"amount"`
		CreatedAt time.Time `json:"created_at"`
	}

	MonthlyFixedExpenseStatus struct {
		ID             string     `json:"id"`
		Year           int        `json:"year"`
		Month          int        `json:"month"`
		FixedExpenseID string     `json:"fixed_expense_id"`
		Completed      bool       `json:"completed"`
		CompletedAt    *time.Time `json:"completed_at"`
		CreatedAt      time.Time  `json:"created_at"`
	}

	VariableExpense struct {
		ID          string    `json:"id"`
		Year        int       `json:"year"`
		Month       int       `json:"month"`
		CategoryID  string    `json:"category_id"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Date        Date      `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// Holding is an investment or a reserve. TargetValue is only meaningful for reserves.
	Holding struct {
		ID           string      `json:"id"`
		Kind         HoldingKind `json:"kind"`
		Category     string      `json:"category"`
		Name         string      `json:"name"`
		CurrentValue Money       `json:"current_value"`
		TargetValue  *Money      `json:"target_value,omitempty"`
		LastUpdated  time.Time   `json:"last_updated"`
		CreatedAt    time.Time   `json:"created_at"`
	}

	// HistoryEntry is an immutable audit record of a holding value change.
	HistoryEntry struct {
		ID            string      `json:"id"`
		Kind          HoldingKind `json:"kind"`
		HoldingID     string      `json:"holding_id"`
		PreviousValue Money       `json:"previous_value"`
		NewValue      Money       `json:"new_value"`
		UpdatedBy     string      `json:"updated_by"`
		CreatedAt     time.Time   `json:"created_at"`
	}
)

var (
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidYear          = errors.New("invalid year")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrNegativeAmount       = errors.New("amount cannot be negative")
	ErrMissingAmount        = errors.New("missing amount")
	ErrMissingCategory      = errors.New("missing category")
	ErrMissingDate          = errors.New("missing date")
	ErrEmptyDescription     = errors.New("empty description")
	ErrEmptyName            = errors.New("empty name")
	ErrInvalidOwner         = errors.New("invalid owner")
	ErrInvalidKind          = errors.New("invalid holding kind")
	ErrNotFound             = errors.New("not found")
	ErrCategoryInUse        = errors.New("category is referenced by expenses")
	ErrDefaultIncomeMissing = errors.New("default income is not configured")
	ErrUnauthenticated      = errors.New("no acting user")
	ErrHistoryNotRecorded   = errors.New("value updated but history was not recorded")
)

// IsValidation reports whether err is a rejected-input error rather than a store failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidMonth, ErrInvalidYear, ErrInvalidAmount, ErrNegativeAmount,
		ErrMissingAmount, ErrMissingCategory, ErrMissingDate, ErrEmptyDescription,
		ErrEmptyName, ErrInvalidOwner, ErrInvalidKind,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ValidateYearMonth checks a (year, month) pair.
func ValidateYearMonth(year, month int) error {
	if year < 1970 || year > 9999 {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	return nil
}

// MonthKey formats the matrix key for a month, e.g. "2024-03".
func MonthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

func (f FixedExpense) Validate() error {
	if strings.TrimSpace(f.CategoryID) == "" {
		return ErrMissingCategory
	}
	if strings.TrimSpace(f.Description) == "" {
		return ErrEmptyDescription
	}
	if len(f.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := f.EstimatedAmount.ValidateNonNegative(); err != nil {
		return err
	}
	if !f.Owner.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOwner, f.Owner)
	}
	return nil
}

func (i Incomes) Validate() error {
	for _, m := range []Money{i.Lucas, i.Camila, i.Other} {
		if err := m.ValidateNonNegative(); err != nil {
			return err
		}
	}
	return nil
}

// Total is the sum of the three income figures.
func (i Incomes) Total() Money {
	return i.Lucas.Add(i.Camila).Add(i.Other)
}

func (c MonthlyCreditCard) Validate() error {
	if err := ValidateYearMonth(c.Year, c.Month); err != nil {
		return err
	}
	return c.Amount.ValidateNonNegative()
}

// Validate rejects expenses missing a category, description, amount or date.
// Zero is treated as a missing amount; negative amounts are accepted.
func (v VariableExpense) Validate() error {
	if strings.TrimSpace(v.CategoryID) == "" {
		return ErrMissingCategory
	}
	if strings.TrimSpace(v.Description) == "" {
		return ErrEmptyDescription
	}
	if v.Amount.IsZero() {
		return ErrMissingAmount
	}
	if v.Date.IsZero() {
		return ErrMissingDate
	}
	return ValidateYearMonth(v.Year, v.Month)
}

// SetCompleted moves the status to completed or pending, keeping
// CompletedAt non-nil exactly when Completed is true.
func (s *MonthlyFixedExpenseStatus) SetCompleted(completed bool, now time.Time) {
	s.Completed = completed
	if completed {
		t := now.UTC()
		s.CompletedAt = &t
		return
	}
	s.CompletedAt = nil
}

func (k HoldingKind) Valid() bool {
	return k == KindInvestment || k == KindReserve
}

func (h Holding) Validate() error {
	if !h.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, h.Kind)
	}
	if strings.TrimSpace(h.Name) == "" {
		return ErrEmptyName
	}
	if err := h.CurrentValue.ValidateNonNegative(); err != nil {
		return err
	}
	if h.TargetValue != nil {
		if h.Kind != KindReserve {
			return errors.New("target value is only allowed on reserves")
		}
		return h.TargetValue.ValidateNonNegative()
	}
	return nil
}
