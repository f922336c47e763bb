package services

import (
	"context"
	"fmt"
	"log/slog"

	"budget/internal/core"
	"budget/internal/repository"
)

// MonthInitializer lazily materializes the per-month rows: one status row
// per fixed expense, the month's income and its credit-card bill.
type MonthInitializer struct {
	repos *repository.Repositories
}

// NewMonthInitializer creates a new month initializer
func NewMonthInitializer(repos *repository.Repositories) *MonthInitializer {
	return &MonthInitializer{repos: repos}
}

// EnsureMonth creates the missing status rows for (year, month) and returns
// the month's full status set. Calling it again is a no-op apart from picking
// up fixed expenses created since the last call.
func (s *MonthInitializer) EnsureMonth(ctx context.Context, year, month int) ([]core.MonthlyFixedExpenseStatus, error) {
	statuses, err := s.repos.Statuses.Initialize(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("ensure month: %w", err)
	}
	return statuses, nil
}

// MonthlyIncome returns the month's income, seeding it from the default income.
func (s *MonthInitializer) MonthlyIncome(ctx context.Context, year, month int) (core.MonthlyIncome, error) {
	return s.repos.MonthlyIncome.GetOrCreate(ctx, year, month)
}

// MonthlyCreditCard returns the month's credit-card bill, seeding it at zero.
func (s *MonthInitializer) MonthlyCreditCard(ctx context.Context, year, month int) (core.MonthlyCreditCard, error) {
	return s.repos.CreditCards.GetOrCreate(ctx, year, month)
}

// PrepareMonth runs the three get-or-create steps. Any failure discards the
// snapshot; the month stays unavailable until the caller retries.
func (s *MonthInitializer) PrepareMonth(ctx context.Context, year, month int) (core.MonthSnapshot, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return core.MonthSnapshot{}, err
	}

	income, err := s.MonthlyIncome(ctx, year, month)
	if err != nil {
		return core.MonthSnapshot{}, err
	}
	card, err := s.MonthlyCreditCard(ctx, year, month)
	if err != nil {
		return core.MonthSnapshot{}, err
	}
	statuses, err := s.EnsureMonth(ctx, year, month)
	if err != nil {
		return core.MonthSnapshot{}, err
	}

	slog.DebugContext(ctx, "Month prepared",
		"year", year,
		"month", month,
		"statuses", len(statuses))

	return core.MonthSnapshot{
		Year:       year,
		Month:      month,
		Income:     income,
		CreditCard: card,
		Statuses:   statuses,
	}, nil
}

// ResetIncomeToDefault overwrites the month's income with the current default.
func (s *MonthInitializer) ResetIncomeToDefault(ctx context.Context, year, month int) (core.MonthlyIncome, error) {
	def, err := s.repos.DefaultIncome.Get(ctx)
	if err != nil {
		return core.MonthlyIncome{}, err
	}
	income, err := s.repos.MonthlyIncome.Set(ctx, year, month, def.Incomes)
	if err != nil {
		return core.MonthlyIncome{}, err
	}
	slog.InfoContext(ctx, "Monthly income reset to default",
		"year", year,
		"month", month,
		"total_cents", income.Total().Cents)
	return income, nil
}
