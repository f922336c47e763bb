// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and euro representations.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in euro cents. All arithmetic happens on cents.
type Money struct {
	Cents int64
}

// Euros builds a Money from a whole-euro amount.
func Euros(euros int64) Money {
	return Money{Cents: euros * 100}
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half away from zero on the third decimal place. Signed values are accepted;
// callers decide whether negatives or zero are meaningful for their field.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
//	ParseDecimalToCents("-3")     -> -300, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsInteger() || cents.Abs().GreaterThan(decimal.New(1, 17)) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Decimal returns the euro value as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Euros returns the euro value as a float64 for display purposes.
// Use cents for calculations.
func (m Money) Euros() float64 {
	return m.Decimal().InexactFloat64()
}

// String renders the amount as "€1234.56".
func (m Money) String() string {
	return "€" + m.Decimal().StringFixed(2)
}

// ValidateNonNegative rejects amounts below zero.
func (m Money) ValidateNonNegative() error {
	if m.Cents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// MarshalJSON encodes the amount as a decimal euro number (12.5).
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or numeric string in euros.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		m.Cents = 0
		return nil
	}
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", s, err)
	}
	m.Cents = cents
	return nil
}
