/*
Package incentive provides the sales-incentive calculation core.

PURPOSE:
  Converts an employee's actual performance and a plan's target/slab
  definition into a payable incentive amount, and owns the lifecycle of
  that computed amount as it moves through approval to payment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An amount with a currency (e.g., 5625.00 INR)
  - Percentage: A non-negative 0-100+ scale value (over-achievement allowed)
  - DateRange: A half-open window [Start, End) for periods and plan validity

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Rounding happens once, when a Money value is materialized for storage
  3. Arithmetic between different currencies is an error, not a conversion

SEE ALSO:
  - plan.go: Target, Slab and Plan definitions
  - engine.go: The pure calculation engine
  - calculation.go: The Calculation aggregate and its state machine
*/
package incentive

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept when money is stored.
const MoneyScale = 2

var hundred = decimal.NewFromInt(100)

// =============================================================================
// MONEY
// =============================================================================

// Money is an immutable amount in a single currency.
// Amounts are kept unrounded until Rounded is called.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney validates the currency code and builds a Money value.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, validationErrorf("currency must be a 3-letter code, got %q", currency)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// MustMoney parses a decimal string and panics on malformed input.
// Intended for tests and constants.
func MustMoney(amount string, currency string) Money {
	m, err := NewMoney(decimal.RequireFromString(amount), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns zero in the given currency.
func ZeroMoney(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: strings.ToUpper(currency)}
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return &CurrencyMismatchError{Left: m.Currency, Right: o.Currency}
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

func (m Money) Mul(f decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(f), Currency: m.Currency}
}

// Min returns the smaller of two amounts in the same currency.
func (m Money) Min(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	if o.Amount.LessThan(m.Amount) {
		return o, nil
	}
	return m, nil
}

// Max returns the larger of two amounts in the same currency.
func (m Money) Max(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	if o.Amount.GreaterThan(m.Amount) {
		return o, nil
	}
	return m, nil
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Rounded materializes the amount at storage precision (half away from zero).
func (m Money) Rounded() Money {
	return Money{Amount: m.Amount.Round(MoneyScale), Currency: m.Currency}
}

// Floored truncates toward negative infinity at storage precision.
func (m Money) Floored() Money {
	return Money{Amount: m.Amount.RoundFloor(MoneyScale), Currency: m.Currency}
}

func (m Money) String() string {
	return m.Amount.StringFixed(MoneyScale) + " " + m.Currency
}

// =============================================================================
// PERCENTAGE
// =============================================================================

// Percentage is a 0-100+ scale value. Values above 100 are legal
// (over-achievement); negative values are not.
type Percentage struct {
	Value decimal.Decimal
}

func NewPercentage(v decimal.Decimal) (Percentage, error) {
	if v.IsNegative() {
		return Percentage{}, validationErrorf("percentage must be non-negative, got %s", v)
	}
	return Percentage{Value: v}, nil
}

func MustPercentage(s string) Percentage {
	p, err := NewPercentage(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return p
}

// Ratio returns the percentage as a fraction (7.5% -> 0.075).
func (p Percentage) Ratio() decimal.Decimal { return p.Value.Div(hundred) }

func (p Percentage) IsZero() bool { return p.Value.IsZero() }

func (p Percentage) String() string { return p.Value.String() + "%" }

// PercentOf returns part/whole*100, or zero when whole is zero.
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// =============================================================================
// DATE RANGE
// =============================================================================

// DateRange is the half-open window [Start, End). Start must precede End.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	if !start.Before(end) {
		return DateRange{}, validationErrorf("date range start %s must be before end %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return DateRange{Start: start, End: end}, nil
}

// MonthRange returns the calendar month containing (year, month) in UTC.
func MonthRange(year int, month time.Month) DateRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether t falls in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Covers reports whether other lies entirely within r.
func (r DateRange) Covers(other DateRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Overlaps reports whether the two windows share any instant.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Intersect returns the shared window, or false when there is none.
func (r DateRange) Intersect(other DateRange) (DateRange, bool) {
	if !r.Overlaps(other) {
		return DateRange{}, false
	}
	start, end := r.Start, r.End
	if other.Start.After(start) {
		start = other.Start
	}
	if other.End.Before(end) {
		end = other.End
	}
	return DateRange{Start: start, End: end}, true
}

// Days returns the number of whole days in the window.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

func (r DateRange) Equal(other DateRange) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}
