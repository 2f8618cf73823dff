package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// HasCents reports whether d fits in two fractional digits.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// NormalizePeriod maps any date to the first day of its month.
func NormalizePeriod(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DateOnly drops the clock part of t, keeping its calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}
