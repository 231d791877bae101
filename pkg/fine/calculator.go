// Package fine computes late fees for loans.
package fine

import (
	"time"

	"github.com/shopspring/decimal"

	"media-lending/pkg/models"
)

// Calculator computes the fine owed for a loan. Implementations must be pure.
type Calculator interface {
	Calculate(loan models.Loan, feePerDay decimal.Decimal, asOf time.Time) decimal.Decimal
}

// DailyRate charges feePerDay for every calendar day between the due date and
// the return date (or asOf while the loan is still out).
type DailyRate struct{}

func (DailyRate) Calculate(loan models.Loan, feePerDay decimal.Decimal, asOf time.Time) decimal.Decimal {
	end := asOf
	if loan.ReturnDate != nil {
		end = *loan.ReturnDate
	}
	days := DaysLate(loan.DueDate, end)
	if days <= 0 || feePerDay.Sign() <= 0 {
		return decimal.Zero
	}
	return feePerDay.Mul(decimal.NewFromInt(days))
}

// DaysLate returns the number of whole calendar days from due to end, each
// taken in its own location. The result is negative when end is before due.
func DaysLate(due, end time.Time) int64 {
	d := Day(due)
	e := Day(end)
	return int64(e.Sub(d).Hours() / 24)
}

// Day returns t's calendar date, read in t's own location, as midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
