package fine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"media-lending/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDailyRateCalculate(t *testing.T) {
	due := date(2024, time.March, 10)
	returned := date(2024, time.March, 13)

	tests := []struct {
		name     string
		loan     models.Loan
		fee      string
		asOf     time.Time
		expected string
	}{
		{
			name:     "not yet due",
			loan:     models.Loan{DueDate: due},
			fee:      "2.00",
			asOf:     date(2024, time.March, 5),
			expected: "0",
		},
		{
			name:     "returned on due date",
			loan:     models.Loan{DueDate: due},
			fee:      "2.00",
			asOf:     due,
			expected: "0",
		},
		{
			name:     "overdue while still out",
			loan:     models.Loan{DueDate: due},
			fee:      "0.50",
			asOf:     date(2024, time.March, 15),
			expected: "2.5",
		},
		{
			name:     "return date wins over asOf",
			loan:     models.Loan{DueDate: due, ReturnDate: &returned},
			fee:      "10.00",
			asOf:     date(2024, time.April, 30),
			expected: "30",
		},
		{
			name:     "zero fee",
			loan:     models.Loan{DueDate: due},
			fee:      "0",
			asOf:     date(2024, time.March, 20),
			expected: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DailyRate{}.Calculate(tt.loan, decimal.RequireFromString(tt.fee), tt.asOf)
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(got), "got %s", got)
			assert.False(t, got.IsNegative())
		})
	}
}

func TestDaysLateIgnoresTimeOfDay(t *testing.T) {
	due := time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC)
	end := time.Date(2024, time.March, 11, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, int64(1), DaysLate(due, end))
	assert.Equal(t, int64(-1), DaysLate(end, due))
	assert.Equal(t, int64(0), DaysLate(due, due))

	moscow := time.FixedZone("MSK", 3*60*60)
	assert.Equal(t, int64(0), DaysLate(time.Date(2024, time.March, 11, 0, 30, 0, 0, moscow), end))
}

func TestDayKeepsCallerCalendarDate(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	early := time.Date(2024, time.March, 2, 1, 0, 0, 0, moscow)

	assert.Equal(t, date(2024, time.March, 2), Day(early))
	assert.Equal(t, int64(1), DaysLate(date(2024, time.March, 1), early))

	// 23:30 in New York is already the next day in UTC
	newYork := time.FixedZone("EST", -5*60*60)
	late := time.Date(2024, time.March, 10, 23, 30, 0, 0, newYork)
	assert.Equal(t, int64(0), DaysLate(date(2024, time.March, 10), late))
}
