package leave

import "github.com/shopspring/decimal"

var two = decimal.NewFromInt(2)

// CountDays returns the number of leave days booked by a request.
// Both endpoints are inclusive; a half-day request counts half of that
// and the result is never rounded (Jan 1-3 half = 1.5).
//
// A reversed range (end before start) is counted by absolute distance,
// so it behaves as if the dates were swapped.
func CountDays(start, end Date, leaveType LeaveType) decimal.Decimal {
	diff := DaysBetween(start, end)
	if diff < 0 {
		diff = -diff
	}
	days := decimal.NewFromInt(int64(diff) + 1)
	if leaveType == LeaveHalf {
		days = days.Div(two)
	}
	return days
}
