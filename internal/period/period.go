// Package period computes the financial month, a budgeting cycle that runs
// from the 25th of one month through the 24th of the next.
package period

import (
	"time"

	"cloud.google.com/go/civil"
)

// StartDay is the day of month a financial month begins on.
const StartDay = 25

// Range is an inclusive span of calendar dates.
type Range struct {
	Start civil.Date `json:"startDate"`
	End   civil.Date `json:"endDate"`
}

// FinancialMonthRange returns the financial month containing forDate.
// Only calendar parts are used, so the result never depends on a time zone.
func FinancialMonthRange(forDate civil.Date) Range {
	year, month := forDate.Year, forDate.Month
	if forDate.Day < StartDay {
		year, month = shiftMonth(year, month, -1)
	}
	endYear, endMonth := shiftMonth(year, month, 1)
	return Range{
		Start: civil.Date{Year: year, Month: month, Day: StartDay},
		End:   civil.Date{Year: endYear, Month: endMonth, Day: StartDay - 1},
	}
}

// Current returns the financial month containing now, read in now's location.
func Current(now time.Time) Range {
	return FinancialMonthRange(civil.DateOf(now))
}

// Contains reports whether d lies within the inclusive bounds of r.
func (r Range) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Previous returns the financial month before r.
func (r Range) Previous() Range {
	return FinancialMonthRange(r.Start.AddDays(-1))
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

func shiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	m := int(month) - 1 + delta
	year += m / 12
	m %= 12
	if m < 0 {
		m += 12
		year--
	}
	return year, time.Month(m + 1)
}
