package period

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func d(y int, m time.Month, day int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: day}
}

func TestFinancialMonthRange(t *testing.T) {
	tests := []struct {
		name      string
		forDate   civil.Date
		wantStart string
		wantEnd   string
	}{
		{"mid month", d(2024, 7, 15), "2024-06-25", "2024-07-24"},
		{"on boundary", d(2024, 7, 25), "2024-07-25", "2024-08-24"},
		{"day before boundary", d(2024, 7, 24), "2024-06-25", "2024-07-24"},
		{"december rolls into january", d(2024, 12, 31), "2024-12-25", "2025-01-24"},
		{"january rolls back into december", d(2025, 1, 3), "2024-12-25", "2025-01-24"},
		{"leap february", d(2024, 2, 29), "2024-02-25", "2024-03-24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FinancialMonthRange(tt.forDate)
			if r.Start.String() != tt.wantStart || r.End.String() != tt.wantEnd {
				t.Errorf("FinancialMonthRange(%s) = %s, want %s..%s", tt.forDate, r, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRangeSpansOneMonthMinusADay(t *testing.T) {
	day := d(2023, 1, 1)
	for i := 0; i < 800; i++ {
		r := FinancialMonthRange(day)
		y, m := shiftMonth(r.Start.Year, r.Start.Month, 1)
		want := civil.Date{Year: y, Month: m, Day: r.Start.Day}.AddDays(-1)
		if r.End != want {
			t.Fatalf("range for %s = %s, end should be %s", day, r, want)
		}
		if !r.Contains(day) {
			t.Fatalf("range %s does not contain %s", r, day)
		}
		day = day.AddDays(1)
	}
}

func TestContainsIsInclusive(t *testing.T) {
	r := FinancialMonthRange(d(2024, 6, 1))
	for _, in := range []civil.Date{r.Start, r.End, d(2024, 6, 10)} {
		if !r.Contains(in) {
			t.Errorf("%s should contain %s", r, in)
		}
	}
	for _, out := range []civil.Date{r.Start.AddDays(-1), r.End.AddDays(1)} {
		if r.Contains(out) {
			t.Errorf("%s should not contain %s", r, out)
		}
	}
}

func TestCurrentIgnoresClockTime(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*3600)
	late := time.Date(2024, 7, 24, 23, 59, 0, 0, loc)
	if got := Current(late); got.End != d(2024, 7, 24) {
		t.Errorf("Current(%v) = %s, want period ending 2024-07-24", late, got)
	}
}

func TestPrevious(t *testing.T) {
	r := FinancialMonthRange(d(2025, 1, 10)).Previous()
	if r.Start != d(2024, 11, 25) || r.End != d(2024, 12, 24) {
		t.Errorf("Previous() = %s", r)
	}
}

func TestShiftMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		delta int
		wantY int
		wantM time.Month
	}{
		{2024, 12, 1, 2025, 1},
		{2024, 1, -1, 2023, 12},
		{2024, 6, 0, 2024, 6},
		{2024, 3, -15, 2022, 12},
	}
	for _, tt := range tests {
		y, m := shiftMonth(tt.year, tt.month, tt.delta)
		if y != tt.wantY || m != tt.wantM {
			t.Errorf("shiftMonth(%d, %d, %d) = %d-%d, want %d-%d", tt.year, tt.month, tt.delta, y, m, tt.wantY, tt.wantM)
		}
	}
}
