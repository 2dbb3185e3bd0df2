package budget

import (
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/period"
)

// Level is the severity of a budget alert.
type Level string

const (
	LevelNone     Level = ""
	LevelWarning  Level = "warning"
	LevelExceeded Level = "exceeded"
)

// WarningRatio is the share of a budget at which a warning is raised.
const WarningRatio = 0.8

// Alert is the outcome of a budget check for one new or edited transaction.
type Alert struct {
	Level    Level           `json:"level,omitempty"`
	Category domain.Category `json:"category"`
	Spent    float64         `json:"spent"`
	Limit    float64         `json:"limit"`
	Period   period.Range    `json:"period"`
}

// Triggered reports whether the check produced a warning or worse.
func (a Alert) Triggered() bool {
	return a.Level != LevelNone
}

// CheckBudgetAlert evaluates the budget of next's category over the financial
// month containing next's date, counting next on top of prior. A prior entry
// with next's ID is the pre-edit version of next and is skipped.
func CheckBudgetAlert(next domain.Transaction, prior []domain.Transaction, budgets domain.Budgets) Alert {
	if next.IsIncome() {
		return Alert{}
	}
	limit, ok := budgets.Limit(next.Category)
	if !ok {
		return Alert{}
	}

	r := period.FinancialMonthRange(next.Date)
	spent := safe(next.Amount)
	for _, tx := range prior {
		if tx.ID == next.ID || tx.Category != next.Category || !r.Contains(tx.Date) {
			continue
		}
		spent += safe(tx.Amount)
	}

	alert := Alert{Category: next.Category, Spent: spent, Limit: limit, Period: r}
	switch {
	case spent >= limit:
		alert.Level = LevelExceeded
	case spent >= limit*WarningRatio:
		alert.Level = LevelWarning
	}
	return alert
}

// BucketAllocation compares one bucket's spend with its 50/30/20 target.
type BucketAllocation struct {
	Bucket  domain.Bucket `json:"bucket"`
	Spent   float64       `json:"spent"`
	Target  float64       `json:"target"`
	Percent float64       `json:"percent"`
}

// Allocation is the 50/30/20 view of a financial month.
//
// The Savings bucket is the spend of categories mapped to Savings. Unallocated
// is income left after all three buckets and is never folded into a bucket.
type Allocation struct {
	Income      float64            `json:"income"`
	Buckets     []BucketAllocation `json:"buckets"`
	Unallocated float64            `json:"unallocated"`
	Unmapped    float64            `json:"unmapped"`
}

// Allocate builds the 50/30/20 view from period totals.
func Allocate(pt PeriodTotals) Allocation {
	a := Allocation{Income: safe(pt.MonthlyIncome), Unmapped: safe(pt.Unmapped)}
	var bucketed float64
	for _, b := range domain.Buckets {
		spent := safe(pt.MonthlyRuleTotals[b])
		bucketed += spent
		var target, pct float64
		if a.Income > 0 {
			target = a.Income * domain.BucketTargets[b]
			pct = spent / target * 100
		}
		a.Buckets = append(a.Buckets, BucketAllocation{Bucket: b, Spent: spent, Target: target, Percent: pct})
	}
	a.Unallocated = a.Income - bucketed
	return a
}

// Summary bundles every derived figure the dashboard shows.
type Summary struct {
	Currency  string           `json:"currency"`
	Totals    Totals           `json:"totals"`
	Monthly   PeriodTotals     `json:"monthly"`
	Rule      Allocation       `json:"rule"`
	Breakdown []CategoryAmount `json:"breakdown"`
	Budgets   []Progress       `json:"budgets"`
}

// Summarize computes the dashboard figures for the financial month r.
func Summarize(txs []domain.Transaction, currency string, rules domain.RuleMap, budgets domain.Budgets, r period.Range) Summary {
	totals := ComputeTotals(txs)
	monthly := ComputePeriodTotals(txs, r, rules)
	return Summary{
		Currency:  currency,
		Totals:    totals,
		Monthly:   monthly,
		Rule:      Allocate(monthly),
		Breakdown: Breakdown(totals.CategoryTotals),
		Budgets:   BudgetProgress(budgets, monthly.MonthlyCategoryTotals),
	}
}
