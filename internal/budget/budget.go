// Package budget derives totals, 50/30/20 allocations and budget alerts from
// a transaction list. Every function is pure; amounts that are not finite
// numbers count as zero.
package budget

import (
	"math"
	"sort"

	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/period"
)

// Totals are all-time aggregates.
type Totals struct {
	TotalIncome    float64                     `json:"totalIncome"`
	TotalExpenses  float64                     `json:"totalExpenses"`
	NetBalance     float64                     `json:"netBalance"`
	CategoryTotals map[domain.Category]float64 `json:"categoryTotals"`
}

// ComputeTotals sums income, expenses and per-category spend over txs.
func ComputeTotals(txs []domain.Transaction) Totals {
	t := Totals{CategoryTotals: make(map[domain.Category]float64)}
	for _, tx := range txs {
		amount := safe(tx.Amount)
		if tx.IsIncome() {
			t.TotalIncome += amount
			continue
		}
		t.TotalExpenses += amount
		t.CategoryTotals[tx.Category] += amount
	}
	t.NetBalance = t.TotalIncome - t.TotalExpenses
	return t
}

// PeriodTotals are aggregates restricted to one financial month.
type PeriodTotals struct {
	Period                period.Range                `json:"period"`
	MonthlyIncome         float64                     `json:"monthlyIncome"`
	MonthlyExpenses       float64                     `json:"monthlyExpenses"`
	MonthlyRuleTotals     map[domain.Bucket]float64   `json:"monthlyRuleTotals"`
	MonthlyCategoryTotals map[domain.Category]float64 `json:"monthlyCategoryTotals"`
	// Unmapped is expense spend in categories absent from the rule map. It is
	// part of MonthlyExpenses but of no bucket.
	Unmapped float64 `json:"unmapped"`
}

// ComputePeriodTotals aggregates transactions dated within r.
func ComputePeriodTotals(txs []domain.Transaction, r period.Range, rules domain.RuleMap) PeriodTotals {
	pt := PeriodTotals{
		Period:                r,
		MonthlyRuleTotals:     make(map[domain.Bucket]float64, len(domain.Buckets)),
		MonthlyCategoryTotals: make(map[domain.Category]float64),
	}
	for _, b := range domain.Buckets {
		pt.MonthlyRuleTotals[b] = 0
	}
	for _, tx := range txs {
		if !r.Contains(tx.Date) {
			continue
		}
		amount := safe(tx.Amount)
		if tx.IsIncome() {
			pt.MonthlyIncome += amount
			continue
		}
		pt.MonthlyExpenses += amount
		pt.MonthlyCategoryTotals[tx.Category] += amount
		if bucket, ok := rules[tx.Category]; ok {
			pt.MonthlyRuleTotals[bucket] += amount
		} else {
			pt.Unmapped += amount
		}
	}
	return pt
}

// CategoryAmount is one slice of the expense breakdown.
type CategoryAmount struct {
	Category domain.Category `json:"category"`
	Amount   float64         `json:"amount"`
}

// Breakdown orders category totals by amount, largest first.
func Breakdown(totals map[domain.Category]float64) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(totals))
	for c, v := range totals {
		out = append(out, CategoryAmount{Category: c, Amount: safe(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category.Name() < out[j].Category.Name()
	})
	return out
}

// Progress is spend against a configured budget within a period.
type Progress struct {
	Category domain.Category `json:"category"`
	Spent    float64         `json:"spent"`
	Limit    float64         `json:"limit"`
	Percent  float64         `json:"percent"`
}

// BudgetProgress reports every category with a positive budget, sorted by name.
func BudgetProgress(budgets domain.Budgets, monthly map[domain.Category]float64) []Progress {
	out := make([]Progress, 0, len(budgets))
	for c := range budgets {
		limit, ok := budgets.Limit(c)
		if !ok {
			continue
		}
		spent := safe(monthly[c])
		out = append(out, Progress{
			Category: c,
			Spent:    spent,
			Limit:    limit,
			Percent:  spent / limit * 100,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category.Name() < out[j].Category.Name() })
	return out
}

func safe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
