package aigateway

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
)

const receiptPrompt = "Analyze this receipt image. Extract the following information:\n" +
	"1. The merchant or store name.\n" +
	"2. The date of the transaction. If you can't find one, use today's date. Format it as YYYY-MM-DD.\n" +
	"3. The currency of the receipt as an ISO 4217 code.\n" +
	"4. A list of all individual items purchased, along with their price.\n" +
	"5. The total amount paid.\n" +
	"6. The total tax, or 0 if no tax is shown.\n\n" +
	"Provide the response in the specified JSON format. Do not include taxes or discounts as separate items, " +
	"but ensure the total reflects the final amount paid.\n"

const merchantPrompt = "What is the name of the store or merchant on this receipt?\n" +
	"Reply with the name only, on a single line, with no other text.\n" +
	"If you cannot tell, reply with UNKNOWN.\n"

// feedbackSummary is the JSON the feedback prompt embeds.
type feedbackSummary struct {
	Currency   string             `json:"currency"`
	Period     string             `json:"period"`
	Income     float64            `json:"income"`
	Expenses   float64            `json:"expenses"`
	Categories map[string]float64 `json:"expensesByCategory"`
	Buckets    map[string]float64 `json:"expensesByBucket"`
}

func buildFeedbackPrompt(in FeedbackInput) (string, error) {
	pt := budget.ComputePeriodTotals(in.Transactions, in.Period, in.Rules)

	summary := feedbackSummary{
		Currency:   in.PrimaryCurrency,
		Period:     in.Period.String(),
		Income:     round2(pt.MonthlyIncome),
		Expenses:   round2(pt.MonthlyExpenses),
		Categories: make(map[string]float64, len(pt.MonthlyCategoryTotals)),
		Buckets:    make(map[string]float64, len(pt.MonthlyRuleTotals)),
	}
	for c, v := range pt.MonthlyCategoryTotals {
		summary.Categories[c.Name()] = round2(v)
	}
	for b, v := range pt.MonthlyRuleTotals {
		summary.Buckets[string(b)] = round2(v)
	}

	js, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("buildFeedbackPrompt: encode summary: %w", err)
	}

	var b strings.Builder
	b.WriteString("As a friendly financial advisor, analyze the following expense summary and provide feedback.\n")
	b.WriteString("The user wants to understand their spending habits better.\n")
	fmt.Fprintf(&b, "The figures cover the financial month %s and are in %s.\n", in.Period.String(), in.PrimaryCurrency)
	b.WriteString("The user follows the 50/30/20 rule: 50% of income for Needs, 30% for Wants, 20% for Savings.\n\n")
	b.WriteString("Expense Summary:\n")
	b.Write(js)
	b.WriteString("\n\nPlease provide:\n")
	b.WriteString("1. A brief, encouraging opening.\n")
	b.WriteString("2. An observation about the category with the highest spending.\n")
	b.WriteString("3. How the Needs, Wants and Savings totals compare with the 50/30/20 targets.\n")
	b.WriteString("4. One or two practical and actionable suggestions for areas where they could potentially save money.\n")
	b.WriteString("5. A positive concluding remark.\n\n")
	b.WriteString("Keep the tone supportive and helpful, not judgmental. Format the response as a single block of text. ")
	b.WriteString("Use markdown for simple formatting like bolding if needed.\n")
	return b.String(), nil
}

// queryLine is one transaction as shown to the model.
type queryLine struct {
	Date     string   `json:"date"`
	Name     string   `json:"name"`
	Merchant string   `json:"merchant,omitempty"`
	Category string   `json:"category"`
	Amount   float64  `json:"amount"`
	Tags     []string `json:"tags,omitempty"`
}

func buildQueryPrompt(question string, txs []domain.Transaction, primaryCurrency string) (string, error) {
	lines := make([]queryLine, 0, len(txs))
	for _, tx := range txs {
		lines = append(lines, queryLine{
			Date:     tx.Date.String(),
			Name:     tx.Name,
			Merchant: tx.Merchant,
			Category: tx.Category.Name(),
			Amount:   round2(tx.Amount),
			Tags:     tx.Tags,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Date > lines[j].Date })

	js, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("buildQueryPrompt: encode transactions: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a helpful personal finance assistant.\n")
	fmt.Fprintf(&b, "All amounts are in %s (%s). Entries with category %q are income; everything else is an expense.\n",
		primaryCurrency, currency.Symbol(primaryCurrency), domain.IncomeName)
	b.WriteString("Answer the user's question using ONLY the transactions below. ")
	b.WriteString("If the data does not contain the answer, say so. Be concise.\n\n")
	b.WriteString("Transactions (JSON):\n")
	b.Write(js)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")
	return b.String(), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
