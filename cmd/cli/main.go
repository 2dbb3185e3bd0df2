package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/app"
	"github.com/dvloznov/aeva/internal/config"
	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/logger"
	"github.com/dvloznov/aeva/internal/notify"
	"github.com/dvloznov/aeva/internal/period"
	"github.com/dvloznov/aeva/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logs go to stderr so command output stays clean.
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Pretty: true, Out: os.Stderr})

	commands := map[string]func(context.Context, *app.App, zerolog.Logger, []string){
		"add":        runAdd,
		"list":       runList,
		"delete":     runDelete,
		"summary":    runSummary,
		"currency":   runCurrency,
		"budget":     runBudget,
		"categories": runCategories,
		"scan":       runScan,
		"ask":        runAsk,
		"feedback":   runFeedback,
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage()
		return
	}

	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	log = logger.WithFields(log, map[string]interface{}{"command": os.Args[1]})
	ctx := logger.WithContext(context.Background(), log)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	run(ctx, a, log, os.Args[2:])
}

func printUsage() {
	fmt.Println("aeva - personal finance tracker")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add         Add an income or expense")
	fmt.Println("  list        List transactions, optionally filtered")
	fmt.Println("  delete      Delete a transaction by ID")
	fmt.Println("  summary     Show totals, the 50/30/20 view and budgets for a financial month")
	fmt.Println("  currency    Show or change the primary currency")
	fmt.Println("  budget      Show or set monthly category budgets")
	fmt.Println("  categories  Show or replace expense categories")
	fmt.Println("  scan        Scan a receipt image (local path or gs:// URI)")
	fmt.Println("  ask         Ask a question about your transactions")
	fmt.Println("  feedback    Get advice on the current financial month")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runAdd(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "Description")
	amount := fs.Float64("amount", 0, "Amount, always positive")
	code := fs.String("currency", "", "Currency code (defaults to the primary currency)")
	date := fs.String("date", "", "Date YYYY-MM-DD (defaults to today)")
	merchant := fs.String("merchant", "", "Merchant")
	category := fs.String("category", domain.OthersName, "Category name, or Income")
	tags := fs.String("tags", "", "Comma separated tags")
	fs.Parse(args)

	d := a.Store.Today()
	if *date != "" {
		parsed, err := civil.ParseDate(*date)
		if err != nil {
			log.Fatal().Str("date", *date).Msg("Error: -date must be YYYY-MM-DD")
		}
		d = parsed
	}

	tx, alert, err := a.Store.AddTransaction(ctx, domain.TransactionInput{
		Name:             *name,
		OriginalAmount:   *amount,
		OriginalCurrency: *code,
		Date:             d,
		Merchant:         *merchant,
		Category:         domain.ParseCategory(*category),
		Tags:             domain.ParseTags(*tags),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add transaction")
	}

	fmt.Printf("Added %s %s (%s) on %s [%s]\n", tx.ID, tx.Name, currency.Format(tx.Amount, a.Store.PrimaryCurrency()), tx.Date, tx.Category)
	notify.BudgetAlert(printNotifier, alert, a.Store.PrimaryCurrency())
}

func runList(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	search := fs.String("search", "", "Match name, merchant or tag")
	category := fs.String("category", "", "Only this category")
	from := fs.String("from", "", "Start date YYYY-MM-DD")
	to := fs.String("to", "", "End date YYYY-MM-DD")
	fs.Parse(args)

	f := store.Filter{Search: *search, Category: *category}
	var err error
	if *from != "" {
		if f.StartDate, err = civil.ParseDate(*from); err != nil {
			log.Fatal().Msg("Error: -from must be YYYY-MM-DD")
		}
	}
	if *to != "" {
		if f.EndDate, err = civil.ParseDate(*to); err != nil {
			log.Fatal().Msg("Error: -to must be YYYY-MM-DD")
		}
	}

	txs := a.Store.Filter(f)
	primary := a.Store.PrimaryCurrency()
	fmt.Printf("\n=== Transactions (%d) ===\n", len(txs))
	for _, tx := range txs {
		sign := "-"
		if tx.IsIncome() {
			sign = "+"
		}
		fmt.Printf("\n%s  %s%s  %s\n", tx.Date, sign, currency.Format(tx.Amount, primary), tx.Name)
		fmt.Printf("   ID:       %s\n", tx.ID)
		fmt.Printf("   Category: %s\n", tx.Category)
		if tx.Merchant != "" {
			fmt.Printf("   Merchant: %s\n", tx.Merchant)
		}
		if tx.OriginalCurrency != primary {
			fmt.Printf("   Original: %s\n", currency.Format(tx.OriginalAmount, tx.OriginalCurrency))
		}
		if len(tx.Tags) > 0 {
			fmt.Printf("   Tags:     %s\n", strings.Join(tx.Tags, ", "))
		}
	}
	fmt.Println()
}

func runDelete(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID")
	fs.Parse(args)

	if *id == "" {
		log.Fatal().Msg("Error: -id is required")
	}
	if err := a.Store.DeleteTransaction(ctx, *id); err != nil {
		log.Fatal().Err(err).Msg("Failed to delete transaction")
	}
	fmt.Printf("Deleted %s\n", *id)
}

func runSummary(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	date := fs.String("date", "", "Any date in the financial month to summarize (defaults to today)")
	fs.Parse(args)

	d := a.Store.Today()
	if *date != "" {
		parsed, err := civil.ParseDate(*date)
		if err != nil {
			log.Fatal().Msg("Error: -date must be YYYY-MM-DD")
		}
		d = parsed
	}

	rng := period.FinancialMonthRange(d)
	s := a.Store.Summary(rng)
	money := func(v float64) string { return currency.Format(v, s.Currency) }

	fmt.Printf("\n=== All time ===\n")
	fmt.Printf("Income:   %s\n", money(s.Totals.TotalIncome))
	fmt.Printf("Expenses: %s\n", money(s.Totals.TotalExpenses))
	fmt.Printf("Balance:  %s\n", money(s.Totals.NetBalance))

	fmt.Printf("\n=== Financial month %s ===\n", rng)
	fmt.Printf("Income:   %s\n", money(s.Monthly.MonthlyIncome))
	fmt.Printf("Expenses: %s\n", money(s.Monthly.MonthlyExpenses))
	for _, b := range s.Rule.Buckets {
		fmt.Printf("  %-8s %s of %s (%.0f%%)\n", b.Bucket, money(b.Spent), money(b.Target), b.Percent)
	}
	fmt.Printf("  Unallocated %s\n", money(s.Rule.Unallocated))
	if s.Rule.Unmapped > 0 {
		fmt.Printf("  Unmapped    %s\n", money(s.Rule.Unmapped))
	}

	if len(s.Budgets) > 0 {
		fmt.Printf("\n=== Budgets ===\n")
		for _, p := range s.Budgets {
			fmt.Printf("  %-20s %s / %s (%.0f%%)\n", p.Category, money(p.Spent), money(p.Limit), p.Percent)
		}
	}

	if len(s.Breakdown) > 0 {
		fmt.Printf("\n=== Spending by category ===\n")
		for _, c := range s.Breakdown {
			fmt.Printf("  %-20s %s\n", c.Category, money(c.Amount))
		}
	}
	fmt.Println()
}

func runCurrency(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("currency", flag.ExitOnError)
	set := fs.String("set", "", "New primary currency code")
	fs.Parse(args)

	if *set != "" {
		if err := a.Store.SetPrimaryCurrency(ctx, *set); err != nil {
			log.Fatal().Err(err).Msg("Failed to change currency")
		}
	}

	primary := a.Store.PrimaryCurrency()
	fmt.Printf("Primary currency: %s\n", primary)
	fmt.Println("Supported:")
	for _, info := range currency.Supported() {
		marker := " "
		if info.Code == primary {
			marker = "*"
		}
		fmt.Printf(" %s %s  %s\n", marker, info.Code, info.Name)
	}
}

func runBudget(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("budget", flag.ExitOnError)
	category := fs.String("category", "", "Category to budget")
	limit := fs.Float64("limit", 0, "Monthly limit in the primary currency; 0 removes the budget")
	fs.Parse(args)

	settings := a.Store.Settings()
	if *category != "" {
		c := domain.ParseCategory(*category)
		if !a.Store.HasCategory(c) {
			log.Fatal().Str("category", *category).Msg("Error: unknown expense category")
		}
		budgets := settings.Budgets.Clone()
		budgets[c] = *limit
		if err := a.Store.SaveBudgets(ctx, budgets); err != nil {
			log.Fatal().Err(err).Msg("Failed to save budgets")
		}
		settings = a.Store.Settings()
	}

	if len(settings.Budgets) == 0 {
		fmt.Println("No budgets set.")
		return
	}
	for _, c := range settings.Categories {
		if v, ok := settings.Budgets.Limit(c); ok {
			fmt.Printf("  %-20s %s\n", c, currency.Format(v, settings.PrimaryCurrency))
		}
	}
}

func runCategories(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	set := fs.String("set", "", "Comma separated category list replacing the current one")
	rule := fs.String("rule", "", "Comma separated Category=Bucket pairs (Needs, Wants, Savings)")
	fs.Parse(args)

	settings := a.Store.Settings()
	if *set != "" || *rule != "" {
		names := make([]string, 0, len(settings.Categories))
		for _, c := range settings.Categories {
			names = append(names, c.Name())
		}
		if *set != "" {
			names = strings.Split(*set, ",")
		}

		rules := settings.RuleMap.Clone()
		for _, pair := range strings.Split(*rule, ",") {
			if strings.TrimSpace(pair) == "" {
				continue
			}
			name, raw, ok := strings.Cut(pair, "=")
			if !ok {
				log.Fatal().Str("rule", pair).Msg("Error: -rule entries must be Category=Bucket")
			}
			b, err := domain.ParseBucket(raw)
			if err != nil {
				log.Fatal().Err(err).Msg("Invalid bucket")
			}
			rules[domain.ParseCategory(name)] = b
		}

		moved, err := a.Store.SaveCategories(ctx, names, rules)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to save categories")
		}
		if moved > 0 {
			fmt.Printf("Moved %d transactions to %s.\n", moved, domain.OthersName)
		}
		settings = a.Store.Settings()
	}

	for _, c := range settings.Categories {
		bucket := "-"
		if b, ok := settings.RuleMap[c]; ok {
			bucket = string(b)
		}
		fmt.Printf("  %-20s %s\n", c, bucket)
	}
}

func runScan(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	file := fs.String("file", "", "Receipt image: local path or gs://bucket/object")
	merchant := fs.String("merchant", "", "Merchant override for every item")
	fs.Parse(args)

	if *file == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	rec, err := a.Sources.Open(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open receipt")
	}

	session := &scanSession{
		workflow:   a.Receipts,
		categories: a.Store.Categories,
		in:         bufio.NewScanner(os.Stdin),
		out:        os.Stdout,
	}
	if err := session.run(ctx, rec, *merchant); err != nil {
		log.Fatal().Err(err).Msg("Receipt scan failed")
	}
	printNotices(a.Notices.All())
}

func runAsk(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	fs.Parse(args)

	question := strings.Join(fs.Args(), " ")
	reply, err := a.Insights.Ask(ctx, question)
	if err != nil {
		log.Fatal().Err(err).Msg("Usage: cli ask <question>")
	}
	fmt.Println(reply.Text)
}

func runFeedback(ctx context.Context, a *app.App, log zerolog.Logger, args []string) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	fs.Parse(args)

	reply := a.Insights.Feedback(ctx)
	fmt.Printf("=== Feedback for %s ===\n\n%s\n", reply.Period, reply.Text)
}

var printNotifier = notify.NotifierFunc(func(kind notify.Kind, message string) {
	fmt.Printf("[%s] %s\n", kind, message)
})

func printNotices(notices []notify.Notice) {
	for _, n := range notices {
		printNotifier.Notify(n.Kind, n.Message)
	}
}

// parseChoice reads a 1-based menu index.
func parseChoice(s string, n int) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
