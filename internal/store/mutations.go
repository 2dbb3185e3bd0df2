package store

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
)

// AddTransaction validates in, assigns an id and converted amount, and
// prepends the new transaction. The returned alert is the budget check for
// the new transaction; it never affects whether the write succeeds.
func (s *Store) AddTransaction(ctx context.Context, in domain.TransactionInput) (domain.Transaction, budget.Alert, error) {
	in, err := s.prepare(in)
	if err != nil {
		return domain.Transaction{}, budget.Alert{}, fmt.Errorf("store.AddTransaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := domain.Transaction{
		ID:               s.newID(),
		Name:             in.Name,
		OriginalAmount:   in.OriginalAmount,
		OriginalCurrency: in.OriginalCurrency,
		Date:             in.Date,
		Merchant:         in.Merchant,
		Category:         s.heal(in.Category),
		Tags:             in.Tags,
	}
	tx.Amount = currency.Convert(tx.OriginalAmount, tx.OriginalCurrency, s.currency)

	alert := budget.CheckBudgetAlert(tx, s.transactions, s.budgets)

	next := make([]domain.Transaction, 0, len(s.transactions)+1)
	next = append(next, tx)
	next = append(next, s.transactions...)

	if err := s.persist(ctx, map[string]any{KeyTransactions: next}); err != nil {
		return domain.Transaction{}, budget.Alert{}, fmt.Errorf("store.AddTransaction: %w", err)
	}
	s.transactions = next

	s.logAdded(tx, alert)
	return tx.Clone(), alert, nil
}

// UpdateTransaction replaces the transaction with updated.ID, recomputing its
// amount. It returns domain.ErrNotFound if the id no longer exists.
func (s *Store) UpdateTransaction(ctx context.Context, updated domain.Transaction) (domain.Transaction, budget.Alert, error) {
	in, err := s.prepare(updated.Input())
	if err != nil {
		return domain.Transaction{}, budget.Alert{}, fmt.Errorf("store.UpdateTransaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(updated.ID)
	if i < 0 {
		return domain.Transaction{}, budget.Alert{}, fmt.Errorf("store.UpdateTransaction: transaction %s: %w", updated.ID, domain.ErrNotFound)
	}

	tx := domain.Transaction{
		ID:               updated.ID,
		Name:             in.Name,
		OriginalAmount:   in.OriginalAmount,
		OriginalCurrency: in.OriginalCurrency,
		Date:             in.Date,
		Merchant:         in.Merchant,
		Category:         s.heal(in.Category),
		Tags:             in.Tags,
	}
	tx.Amount = currency.Convert(tx.OriginalAmount, tx.OriginalCurrency, s.currency)

	alert := budget.CheckBudgetAlert(tx, s.transactions, s.budgets)

	next := cloneTransactions(s.transactions)
	next[i] = tx

	if err := s.persist(ctx, map[string]any{KeyTransactions: next}); err != nil {
		return domain.Transaction{}, budget.Alert{}, fmt.Errorf("store.UpdateTransaction: %w", err)
	}
	s.transactions = next

	s.log.Info().Str("transaction_id", tx.ID).Str("category", tx.Category.Name()).Msg("Transaction updated")
	return tx.Clone(), alert, nil
}

// DeleteTransaction removes the transaction with id. Deleting an absent id is
// not an error and writes nothing.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}

	next := make([]domain.Transaction, 0, len(s.transactions)-1)
	next = append(next, s.transactions[:i]...)
	next = append(next, s.transactions[i+1:]...)

	if err := s.persist(ctx, map[string]any{KeyTransactions: next}); err != nil {
		return fmt.Errorf("store.DeleteTransaction: %w", err)
	}
	s.transactions = next

	s.log.Info().Str("transaction_id", id).Msg("Transaction deleted")
	return nil
}

// SetPrimaryCurrency switches the primary currency and recomputes every
// amount from its original value. Readers see either the old or the new
// state, never a mix.
func (s *Store) SetPrimaryCurrency(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currency.IsSupported(code) {
		return fmt.Errorf("store.SetPrimaryCurrency: %w: unsupported currency %q", domain.ErrValidation, code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneTransactions(s.transactions)
	for i := range next {
		next[i].Amount = currency.Convert(next[i].OriginalAmount, next[i].OriginalCurrency, code)
	}

	err := s.persist(ctx, map[string]any{
		KeyTransactions:    next,
		KeyPrimaryCurrency: code,
	})
	if err != nil {
		return fmt.Errorf("store.SetPrimaryCurrency: %w", err)
	}

	prev := s.currency
	s.transactions = next
	s.currency = code

	s.log.Info().Str("from", prev).Str("to", code).Int("transactions", len(next)).Msg("Primary currency changed")
	return nil
}

// SaveCategories replaces the category list and rule map. Others is always
// kept as the last category. Transactions in categories that disappear are
// moved to Others in the same write, and their budgets and remembered items
// are dropped. It returns how many transactions were moved.
func (s *Store) SaveCategories(ctx context.Context, names []string, rules domain.RuleMap) (int, error) {
	categories, err := normalizeCategories(names)
	if err != nil {
		return 0, fmt.Errorf("store.SaveCategories: %w", err)
	}

	nextRules := make(domain.RuleMap, len(rules))
	for c, b := range rules {
		if containsCategory(categories, c) {
			nextRules[c] = b
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneTransactions(s.transactions)
	moved := 0
	for i := range next {
		if next[i].IsIncome() || containsCategory(categories, next[i].Category) {
			continue
		}
		next[i].Category = domain.Others
		moved++
	}

	nextItems := make(map[string]domain.Category, len(s.items))
	for item, c := range s.items {
		if containsCategory(categories, c) {
			nextItems[item] = c
		}
	}

	nextBudgets := make(domain.Budgets, len(s.budgets))
	for c, v := range s.budgets {
		if containsCategory(categories, c) {
			nextBudgets[c] = v
		}
	}

	err = s.persist(ctx, map[string]any{
		KeyCategories:     categories,
		KeyRuleMap:        nextRules,
		KeyTransactions:   next,
		KeyItemCategories: nextItems,
		KeyBudgets:        nextBudgets,
	})
	if err != nil {
		return 0, fmt.Errorf("store.SaveCategories: %w", err)
	}

	s.categories = categories
	s.rules = nextRules
	s.transactions = next
	s.items = nextItems
	s.budgets = nextBudgets

	s.log.Info().Int("categories", len(categories)).Int("recategorized", moved).Msg("Categories saved")
	return moved, nil
}

// SaveBudgets replaces the budget map. Entries that are not positive, any
// entry for Income, and entries for categories that are not configured are
// dropped.
func (s *Store) SaveBudgets(ctx context.Context, budgets domain.Budgets) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(domain.Budgets, len(budgets))
	for c, v := range budgets {
		if c.IsIncome() || !containsCategory(s.categories, c) || math.IsInf(v, 0) || !(v > 0) {
			continue
		}
		next[c] = v
	}

	if err := s.persist(ctx, map[string]any{KeyBudgets: next}); err != nil {
		return fmt.Errorf("store.SaveBudgets: %w", err)
	}
	s.budgets = next

	s.log.Info().Int("budgets", len(next)).Msg("Budgets saved")
	return nil
}

// prepare normalizes and validates input at the intent boundary.
func (s *Store) prepare(in domain.TransactionInput) (domain.TransactionInput, error) {
	in = in.Normalize()
	if in.OriginalCurrency == "" {
		in.OriginalCurrency = s.PrimaryCurrency()
	}
	if err := in.Validate(); err != nil {
		return in, err
	}
	if !currency.IsSupported(in.OriginalCurrency) {
		return in, fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, in.OriginalCurrency)
	}
	return in, nil
}

// heal maps categories that are not configured to Others. Callers hold s.mu.
func (s *Store) heal(c domain.Category) domain.Category {
	if c.IsIncome() || containsCategory(s.categories, c) {
		return c
	}
	s.log.Warn().Str("category", c.Name()).Msg("Unknown category, using Others")
	return domain.Others
}

func (s *Store) logAdded(tx domain.Transaction, alert budget.Alert) {
	s.log.Info().
		Str("transaction_id", tx.ID).
		Str("category", tx.Category.Name()).
		Float64("amount", tx.Amount).
		Str("currency", s.currency).
		Msg("Transaction added")

	if alert.Triggered() {
		s.log.Warn().
			Str("category", alert.Category.Name()).
			Str("level", string(alert.Level)).
			Float64("spent", alert.Spent).
			Float64("limit", alert.Limit).
			Msg("Budget alert")
	}
}

// normalizeCategories trims, de-duplicates and validates names, and appends Others.
func normalizeCategories(names []string) ([]domain.Category, error) {
	out := make([]domain.Category, 0, len(names)+1)
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || strings.EqualFold(name, domain.OthersName) {
			continue
		}
		if err := domain.ValidateCategoryName(name); err != nil {
			return nil, err
		}
		if seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, domain.Expense(name))
	}
	if len(out) > domain.MaxCustomCategories {
		return nil, fmt.Errorf("%w: at most %d categories allowed, got %d", domain.ErrValidation, domain.MaxCustomCategories, len(out))
	}
	return append(out, domain.Others), nil
}
