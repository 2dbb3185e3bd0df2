// Package store owns the canonical transaction list and the user's category,
// rule, budget and currency settings, and mirrors every change to durable
// storage.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/period"
)

// Storage keys, one per concern.
const (
	KeyTransactions    = "transactions"
	KeyCategories      = "expenseCategories"
	KeyRuleMap         = "categoryRuleMap"
	KeyPrimaryCurrency = "primaryCurrency"
	KeyBudgets         = "budgets"
	KeyItemCategories  = "itemCategoryMap"
)

// Keys lists every storage key the store reads and writes.
var Keys = []string{
	KeyTransactions,
	KeyCategories,
	KeyRuleMap,
	KeyPrimaryCurrency,
	KeyBudgets,
	KeyItemCategories,
}

// Storage persists encoded state entries by key.
// Save must apply all entries or report an error.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, entries map[string][]byte) error
}

// Settings is a snapshot of the user's configuration.
type Settings struct {
	PrimaryCurrency string            `json:"primaryCurrency"`
	Categories      []domain.Category `json:"categories"`
	RuleMap         domain.RuleMap    `json:"categoryRuleMap"`
	Budgets         domain.Budgets    `json:"budgets"`
}

// Store is safe for concurrent use. Mutations are serialized and each one is
// persisted before it becomes visible to readers.
type Store struct {
	mu      sync.RWMutex
	storage Storage
	log     zerolog.Logger
	now     func() time.Time
	newID   func() string

	transactions []domain.Transaction
	categories   []domain.Category
	rules        domain.RuleMap
	budgets      domain.Budgets
	currency     string
	items        map[string]domain.Category
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for defaults and the current period.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides transaction id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithDefaultCurrency sets the primary currency used when none is stored.
func WithDefaultCurrency(code string) Option {
	return func(s *Store) {
		if currency.IsSupported(code) {
			s.currency = strings.ToUpper(code)
		}
	}
}

// Open restores state from storage, falling back to defaults for absent keys.
func Open(ctx context.Context, storage Storage, log zerolog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		storage:  storage,
		log:      log.With().Str("component", "store").Logger(),
		now:      time.Now,
		newID:    uuid.NewString,
		currency: currency.Default,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	return s, nil
}

// Today returns the current calendar date according to the store's clock.
func (s *Store) Today() civil.Date {
	return civil.DateOf(s.now())
}

// Transactions returns every transaction, newest date first. Transactions on
// the same date keep most-recently-added first.
func (s *Store) Transactions() []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.transactions)
}

// Get returns the transaction with id.
func (s *Store) Get(id string) (domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.transactions[i].Clone(), nil
	}
	return domain.Transaction{}, fmt.Errorf("store.Get: transaction %s: %w", id, domain.ErrNotFound)
}

// PrimaryCurrency returns the currency all amounts are expressed in.
func (s *Store) PrimaryCurrency() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currency
}

// Categories returns the configured expense categories; Others is always last.
func (s *Store) Categories() []domain.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Category(nil), s.categories...)
}

// HasCategory reports whether c is configured. Income always counts.
func (s *Store) HasCategory(c domain.Category) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.IsIncome() || containsCategory(s.categories, c)
}

// Settings returns a snapshot of the configuration.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Settings{
		PrimaryCurrency: s.currency,
		Categories:      append([]domain.Category(nil), s.categories...),
		RuleMap:         s.rules.Clone(),
		Budgets:         s.budgets.Clone(),
	}
}

// Summary computes the dashboard figures for the financial month r.
func (s *Store) Summary(r period.Range) budget.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return budget.Summarize(s.transactions, s.currency, s.rules, s.budgets, r)
}

// CurrentSummary computes the dashboard figures for the current financial month.
func (s *Store) CurrentSummary() budget.Summary {
	return s.Summary(period.FinancialMonthRange(s.Today()))
}

// Merchants lists distinct non-income merchants, sorted case-insensitively.
func (s *Store) Merchants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, tx := range s.transactions {
		m := strings.TrimSpace(tx.Merchant)
		if m == "" || tx.IsIncome() || seen[strings.ToLower(m)] {
			continue
		}
		seen[strings.ToLower(m)] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func (s *Store) indexOf(id string) int {
	for i, tx := range s.transactions {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

// persist encodes and saves values in one storage call.
func (s *Store) persist(ctx context.Context, values map[string]any) error {
	entries := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		entries[key] = data
	}
	if err := s.storage.Save(ctx, entries); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func sortedCopy(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func containsCategory(list []domain.Category, c domain.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func cloneTransactions(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	for i, tx := range txs {
		out[i] = tx.Clone()
	}
	return out
}
