package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
)

// load restores every key. Absent keys fall back to defaults; entries that
// cannot be decoded are logged and replaced by defaults rather than failing
// startup. Storage errors are fatal to Open.
func (s *Store) load(ctx context.Context) error {
	var storedCurrency string
	if ok, err := s.loadJSON(ctx, KeyPrimaryCurrency, &storedCurrency); err != nil {
		return err
	} else if ok {
		code := strings.ToUpper(strings.TrimSpace(storedCurrency))
		if currency.IsSupported(code) {
			s.currency = code
		} else {
			s.log.Warn().Str("currency", storedCurrency).Msg("Stored currency unsupported, using default")
		}
	}

	var names []string
	if ok, err := s.loadJSON(ctx, KeyCategories, &names); err != nil {
		return err
	} else if ok {
		s.categories = restoreCategories(names)
	} else {
		s.categories = domain.DefaultCategories()
	}

	var rawRules map[string]string
	if ok, err := s.loadJSON(ctx, KeyRuleMap, &rawRules); err != nil {
		return err
	} else if ok {
		s.rules = make(domain.RuleMap, len(rawRules))
		for name, raw := range rawRules {
			b, err := domain.ParseBucket(raw)
			if err != nil {
				s.log.Warn().Str("category", name).Str("bucket", raw).Msg("Dropping rule with unknown bucket")
				continue
			}
			s.rules[domain.ParseCategory(name)] = b
		}
	} else {
		s.rules = domain.DefaultRuleMap()
	}

	var rawBudgets map[string]float64
	s.budgets = make(domain.Budgets)
	if _, err := s.loadJSON(ctx, KeyBudgets, &rawBudgets); err != nil {
		return err
	}
	for name, v := range rawBudgets {
		c := domain.ParseCategory(name)
		if c.IsIncome() || !containsCategory(s.categories, c) || math.IsInf(v, 0) || !(v > 0) {
			continue
		}
		s.budgets[c] = v
	}

	var rawItems map[string]string
	s.items = make(map[string]domain.Category)
	if _, err := s.loadJSON(ctx, KeyItemCategories, &rawItems); err != nil {
		return err
	}
	for item, name := range rawItems {
		if c := domain.ParseCategory(name); !c.IsZero() && !c.IsIncome() {
			s.items[itemKey(item)] = c
		}
	}

	var stored []storedTransaction
	ok, err := s.loadJSON(ctx, KeyTransactions, &stored)
	if err != nil {
		return err
	}
	if !ok {
		s.transactions = []domain.Transaction{}
		return nil
	}

	txs, migrated := s.migrateTransactions(stored)
	s.transactions = txs
	if migrated > 0 {
		if err := s.persist(ctx, map[string]any{KeyTransactions: txs}); err != nil {
			return fmt.Errorf("persist migrated transactions: %w", err)
		}
		s.log.Info().Int("migrated", migrated).Msg("Migrated stored transactions")
	}
	return nil
}

// loadJSON decodes key into v. A value that is present but undecodable is
// treated as absent.
func (s *Store) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := s.storage.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("Discarding undecodable stored value")
		return false, nil
	}
	return true, nil
}

func restoreCategories(names []string) []domain.Category {
	out := make([]domain.Category, 0, len(names)+1)
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || strings.EqualFold(name, domain.OthersName) || domain.ValidateCategoryName(name) != nil || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, domain.Expense(name))
	}
	return append(out, domain.Others)
}

// storedTransaction accepts every shape earlier versions wrote: records
// without original amounts, amounts stored as strings, dates with a time part.
type storedTransaction struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	OriginalAmount   *lenientNum `json:"originalAmount"`
	OriginalCurrency string      `json:"originalCurrency"`
	Amount           *lenientNum `json:"amount"`
	Date             string      `json:"date"`
	Merchant         string      `json:"merchant"`
	Category         string      `json:"category"`
	Tags             []string    `json:"tags"`
}

// lenientNum decodes numbers, numeric strings and null. Anything else is zero.
type lenientNum float64

func (n *lenientNum) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = lenientNum(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			*n = lenientNum(f)
			return nil
		}
	}
	*n = 0
	return nil
}

func (n *lenientNum) value() (float64, bool) {
	if n == nil {
		return 0, false
	}
	f := float64(*n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// migrateTransactions converts stored records to the current shape and heals
// dangling categories. It reports how many records changed.
func (s *Store) migrateTransactions(stored []storedTransaction) ([]domain.Transaction, int) {
	out := make([]domain.Transaction, 0, len(stored))
	seenIDs := make(map[string]bool, len(stored))
	migrated := 0

	for _, st := range stored {
		changed := false

		id := strings.TrimSpace(st.ID)
		if id == "" || seenIDs[id] {
			id = s.newID()
			changed = true
		}
		seenIDs[id] = true

		amount, hasAmount := st.Amount.value()
		original, hasOriginal := st.OriginalAmount.value()
		if !hasOriginal {
			original = amount
			changed = true
		}

		code := strings.ToUpper(strings.TrimSpace(st.OriginalCurrency))
		if code == "" {
			code = s.currency
			changed = true
		}

		date, ok := parseStoredDate(st.Date)
		if !ok {
			date = civil.DateOf(s.now())
			changed = true
			s.log.Warn().Str("transaction_id", id).Str("date", st.Date).Msg("Unparseable date, using today")
		} else if date.String() != st.Date {
			changed = true
		}

		category := domain.ParseCategory(st.Category)
		if category.IsZero() || (!category.IsIncome() && !containsCategory(s.categories, category)) {
			category = domain.Others
			changed = true
		}

		merchant := st.Merchant
		if category.IsIncome() && merchant == "" {
			merchant = domain.IncomeMerchant
			changed = true
		}

		tags := domain.NormalizeTags(st.Tags)
		if st.Tags == nil {
			changed = true
		}

		tx := domain.Transaction{
			ID:               id,
			Name:             st.Name,
			OriginalAmount:   original,
			OriginalCurrency: code,
			Date:             date,
			Merchant:         merchant,
			Category:         category,
			Tags:             tags,
		}
		tx.Amount = currency.Convert(tx.OriginalAmount, tx.OriginalCurrency, s.currency)
		if !hasAmount || tx.Amount != amount {
			changed = true
		}

		if changed {
			migrated++
		}
		out = append(out, tx)
	}
	return out, migrated
}

func parseStoredDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil && d.IsValid() {
		return d, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return civil.DateOf(t.UTC()), true
	}
	if len(s) >= 10 {
		if d, err := civil.ParseDate(s[:10]); err == nil && d.IsValid() {
			return d, true
		}
	}
	return civil.Date{}, false
}
