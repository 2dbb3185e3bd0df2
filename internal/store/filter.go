package store

import (
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/aeva/internal/domain"
)

// Filter narrows the transaction list. Zero fields match everything.
type Filter struct {
	// Search matches name, merchant or any tag, case-insensitively.
	Search    string
	Category  string
	StartDate civil.Date
	EndDate   civil.Date
}

// Match reports whether tx passes every set criterion.
func (f Filter) Match(tx domain.Transaction) bool {
	if f.Category != "" && tx.Category != domain.ParseCategory(f.Category) {
		return false
	}
	if f.StartDate.IsValid() && tx.Date.Before(f.StartDate) {
		return false
	}
	if f.EndDate.IsValid() && tx.Date.After(f.EndDate) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(tx.Name), term) || strings.Contains(strings.ToLower(tx.Merchant), term) {
		return true
	}
	for _, tag := range tx.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// Filter returns matching transactions, newest first.
func (s *Store) Filter(f Filter) []domain.Transaction {
	all := s.Transactions()
	out := all[:0]
	for _, tx := range all {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}
