package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/aeva/internal/domain"
)

func itemKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SuggestCategory returns the category last chosen for an item with this
// name, if that category still exists.
func (s *Store) SuggestCategory(itemName string) (domain.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[itemKey(itemName)]
	if !ok || !containsCategory(s.categories, c) {
		return domain.Category{}, false
	}
	return c, true
}

// RememberItemCategory records the category chosen for an item name.
func (s *Store) RememberItemCategory(ctx context.Context, itemName string, c domain.Category) error {
	key := itemKey(itemName)
	if key == "" || c.IsIncome() || c.IsZero() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.items[key]; ok && prev == c {
		return nil
	}

	next := make(map[string]domain.Category, len(s.items)+1)
	for k, v := range s.items {
		next[k] = v
	}
	next[key] = c

	if err := s.persist(ctx, map[string]any{KeyItemCategories: next}); err != nil {
		return fmt.Errorf("store.RememberItemCategory: %w", err)
	}
	s.items = next
	return nil
}
