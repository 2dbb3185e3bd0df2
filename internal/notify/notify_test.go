package notify

import (
	"strings"
	"testing"

	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/domain"
)

func TestFeedBounded(t *testing.T) {
	f := NewFeed(2)
	f.Notify(KindSuccess, "one")
	f.Notify(KindSuccess, "two")
	f.Notify(KindError, "three")

	got := f.All()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message != "two" || got[1].Message != "three" {
		t.Errorf("All() = %+v", got)
	}
	if got[1].ID != 3 {
		t.Errorf("ID = %d, want 3", got[1].ID)
	}
}

func TestFeedSince(t *testing.T) {
	f := NewFeed(0)
	f.Notify(KindSuccess, "a")
	f.Notify(KindWarning, "b")

	got := f.Since(1)
	if len(got) != 1 || got[0].Message != "b" {
		t.Errorf("Since(1) = %+v", got)
	}
	if got := f.Since(2); got == nil || len(got) != 0 {
		t.Errorf("Since(2) = %#v, want empty slice", got)
	}

	f.Clear()
	if len(f.All()) != 0 {
		t.Error("Clear() kept notices")
	}
}

func TestBudgetAlert(t *testing.T) {
	var kinds []Kind
	var messages []string
	n := NotifierFunc(func(k Kind, m string) {
		kinds = append(kinds, k)
		messages = append(messages, m)
	})
	groceries := domain.Expense("Groceries")

	BudgetAlert(n, budget.Alert{}, "USD")
	BudgetAlert(n, budget.Alert{Level: budget.LevelWarning, Category: groceries, Spent: 85, Limit: 100}, "USD")
	BudgetAlert(n, budget.Alert{Level: budget.LevelExceeded, Category: groceries, Spent: 105, Limit: 100}, "EUR")

	if len(kinds) != 2 {
		t.Fatalf("notices = %v, want 2", messages)
	}
	if kinds[0] != KindWarning || !strings.Contains(messages[0], "85%") || !strings.Contains(messages[0], "$85.00") {
		t.Errorf("warning = %s %q", kinds[0], messages[0])
	}
	if kinds[1] != KindError || !strings.Contains(messages[1], "€105.00 of €100.00") {
		t.Errorf("exceeded = %s %q", kinds[1], messages[1])
	}
}
