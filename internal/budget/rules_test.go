package budget

import (
	"testing"

	"github.com/dvloznov/aeva/internal/domain"
)

func TestCheckBudgetAlert(t *testing.T) {
	budgets := domain.Budgets{groceries: 100}
	prior := []domain.Transaction{
		tx("a", groceries, 40, "2024-06-01"),
		tx("b", groceries, 30, "2024-06-10"),
		tx("outside", groceries, 500, "2024-05-01"),
		tx("other", clothing, 500, "2024-06-01"),
	}

	tests := []struct {
		name   string
		amount float64
		want   Level
	}{
		{"below warning", 5, LevelNone},
		{"exactly 80 percent", 10, LevelWarning},
		{"warning", 15, LevelWarning},
		{"exactly at budget", 30, LevelExceeded},
		{"exceeded", 35, LevelExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := tx("new", groceries, tt.amount, "2024-06-12")
			got := CheckBudgetAlert(next, prior, budgets)
			if got.Level != tt.want {
				t.Errorf("Level = %q, want %q (spent %v)", got.Level, tt.want, got.Spent)
			}
			if got.Level != LevelNone && got.Spent != 70+tt.amount {
				t.Errorf("Spent = %v, want %v", got.Spent, 70+tt.amount)
			}
		})
	}
}

func TestCheckBudgetAlertNeverFires(t *testing.T) {
	prior := []domain.Transaction{tx("a", groceries, 1000, "2024-06-01")}

	income := tx("salary", domain.Income, 5000, "2024-06-02")
	if got := CheckBudgetAlert(income, prior, domain.Budgets{domain.Income: 1}); got.Triggered() {
		t.Errorf("income triggered %+v", got)
	}

	next := tx("new", groceries, 10, "2024-06-02")
	for name, budgets := range map[string]domain.Budgets{
		"no budget":       {},
		"zero budget":     {groceries: 0},
		"negative budget": {groceries: -5},
	} {
		if got := CheckBudgetAlert(next, prior, budgets); got.Triggered() {
			t.Errorf("%s: triggered %+v", name, got)
		}
	}
}

func TestCheckBudgetAlertSkipsPreEditVersion(t *testing.T) {
	prior := []domain.Transaction{
		tx("edited", groceries, 90, "2024-06-01"),
	}
	next := tx("edited", groceries, 20, "2024-06-01")
	got := CheckBudgetAlert(next, prior, domain.Budgets{groceries: 100})
	if got.Triggered() {
		t.Errorf("pre-edit amount counted twice: %+v", got)
	}
}
