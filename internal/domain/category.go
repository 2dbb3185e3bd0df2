package domain

import (
	"fmt"
	"strings"
)

const (
	// IncomeName is the reserved label of the income category.
	IncomeName = "Income"
	// OthersName is the label of the permanent fallback expense category.
	OthersName = "Others"

	// MaxCustomCategories caps the user-configurable categories, not counting Others.
	MaxCustomCategories = 15
)

// Category is either the closed Income variant or an open expense variant
// carrying a user-chosen label. The zero value is not a valid category.
type Category struct {
	name   string
	income bool
}

var (
	// Income marks inflows. It is never part of the configurable category set.
	Income = Category{name: IncomeName, income: true}
	// Others is the fallback expense category and cannot be removed.
	Others = Category{name: OthersName}
)

// Expense returns the expense variant for name. Callers that accept names from
// users should run ValidateCategoryName first.
func Expense(name string) Category {
	return Category{name: strings.TrimSpace(name)}
}

// ParseCategory maps a stored label back to its variant.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	if s == IncomeName {
		return Income
	}
	return Category{name: s}
}

func (c Category) IsIncome() bool { return c.income }

func (c Category) IsOthers() bool { return !c.income && c.name == OthersName }

func (c Category) IsZero() bool { return c.name == "" }

func (c Category) Name() string { return c.name }

func (c Category) String() string { return c.name }

// MarshalText encodes the category as its plain label.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.name), nil
}

// UnmarshalText decodes a plain label.
func (c *Category) UnmarshalText(b []byte) error {
	*c = ParseCategory(string(b))
	return nil
}

// ValidateCategoryName rejects labels a user may not configure.
func ValidateCategoryName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return fmt.Errorf("%w: category name is empty", ErrValidation)
	case strings.EqualFold(trimmed, IncomeName):
		return fmt.Errorf("%w: %q is reserved", ErrValidation, IncomeName)
	}
	return nil
}

// Bucket is one of the three 50/30/20 allocation buckets.
type Bucket string

const (
	Needs   Bucket = "Needs"
	Wants   Bucket = "Wants"
	Savings Bucket = "Savings"
)

// Buckets lists the buckets in display order.
var Buckets = []Bucket{Needs, Wants, Savings}

// BucketTargets holds the share of income each bucket is meant to take.
var BucketTargets = map[Bucket]float64{
	Needs:   0.5,
	Wants:   0.3,
	Savings: 0.2,
}

// ParseBucket accepts a bucket label case-insensitively.
func ParseBucket(s string) (Bucket, error) {
	for _, b := range Buckets {
		if strings.EqualFold(strings.TrimSpace(s), string(b)) {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: unknown bucket %q", ErrValidation, s)
}

// RuleMap assigns expense categories to 50/30/20 buckets.
type RuleMap map[Category]Bucket

// Clone returns an independent copy.
func (m RuleMap) Clone() RuleMap {
	out := make(RuleMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Budgets maps expense categories to a monthly spending ceiling.
type Budgets map[Category]float64

// Clone returns an independent copy.
func (b Budgets) Clone() Budgets {
	out := make(Budgets, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Limit returns the tracked ceiling for c, or false when c has no positive budget.
func (b Budgets) Limit(c Category) (float64, bool) {
	v, ok := b[c]
	if !ok || !(v > 0) {
		return 0, false
	}
	return v, true
}

// DefaultCategories is the starter set used when nothing has been stored yet.
func DefaultCategories() []Category {
	return []Category{
		Expense("Groceries"),
		Expense("Snacks"),
		Expense("Junk food/Recreation"),
		Expense("Restaurant meal"),
		Expense("Snus/Tobacco"),
		Expense("Personal Care"),
		Expense("Necessity"),
		Expense("Booze"),
		Expense("Clothing"),
		Expense("Transportation"),
		Expense("Mobile Bill"),
		Others,
	}
}

// DefaultRuleMap maps the starter categories to buckets.
func DefaultRuleMap() RuleMap {
	return RuleMap{
		Expense("Groceries"):            Needs,
		Expense("Snacks"):               Wants,
		Expense("Junk food/Recreation"): Wants,
		Expense("Restaurant meal"):      Wants,
		Expense("Snus/Tobacco"):         Wants,
		Expense("Personal Care"):        Needs,
		Expense("Necessity"):            Needs,
		Expense("Booze"):                Wants,
		Expense("Clothing"):             Wants,
		Expense("Transportation"):       Needs,
		Expense("Mobile Bill"):          Needs,
		Others:                          Wants,
	}
}
