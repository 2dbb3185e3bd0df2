package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"cloud.google.com/go/civil"
)

var (
	// ErrValidation marks malformed user input rejected before it reaches the store.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a referenced record no longer exists.
	ErrNotFound = errors.New("not found")
)

// IncomeMerchant is the merchant recorded on income entries by convention.
const IncomeMerchant = "Income"

// Transaction is one inflow or outflow owned by the transaction store.
// Amount is OriginalAmount expressed in the current primary currency.
type Transaction struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	OriginalAmount   float64    `json:"originalAmount"`
	OriginalCurrency string     `json:"originalCurrency"`
	Amount           float64    `json:"amount"`
	Date             civil.Date `json:"date"`
	Merchant         string     `json:"merchant"`
	Category         Category   `json:"category"`
	Tags             []string   `json:"tags"`
}

// IsIncome reports whether t is an inflow.
func (t Transaction) IsIncome() bool {
	return t.Category.IsIncome()
}

// Clone returns a copy that shares no slices with t.
func (t Transaction) Clone() Transaction {
	out := t
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	return out
}

// TransactionInput is the user- or receipt-supplied part of a transaction.
// The store assigns ID and Amount.
type TransactionInput struct {
	Name             string     `json:"name"`
	OriginalAmount   float64    `json:"originalAmount"`
	OriginalCurrency string     `json:"originalCurrency"`
	Date             civil.Date `json:"date"`
	Merchant         string     `json:"merchant"`
	Category         Category   `json:"category"`
	Tags             []string   `json:"tags"`
}

// Normalize trims free-text fields and applies the income merchant convention.
func (in TransactionInput) Normalize() TransactionInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Merchant = strings.TrimSpace(in.Merchant)
	in.OriginalCurrency = strings.ToUpper(strings.TrimSpace(in.OriginalCurrency))
	in.Tags = NormalizeTags(in.Tags)
	if in.Category.IsIncome() {
		in.Merchant = IncomeMerchant
	}
	return in
}

// Validate checks the fields every stored transaction must satisfy.
func (in TransactionInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := ValidateAmount(in.OriginalAmount); err != nil {
		return err
	}
	if strings.TrimSpace(in.OriginalCurrency) == "" {
		return fmt.Errorf("%w: currency is required", ErrValidation)
	}
	if !in.Date.IsValid() {
		return fmt.Errorf("%w: invalid date %q", ErrValidation, in.Date.String())
	}
	if in.Category.IsZero() {
		return fmt.Errorf("%w: category is required", ErrValidation)
	}
	return nil
}

// ValidateAmount rejects zero, negative and non-finite amounts.
func ValidateAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: amount is not a number", ErrValidation)
	}
	if v <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrValidation, v)
	}
	return nil
}

// Input returns the editable fields of t.
func (t Transaction) Input() TransactionInput {
	c := t.Clone()
	return TransactionInput{
		Name:             c.Name,
		OriginalAmount:   c.OriginalAmount,
		OriginalCurrency: c.OriginalCurrency,
		Date:             c.Date,
		Merchant:         c.Merchant,
		Category:         c.Category,
		Tags:             c.Tags,
	}
}

// NormalizeTags trims every tag and drops empty ones, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if t := strings.TrimSpace(tag); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseTags splits a comma separated tag list.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return NormalizeTags(strings.Split(s, ","))
}

// ReceiptItem is one line extracted from a receipt.
type ReceiptItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// ReceiptData is the structured result of receipt extraction.
type ReceiptData struct {
	Merchant string        `json:"merchant"`
	Date     civil.Date    `json:"date"`
	Currency string        `json:"currency"`
	Items    []ReceiptItem `json:"items"`
	Total    float64       `json:"total"`
	Tax      float64       `json:"tax,omitempty"`
}
