// Package aigateway is the boundary to the generative model that reads
// receipts and writes spending advice.
package aigateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/period"
)

var (
	// ErrExtractionFailed covers an unreachable service, a malformed response
	// and an image the model could not read.
	ErrExtractionFailed = errors.New("receipt extraction failed")
	// ErrAdvisoryFailed covers any failure of the feedback and question operations.
	ErrAdvisoryFailed = errors.New("advisory request failed")
)

// Image is an encoded receipt image.
type Image struct {
	Data     []byte
	MIMEType string
}

// FeedbackInput is the spending snapshot sent for advice.
type FeedbackInput struct {
	Transactions    []domain.Transaction
	PrimaryCurrency string
	Rules           domain.RuleMap
	Period          period.Range
}

// Gateway provides the four AI operations used by the core.
type Gateway interface {
	// ExtractReceipt returns structured receipt data. A response with zero
	// items and no error is valid.
	ExtractReceipt(ctx context.Context, img Image, primaryCurrency string) (domain.ReceiptData, error)
	// DetectMerchant is best effort and returns "" on any failure.
	DetectMerchant(ctx context.Context, img Image) string
	GetFeedback(ctx context.Context, in FeedbackInput) (string, error)
	AnswerQuery(ctx context.Context, question string, txs []domain.Transaction, primaryCurrency string) (string, error)
}

// MockGateway is a Gateway whose behaviour is set per test.
type MockGateway struct {
	ExtractReceiptFunc func(ctx context.Context, img Image, primaryCurrency string) (domain.ReceiptData, error)
	DetectMerchantFunc func(ctx context.Context, img Image) string
	GetFeedbackFunc    func(ctx context.Context, in FeedbackInput) (string, error)
	AnswerQueryFunc    func(ctx context.Context, question string, txs []domain.Transaction, primaryCurrency string) (string, error)
}

func (m *MockGateway) ExtractReceipt(ctx context.Context, img Image, primaryCurrency string) (domain.ReceiptData, error) {
	if m.ExtractReceiptFunc != nil {
		return m.ExtractReceiptFunc(ctx, img, primaryCurrency)
	}
	return domain.ReceiptData{}, nil
}

func (m *MockGateway) DetectMerchant(ctx context.Context, img Image) string {
	if m.DetectMerchantFunc != nil {
		return m.DetectMerchantFunc(ctx, img)
	}
	return ""
}

func (m *MockGateway) GetFeedback(ctx context.Context, in FeedbackInput) (string, error) {
	if m.GetFeedbackFunc != nil {
		return m.GetFeedbackFunc(ctx, in)
	}
	return "", nil
}

func (m *MockGateway) AnswerQuery(ctx context.Context, question string, txs []domain.Transaction, primaryCurrency string) (string, error) {
	if m.AnswerQueryFunc != nil {
		return m.AnswerQueryFunc(ctx, question, txs, primaryCurrency)
	}
	return "", nil
}

// Disabled is the Gateway used when no model is configured. Extraction and
// advice fail with the gateway's sentinel errors; merchant detection finds nothing.
type Disabled struct{}

func (Disabled) ExtractReceipt(ctx context.Context, img Image, primaryCurrency string) (domain.ReceiptData, error) {
	return domain.ReceiptData{}, fmt.Errorf("%w: no AI model configured", ErrExtractionFailed)
}

func (Disabled) DetectMerchant(ctx context.Context, img Image) string { return "" }

func (Disabled) GetFeedback(ctx context.Context, in FeedbackInput) (string, error) {
	return "", fmt.Errorf("%w: no AI model configured", ErrAdvisoryFailed)
}

func (Disabled) AnswerQuery(ctx context.Context, question string, txs []domain.Transaction, primaryCurrency string) (string, error) {
	return "", fmt.Errorf("%w: no AI model configured", ErrAdvisoryFailed)
}
