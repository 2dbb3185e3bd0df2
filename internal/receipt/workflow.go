// Package receipt drives one receipt image from selection to categorized
// transactions.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/aigateway"
	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/notify"
)

// State is a workflow step.
type State string

const (
	StateIdle         State = "idle"
	StateFileSelected State = "fileSelected"
	StateSubmitting   State = "submitting"
	StateTaxPending   State = "taxPending"
	StateItemsPending State = "itemsPending"
)

var (
	// ErrInvalidState is returned when an operation does not apply to the current step.
	ErrInvalidState = errors.New("operation not allowed in current receipt state")
	// ErrNoFile is returned when a selection carries no image data.
	ErrNoFile = errors.New("no receipt file selected")
	// ErrSuperseded is returned by Submit when the receipt was cancelled or
	// replaced while extraction was running.
	ErrSuperseded = errors.New("receipt was replaced while it was processed")
)

// TaxItemName names the optional transaction booked for receipt tax.
const TaxItemName = "Tax"

// Ledger is the part of the transaction store the workflow writes through.
type Ledger interface {
	AddTransaction(ctx context.Context, in domain.TransactionInput) (domain.Transaction, budget.Alert, error)
	PrimaryCurrency() string
	SuggestCategory(itemName string) (domain.Category, bool)
	RememberItemCategory(ctx context.Context, itemName string, c domain.Category) error
}

// PendingItem is an extracted receipt line awaiting a category.
type PendingItem struct {
	Name              string          `json:"name"`
	OriginalAmount    float64         `json:"originalAmount"`
	OriginalCurrency  string          `json:"originalCurrency"`
	Amount            float64         `json:"amount"`
	SuggestedCategory domain.Category `json:"suggestedCategory"`
}

// Snapshot is a read-only view of the workflow.
type Snapshot struct {
	State            State                `json:"state"`
	Generation       uint64               `json:"generation"`
	ReceiptID        string               `json:"receiptId,omitempty"`
	FileName         string               `json:"fileName,omitempty"`
	Merchant         string               `json:"merchant"`
	DetectedMerchant string               `json:"detectedMerchant,omitempty"`
	Receipt          *domain.ReceiptData  `json:"receipt,omitempty"`
	Tax              float64              `json:"tax,omitempty"`
	Current          *PendingItem         `json:"current,omitempty"`
	Pending          []PendingItem        `json:"pending"`
	Created          []domain.Transaction `json:"created"`
	Error            string               `json:"error,omitempty"`
}

// Workflow is safe for concurrent use. Only one receipt is in flight; a new
// selection or a cancel starts a new generation and any asynchronous result
// belonging to an older generation is dropped.
type Workflow struct {
	mu      sync.Mutex
	ledger  Ledger
	ai      aigateway.Gateway
	notices notify.Notifier
	log     zerolog.Logger

	state            State
	gen              uint64
	receiptID        string
	fileName         string
	image            aigateway.Image
	merchant         string
	detectedMerchant string
	receipt          *domain.ReceiptData
	pending          []PendingItem
	created          []domain.Transaction
	lastErr          string
	stopDetect       context.CancelFunc
	closed           bool

	// detecting tracks merchant detection goroutines.
	detecting sync.WaitGroup
}

// New creates an idle workflow. A nil notifier discards notices.
func New(ledger Ledger, ai aigateway.Gateway, notices notify.Notifier, log zerolog.Logger) *Workflow {
	if notices == nil {
		notices = notify.Discard
	}
	return &Workflow{
		ledger:  ledger,
		ai:      ai,
		notices: notices,
		log:     log.With().Str("component", "receipt").Logger(),
		state:   StateIdle,
	}
}

// SelectFile starts a new cycle with img and kicks off merchant detection
// in the background. Selecting again before submitting replaces the file.
func (w *Workflow) SelectFile(name string, img aigateway.Image) (Snapshot, error) {
	if len(img.Data) == 0 {
		return w.Snapshot(), fmt.Errorf("receipt.SelectFile: %w", ErrNoFile)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return w.snapshotLocked(), fmt.Errorf("receipt.SelectFile: %w: workflow closed", ErrInvalidState)
	}
	if w.state != StateIdle && w.state != StateFileSelected {
		return w.snapshotLocked(), fmt.Errorf("receipt.SelectFile: %w: %s", ErrInvalidState, w.state)
	}

	w.resetLocked()
	w.state = StateFileSelected
	w.receiptID = uuid.NewString()
	w.fileName = name
	w.image = img

	ctx, cancel := context.WithCancel(context.Background())
	w.stopDetect = cancel
	gen := w.gen
	w.detecting.Add(1)
	go w.detectMerchant(ctx, gen, img)

	w.log.Info().Str("receipt_id", w.receiptID).Str("file", name).Int("bytes", len(img.Data)).Msg("Receipt file selected")
	return w.snapshotLocked(), nil
}

func (w *Workflow) detectMerchant(ctx context.Context, gen uint64, img aigateway.Image) {
	defer w.detecting.Done()

	merchant := strings.TrimSpace(w.ai.DetectMerchant(ctx, img))

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		w.log.Debug().Uint64("generation", gen).Uint64("current", w.gen).Msg("Discarding stale merchant detection")
		return
	}
	if merchant == "" {
		return
	}
	w.detectedMerchant = merchant
	w.log.Debug().Str("merchant", merchant).Msg("Merchant detected")
}

// SetMerchant sets the merchant applied to every item of the current receipt.
// An empty name clears the override.
func (w *Workflow) SetMerchant(name string) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateIdle {
		return w.snapshotLocked(), fmt.Errorf("receipt.SetMerchant: %w: %s", ErrInvalidState, w.state)
	}
	w.merchant = strings.TrimSpace(name)
	return w.snapshotLocked(), nil
}

// Cancel discards the current receipt. Transactions already created from it
// are kept.
func (w *Workflow) Cancel() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateIdle {
		w.log.Info().Str("receipt_id", w.receiptID).Str("state", string(w.state)).Msg("Receipt cancelled")
	}
	w.resetLocked()
	return w.snapshotLocked()
}

// Close discards the current receipt, stops merchant detection and waits for
// it to return. Later selections fail with ErrInvalidState.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.resetLocked()
	w.mu.Unlock()

	w.detecting.Wait()
}

// Submit extracts the selected receipt. On failure the workflow returns to
// the file-selected step with the file kept so the user can retry.
func (w *Workflow) Submit(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	if w.state != StateFileSelected {
		defer w.mu.Unlock()
		return w.snapshotLocked(), fmt.Errorf("receipt.Submit: %w: %s", ErrInvalidState, w.state)
	}
	w.state = StateSubmitting
	w.lastErr = ""
	gen := w.gen
	img := w.image
	receiptID := w.receiptID
	w.mu.Unlock()

	primary := w.ledger.PrimaryCurrency()
	data, err := w.ai.ExtractReceipt(ctx, img, primary)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		w.log.Debug().Str("receipt_id", receiptID).Msg("Discarding stale extraction result")
		return w.snapshotLocked(), fmt.Errorf("receipt.Submit: %w", ErrSuperseded)
	}

	if err != nil {
		w.state = StateFileSelected
		w.lastErr = "Failed to analyze receipt. The AI model might be unavailable or the image could not be processed."
		w.log.Error().Err(err).Str("receipt_id", receiptID).Msg("Receipt extraction failed")
		w.notices.Notify(notify.KindError, w.lastErr)
		return w.snapshotLocked(), fmt.Errorf("receipt.Submit: %w", err)
	}

	if !currency.IsSupported(data.Currency) {
		w.log.Warn().Str("currency", data.Currency).Str("primary", primary).Msg("Unsupported receipt currency, using primary currency")
		data.Currency = primary
	}

	w.receipt = &data
	w.pending = make([]PendingItem, 0, len(data.Items))
	for _, item := range data.Items {
		p := PendingItem{
			Name:             item.Name,
			OriginalAmount:   item.Price,
			OriginalCurrency: data.Currency,
			Amount:           currency.Convert(item.Price, data.Currency, primary),
		}
		if c, ok := w.ledger.SuggestCategory(item.Name); ok {
			p.SuggestedCategory = c
		}
		w.pending = append(w.pending, p)
	}

	w.log.Info().
		Str("receipt_id", receiptID).
		Str("merchant", data.Merchant).
		Int("items", len(data.Items)).
		Float64("tax", data.Tax).
		Msg("Receipt submitted")

	switch {
	case data.Tax > 0:
		w.state = StateTaxPending
	case len(w.pending) > 0:
		w.state = StateItemsPending
	default:
		w.notices.Notify(notify.KindWarning, "No items were found on the receipt.")
		w.finishLocked()
	}
	return w.snapshotLocked(), nil
}

// ResolveTax answers the tax question. When book is true the tax is added as
// its own Others expense.
func (w *Workflow) ResolveTax(ctx context.Context, book bool) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateTaxPending {
		return w.snapshotLocked(), fmt.Errorf("receipt.ResolveTax: %w: %s", ErrInvalidState, w.state)
	}

	if book {
		tax := PendingItem{
			Name:             TaxItemName,
			OriginalAmount:   w.receipt.Tax,
			OriginalCurrency: w.receipt.Currency,
		}
		if err := w.createLocked(ctx, tax, domain.Others); err != nil {
			return w.snapshotLocked(), fmt.Errorf("receipt.ResolveTax: %w", err)
		}
	}

	if len(w.pending) > 0 {
		w.state = StateItemsPending
	} else {
		w.finishLocked()
	}
	return w.snapshotLocked(), nil
}

// AssignCategory books the current item under c and moves to the next one.
func (w *Workflow) AssignCategory(ctx context.Context, c domain.Category) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateItemsPending || len(w.pending) == 0 {
		return w.snapshotLocked(), fmt.Errorf("receipt.AssignCategory: %w: %s", ErrInvalidState, w.state)
	}
	if c.IsZero() || c.IsIncome() {
		return w.snapshotLocked(), fmt.Errorf("receipt.AssignCategory: %w: receipt items must use an expense category", domain.ErrValidation)
	}

	item := w.pending[0]
	if err := w.createLocked(ctx, item, c); err != nil {
		return w.snapshotLocked(), fmt.Errorf("receipt.AssignCategory: %w", err)
	}
	if err := w.ledger.RememberItemCategory(ctx, item.Name, c); err != nil {
		w.log.Warn().Err(err).Str("item", item.Name).Msg("Could not remember item category")
	}
	w.pending = w.pending[1:]

	if len(w.pending) == 0 {
		w.finishLocked()
	}
	return w.snapshotLocked(), nil
}

// SkipRemaining books every remaining item under Others.
func (w *Workflow) SkipRemaining(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateItemsPending {
		return w.snapshotLocked(), fmt.Errorf("receipt.SkipRemaining: %w: %s", ErrInvalidState, w.state)
	}

	for len(w.pending) > 0 {
		if err := w.createLocked(ctx, w.pending[0], domain.Others); err != nil {
			return w.snapshotLocked(), fmt.Errorf("receipt.SkipRemaining: %w", err)
		}
		w.pending = w.pending[1:]
	}
	w.finishLocked()
	return w.snapshotLocked(), nil
}

// Snapshot returns the current view.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// createLocked adds one transaction for item and raises its budget notice.
func (w *Workflow) createLocked(ctx context.Context, item PendingItem, c domain.Category) error {
	in := domain.TransactionInput{
		Name:             item.Name,
		OriginalAmount:   item.OriginalAmount,
		OriginalCurrency: item.OriginalCurrency,
		Date:             w.receipt.Date,
		Merchant:         w.effectiveMerchantLocked(),
		Category:         c,
		Tags:             []string{},
	}
	tx, alert, err := w.ledger.AddTransaction(ctx, in)
	if err != nil {
		w.lastErr = fmt.Sprintf("Could not save %q.", item.Name)
		w.log.Error().Err(err).Str("receipt_id", w.receiptID).Str("item", item.Name).Msg("Saving receipt item failed")
		w.notices.Notify(notify.KindError, w.lastErr)
		return err
	}
	w.lastErr = ""
	w.created = append(w.created, tx)
	notify.BudgetAlert(w.notices, alert, w.ledger.PrimaryCurrency())
	return nil
}

func (w *Workflow) effectiveMerchantLocked() string {
	switch {
	case w.merchant != "":
		return w.merchant
	case w.receipt != nil && w.receipt.Merchant != "":
		return w.receipt.Merchant
	default:
		return w.detectedMerchant
	}
}

// finishLocked returns to idle after a completed receipt, keeping the
// created transactions visible in the next snapshot.
func (w *Workflow) finishLocked() {
	created := w.created
	if len(created) > 0 {
		w.notices.Notify(notify.KindSuccess, "Receipt processed successfully!")
	}
	w.log.Info().Str("receipt_id", w.receiptID).Int("transactions", len(created)).Msg("Receipt completed")
	w.resetLocked()
	w.created = created
}

// resetLocked discards all receipt state and starts a new generation.
func (w *Workflow) resetLocked() {
	if w.stopDetect != nil {
		w.stopDetect()
		w.stopDetect = nil
	}
	w.gen++
	w.state = StateIdle
	w.receiptID = ""
	w.fileName = ""
	w.image = aigateway.Image{}
	w.merchant = ""
	w.detectedMerchant = ""
	w.receipt = nil
	w.pending = nil
	w.created = nil
	w.lastErr = ""
}

func (w *Workflow) snapshotLocked() Snapshot {
	s := Snapshot{
		State:            w.state,
		Generation:       w.gen,
		ReceiptID:        w.receiptID,
		FileName:         w.fileName,
		Merchant:         w.effectiveMerchantLocked(),
		DetectedMerchant: w.detectedMerchant,
		Pending:          append([]PendingItem{}, w.pending...),
		Created:          make([]domain.Transaction, len(w.created)),
		Error:            w.lastErr,
	}
	for i, tx := range w.created {
		s.Created[i] = tx.Clone()
	}
	if w.receipt != nil {
		r := *w.receipt
		r.Items = append([]domain.ReceiptItem(nil), w.receipt.Items...)
		s.Receipt = &r
		s.Tax = r.Tax
	}
	if w.state == StateItemsPending && len(w.pending) > 0 {
		cur := w.pending[0]
		s.Current = &cur
	}
	return s
}
