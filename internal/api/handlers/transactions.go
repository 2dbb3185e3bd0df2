package handlers

import (
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/api/middleware"
	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/notify"
	"github.com/dvloznov/aeva/internal/period"
	"github.com/dvloznov/aeva/internal/store"
)

// TransactionsHandler handles transaction and dashboard endpoints.
type TransactionsHandler struct {
	ledger  Ledger
	notices notify.Notifier
	log     zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(ledger Ledger, notices notify.Notifier, log zerolog.Logger) *TransactionsHandler {
	if notices == nil {
		notices = notify.Discard
	}
	return &TransactionsHandler{
		ledger:  ledger,
		notices: notices,
		log:     log,
	}
}

// transactionResponse carries the budget alert raised by a write, if any.
type transactionResponse struct {
	Transaction domain.Transaction `json:"transaction"`
	Alert       *budget.Alert      `json:"alert,omitempty"`
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	f := store.Filter{
		Search:   query.Get("search"),
		Category: strings.TrimSpace(query.Get("category")),
	}
	var err error
	if f.StartDate, err = parseDateParam(query.Get("start_date")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)")
		return
	}
	if f.EndDate, err = parseDateParam(query.Get("end_date")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)")
		return
	}

	transactions := h.ledger.Filter(f)

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
		"currency":     h.ledger.PrimaryCurrency(),
	})
}

// CreateTransaction handles POST /api/transactions
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in domain.TransactionInput
	if err := decodeJSON(r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, alert, err := h.ledger.AddTransaction(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to add transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, h.respond(tx, alert))
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, id string) {
	tx, err := h.ledger.Get(id)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// UpdateTransaction handles PUT /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request, id string) {
	var in domain.TransactionInput
	if err := decodeJSON(r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, alert, err := h.ledger.UpdateTransaction(r.Context(), domain.Transaction{
		ID:               id,
		Name:             in.Name,
		OriginalAmount:   in.OriginalAmount,
		OriginalCurrency: in.OriginalCurrency,
		Date:             in.Date,
		Merchant:         in.Merchant,
		Category:         in.Category,
		Tags:             in.Tags,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.respond(tx, alert))
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.ledger.DeleteTransaction(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMerchants handles GET /api/merchants
func (h *TransactionsHandler) ListMerchants(w http.ResponseWriter, r *http.Request) {
	merchants := h.ledger.Merchants()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"merchants": merchants,
		"count":     len(merchants),
	})
}

// GetSummary handles GET /api/summary. The optional date parameter selects
// the financial month containing it.
func (h *TransactionsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	day := h.ledger.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := parseDateParam(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)")
			return
		}
		day = d
	}

	rng := period.FinancialMonthRange(day)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"period":  rng,
		"summary": h.ledger.Summary(rng),
	})
}

func (h *TransactionsHandler) respond(tx domain.Transaction, alert budget.Alert) transactionResponse {
	resp := transactionResponse{Transaction: tx}
	if alert.Triggered() {
		notify.BudgetAlert(h.notices, alert, h.ledger.PrimaryCurrency())
		resp.Alert = &alert
	}
	return resp
}

func parseDateParam(raw string) (civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Date{}, nil
	}
	return civil.ParseDate(raw)
}
