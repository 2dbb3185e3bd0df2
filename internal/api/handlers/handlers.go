package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/aigateway"
	"github.com/dvloznov/aeva/internal/api/middleware"
	"github.com/dvloznov/aeva/internal/budget"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/period"
	"github.com/dvloznov/aeva/internal/receipt"
	"github.com/dvloznov/aeva/internal/receiptsource"
	"github.com/dvloznov/aeva/internal/store"
)

// Ledger is the transaction store as seen by the HTTP layer.
type Ledger interface {
	Filter(f store.Filter) []domain.Transaction
	Get(id string) (domain.Transaction, error)
	AddTransaction(ctx context.Context, in domain.TransactionInput) (domain.Transaction, budget.Alert, error)
	UpdateTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, budget.Alert, error)
	DeleteTransaction(ctx context.Context, id string) error
	Merchants() []string
	PrimaryCurrency() string
	Summary(r period.Range) budget.Summary
	Today() civil.Date
	Settings() store.Settings
	SetPrimaryCurrency(ctx context.Context, code string) error
	SaveCategories(ctx context.Context, names []string, rules domain.RuleMap) (int, error)
	SaveBudgets(ctx context.Context, budgets domain.Budgets) error
}

// sentinels whose message is safe to return to the client, most specific first.
var clientErrors = []struct {
	err    error
	status int
}{
	{domain.ErrValidation, http.StatusBadRequest},
	{receipt.ErrNoFile, http.StatusBadRequest},
	{receiptsource.ErrUnsupportedType, http.StatusBadRequest},
	{receiptsource.ErrTooLarge, http.StatusRequestEntityTooLarge},
	{domain.ErrNotFound, http.StatusNotFound},
	{receipt.ErrInvalidState, http.StatusConflict},
	{receipt.ErrSuperseded, http.StatusConflict},
	{aigateway.ErrExtractionFailed, http.StatusBadGateway},
}

// writeServiceError maps err to a status code. Client errors are reported
// with their message starting at the sentinel text. Server and upstream
// failures are logged and reported as fallback only.
func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error, fallback string) {
	for _, ce := range clientErrors {
		if !errors.Is(err, ce.err) {
			continue
		}
		if ce.status >= http.StatusInternalServerError {
			log.Error().Err(err).Msg(fallback)
			middleware.WriteError(w, ce.status, fallback)
			return
		}
		msg := err.Error()
		if i := strings.Index(msg, ce.err.Error()); i >= 0 {
			msg = msg[i:]
		}
		middleware.WriteError(w, ce.status, msg)
		return
	}
	log.Error().Err(err).Msg(fallback)
	middleware.WriteError(w, http.StatusInternalServerError, fallback)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
