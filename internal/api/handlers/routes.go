package handlers

import (
	"net/http"
	"strings"

	"github.com/dvloznov/aeva/internal/api/middleware"
)

// Handlers groups every endpoint handler served by the API. Nil handlers
// leave their routes unregistered.
type Handlers struct {
	Transactions *TransactionsHandler
	Settings     *SettingsHandler
	Receipts     *ReceiptsHandler
	Insights     *InsightsHandler
	Notices      *NoticesHandler
}

// byMethod dispatches on the request method and rejects anything else.
type byMethod map[string]http.HandlerFunc

func (m byMethod) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := m[r.Method]; ok {
		h(w, r)
		return
	}
	middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// NewRouter registers every API route.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	if t := h.Transactions; t != nil {
		mux.Handle("/api/transactions", byMethod{
			http.MethodGet:  t.ListTransactions,
			http.MethodPost: t.CreateTransaction,
		})

		mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
			// Extract transaction ID from path
			id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
			if id == "" || strings.Contains(id, "/") {
				middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
				return
			}
			switch r.Method {
			case http.MethodGet:
				t.GetTransaction(w, r, id)
			case http.MethodPut:
				t.UpdateTransaction(w, r, id)
			case http.MethodDelete:
				t.DeleteTransaction(w, r, id)
			default:
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})

		mux.Handle("/api/merchants", byMethod{http.MethodGet: t.ListMerchants})
		mux.Handle("/api/summary", byMethod{http.MethodGet: t.GetSummary})
	}

	if s := h.Settings; s != nil {
		mux.Handle("/api/settings", byMethod{http.MethodGet: s.GetSettings})
		mux.Handle("/api/settings/currency", byMethod{http.MethodPut: s.SetCurrency})
		mux.Handle("/api/settings/categories", byMethod{http.MethodPut: s.SaveCategories})
		mux.Handle("/api/settings/budgets", byMethod{http.MethodPut: s.SaveBudgets})
	}

	if rc := h.Receipts; rc != nil {
		mux.Handle("/api/receipt", byMethod{
			http.MethodGet:    rc.GetState,
			http.MethodDelete: rc.Cancel,
		})
		mux.Handle("/api/receipt/file", byMethod{http.MethodPost: rc.SelectFile})
		mux.Handle("/api/receipt/merchant", byMethod{http.MethodPut: rc.SetMerchant})
		mux.Handle("/api/receipt/submit", byMethod{http.MethodPost: rc.Submit})
		mux.Handle("/api/receipt/tax", byMethod{http.MethodPost: rc.ResolveTax})
		mux.Handle("/api/receipt/assign", byMethod{http.MethodPost: rc.AssignCategory})
		mux.Handle("/api/receipt/skip", byMethod{http.MethodPost: rc.SkipRemaining})
	}

	if in := h.Insights; in != nil {
		mux.Handle("/api/insights/feedback", byMethod{http.MethodPost: in.Feedback})
		mux.Handle("/api/insights/ask", byMethod{http.MethodPost: in.Ask})
	}

	if n := h.Notices; n != nil {
		mux.Handle("/api/notices", byMethod{
			http.MethodGet:    n.ListNotices,
			http.MethodDelete: n.ClearNotices,
		})
	}

	mux.HandleFunc("/health", HealthHandler)

	return mux
}
