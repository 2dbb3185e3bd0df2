package handlers

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/api/middleware"
	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/notify"
)

// SettingsHandler handles currency, category and budget configuration.
type SettingsHandler struct {
	ledger  Ledger
	notices notify.Notifier
	log     zerolog.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(ledger Ledger, notices notify.Notifier, log zerolog.Logger) *SettingsHandler {
	if notices == nil {
		notices = notify.Discard
	}
	return &SettingsHandler{
		ledger:  ledger,
		notices: notices,
		log:     log,
	}
}

// GetSettings handles GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"settings":   h.ledger.Settings(),
		"currencies": currency.Supported(),
	})
}

// SetCurrency handles PUT /api/settings/currency
func (h *SettingsHandler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency string `json:"currency"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.ledger.SetPrimaryCurrency(r.Context(), req.Currency); err != nil {
		writeServiceError(w, h.log, err, "Failed to change currency")
		return
	}

	settings := h.ledger.Settings()
	h.notices.Notify(notify.KindSuccess, fmt.Sprintf("Primary currency set to %s.", settings.PrimaryCurrency))
	middleware.WriteJSON(w, http.StatusOK, settings)
}

// SaveCategories handles PUT /api/settings/categories
func (h *SettingsHandler) SaveCategories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Categories []string          `json:"categories"`
		RuleMap    map[string]string `json:"categoryRuleMap"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rules := make(domain.RuleMap, len(req.RuleMap))
	for name, raw := range req.RuleMap {
		b, err := domain.ParseBucket(raw)
		if err != nil {
			writeServiceError(w, h.log, err, "Invalid bucket")
			return
		}
		rules[domain.ParseCategory(name)] = b
	}

	moved, err := h.ledger.SaveCategories(r.Context(), req.Categories, rules)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to save categories")
		return
	}

	h.notices.Notify(notify.KindSuccess, "Categories saved.")
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"settings":      h.ledger.Settings(),
		"recategorized": moved,
	})
}

// SaveBudgets handles PUT /api/settings/budgets
func (h *SettingsHandler) SaveBudgets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Budgets map[string]float64 `json:"budgets"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	budgets := make(domain.Budgets, len(req.Budgets))
	for name, v := range req.Budgets {
		budgets[domain.ParseCategory(name)] = v
	}

	if err := h.ledger.SaveBudgets(r.Context(), budgets); err != nil {
		writeServiceError(w, h.log, err, "Failed to save budgets")
		return
	}

	h.notices.Notify(notify.KindSuccess, "Budgets saved.")
	middleware.WriteJSON(w, http.StatusOK, h.ledger.Settings())
}
