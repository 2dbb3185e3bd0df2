package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/api/middleware"
	"github.com/dvloznov/aeva/internal/insights"
	"github.com/dvloznov/aeva/internal/notify"
)

// InsightsHandler handles AI feedback and questions.
type InsightsHandler struct {
	service *insights.Service
	log     zerolog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(service *insights.Service, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{
		service: service,
		log:     log,
	}
}

// Feedback handles POST /api/insights/feedback
func (h *InsightsHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.Feedback(r.Context()))
}

// Ask handles POST /api/insights/ask
func (h *InsightsHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	reply, err := h.service.Ask(r.Context(), req.Question)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to answer question")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, reply)
}

// NoticesHandler exposes the notice feed.
type NoticesHandler struct {
	feed *notify.Feed
}

// NewNoticesHandler creates a new notices handler.
func NewNoticesHandler(feed *notify.Feed) *NoticesHandler {
	return &NoticesHandler{feed: feed}
}

// ListNotices handles GET /api/notices?after=ID
func (h *NoticesHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid after parameter")
			return
		}
		after = v
	}

	notices := h.feed.Since(after)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notices": notices,
		"count":   len(notices),
	})
}

// ClearNotices handles DELETE /api/notices
func (h *NoticesHandler) ClearNotices(w http.ResponseWriter, r *http.Request) {
	h.feed.Clear()
	w.WriteHeader(http.StatusNoContent)
}
