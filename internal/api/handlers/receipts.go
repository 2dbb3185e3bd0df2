package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/api/middleware"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/receipt"
	"github.com/dvloznov/aeva/internal/receiptsource"
)

// ReceiptOpener loads a receipt from a Cloud Storage URI.
type ReceiptOpener interface {
	Open(ctx context.Context, uri string) (receiptsource.Receipt, error)
}

// ReceiptsHandler drives the receipt workflow.
type ReceiptsHandler struct {
	workflow *receipt.Workflow
	opener   ReceiptOpener
	log      zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler. A nil opener disables
// gs:// selection.
func NewReceiptsHandler(workflow *receipt.Workflow, opener ReceiptOpener, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		workflow: workflow,
		opener:   opener,
		log:      log,
	}
}

// GetState handles GET /api/receipt
func (h *ReceiptsHandler) GetState(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.workflow.Snapshot())
}

// SelectFile handles POST /api/receipt/file. It accepts a multipart upload in
// the "file" field or a JSON body {"uri": "gs://bucket/object"}.
func (h *ReceiptsHandler) SelectFile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.readReceipt(w, r)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to read receipt file")
		return
	}

	snap, err := h.workflow.SelectFile(rec.Name, rec.Image)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to select receipt file")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, snap)
}

func (h *ReceiptsHandler) readReceipt(w http.ResponseWriter, r *http.Request) (receiptsource.Receipt, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			URI string `json:"uri"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return receiptsource.Receipt{}, fmt.Errorf("%w: invalid request body", domain.ErrValidation)
		}
		if !strings.HasPrefix(strings.TrimSpace(req.URI), "gs://") {
			return receiptsource.Receipt{}, fmt.Errorf("%w: uri must be a gs:// URI", domain.ErrValidation)
		}
		if h.opener == nil {
			return receiptsource.Receipt{}, fmt.Errorf("%w: Cloud Storage receipts are not configured", domain.ErrValidation)
		}
		return h.opener.Open(r.Context(), req.URI)
	}

	// Allow some room for multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, receiptsource.MaxImageBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return receiptsource.Receipt{}, receiptsource.ErrTooLarge
		}
		return receiptsource.Receipt{}, receipt.ErrNoFile
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, receiptsource.MaxImageBytes+1))
	if err != nil {
		return receiptsource.Receipt{}, err
	}
	if len(data) > receiptsource.MaxImageBytes {
		return receiptsource.Receipt{}, receiptsource.ErrTooLarge
	}
	return receiptsource.FromBytes(header.Filename, data)
}

// SetMerchant handles PUT /api/receipt/merchant
func (h *ReceiptsHandler) SetMerchant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Merchant string `json:"merchant"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.reply(w, "Failed to set merchant")(h.workflow.SetMerchant(req.Merchant))
}

// Submit handles POST /api/receipt/submit
func (h *ReceiptsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.reply(w, "Failed to process receipt")(h.workflow.Submit(r.Context()))
}

// ResolveTax handles POST /api/receipt/tax
func (h *ReceiptsHandler) ResolveTax(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Book bool `json:"book"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.reply(w, "Failed to resolve tax")(h.workflow.ResolveTax(r.Context(), req.Book))
}

// AssignCategory handles POST /api/receipt/assign
func (h *ReceiptsHandler) AssignCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category domain.Category `json:"category"`
	}
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.reply(w, "Failed to assign category")(h.workflow.AssignCategory(r.Context(), req.Category))
}

// SkipRemaining handles POST /api/receipt/skip
func (h *ReceiptsHandler) SkipRemaining(w http.ResponseWriter, r *http.Request) {
	h.reply(w, "Failed to skip items")(h.workflow.SkipRemaining(r.Context()))
}

// Cancel handles DELETE /api/receipt
func (h *ReceiptsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.workflow.Cancel())
}

func (h *ReceiptsHandler) reply(w http.ResponseWriter, fallback string) func(receipt.Snapshot, error) {
	return func(snap receipt.Snapshot, err error) {
		if err != nil {
			if snap.Error != "" {
				fallback = snap.Error
			}
			writeServiceError(w, h.log, err, fallback)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, snap)
	}
}
