package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/aigateway"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/infra/memory"
	"github.com/dvloznov/aeva/internal/insights"
	"github.com/dvloznov/aeva/internal/notify"
	"github.com/dvloznov/aeva/internal/receipt"
	"github.com/dvloznov/aeva/internal/receiptsource"
	"github.com/dvloznov/aeva/internal/store"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// MockOpener is a mock implementation of ReceiptOpener for testing.
type MockOpener struct {
	OpenFunc func(ctx context.Context, uri string) (receiptsource.Receipt, error)
}

func (m *MockOpener) Open(ctx context.Context, uri string) (receiptsource.Receipt, error) {
	return m.OpenFunc(ctx, uri)
}

type testServer struct {
	handler  http.Handler
	store    *store.Store
	workflow *receipt.Workflow
	feed     *notify.Feed
}

func newTestServer(t *testing.T, ai *aigateway.MockGateway, opener ReceiptOpener) *testServer {
	t.Helper()
	log := zerolog.New(io.Discard)

	s, err := store.Open(context.Background(), memory.New(), log,
		store.WithClock(func() time.Time { return time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC) }))
	if err != nil {
		t.Fatal(err)
	}
	if ai == nil {
		ai = &aigateway.MockGateway{}
	}
	feed := notify.NewFeed(0)
	wf := receipt.New(s, ai, feed, log)

	mux := NewRouter(Handlers{
		Transactions: NewTransactionsHandler(s, feed, log),
		Settings:     NewSettingsHandler(s, feed, log),
		Receipts:     NewReceiptsHandler(wf, opener, log),
		Insights:     NewInsightsHandler(insights.New(s, ai, feed, log), log),
		Notices:      NewNoticesHandler(feed),
	})
	return &testServer{handler: mux, store: s, workflow: wf, feed: feed}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

func txBody(name string, amount float64, category, date string) map[string]any {
	return map[string]any{
		"name":             name,
		"originalAmount":   amount,
		"originalCurrency": "USD",
		"date":             date,
		"merchant":         "ICA",
		"category":         category,
		"tags":             []string{"weekly"},
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodPost, "/api/transactions", txBody("Milk", 12.5, "Groceries", "2024-06-01"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created transactionResponse
	decode(t, rec, &created)
	if created.Transaction.ID == "" || created.Transaction.Amount != 12.5 || created.Alert != nil {
		t.Fatalf("created = %+v", created)
	}
	id := created.Transaction.ID

	rec = ts.do(t, http.MethodGet, "/api/transactions?search=milk&start_date=2024-05-25", nil)
	var list struct {
		Transactions []domain.Transaction `json:"transactions"`
		Count        int                  `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 1 || list.Transactions[0].ID != id {
		t.Errorf("list = %+v", list)
	}

	rec = ts.do(t, http.MethodPut, "/api/transactions/"+id, txBody("Oat milk", 20, "Groceries", "2024-06-02"))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	got, err := ts.store.Get(id)
	if err != nil || got.Name != "Oat milk" || got.Amount != 20 {
		t.Errorf("after update got %+v, %v", got, err)
	}

	if rec = ts.do(t, http.MethodDelete, "/api/transactions/"+id, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec = ts.do(t, http.MethodGet, "/api/transactions/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
	if rec = ts.do(t, http.MethodDelete, "/api/transactions/"+id, nil); rec.Code != http.StatusNoContent {
		t.Errorf("second delete status = %d", rec.Code)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		name     string
		body     any
		contains string
	}{
		{"zero amount", txBody("Milk", 0, "Groceries", "2024-06-01"), "amount must be positive"},
		{"missing name", txBody(" ", 5, "Groceries", "2024-06-01"), "name is required"},
		{"bad date", txBody("Milk", 5, "Groceries", "June 1st"), "Invalid request body"},
		{"unknown field", map[string]any{"name": "Milk", "price": 3}, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/transactions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if msg := errorMessage(t, rec); !strings.Contains(msg, tt.contains) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.contains)
			}
		})
	}
	if n := len(ts.store.Transactions()); n != 0 {
		t.Errorf("stored %d transactions after rejected input", n)
	}
}

func TestBudgetAlertRaisesNotice(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(t, http.MethodPut, "/api/settings/budgets", map[string]any{"budgets": map[string]float64{"Groceries": 100}})
	if rec.Code != http.StatusOK {
		t.Fatalf("budgets status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/transactions", txBody("Big shop", 105, "Groceries", "2024-06-01"))
	var created transactionResponse
	decode(t, rec, &created)
	if created.Alert == nil || created.Alert.Spent != 105 {
		t.Fatalf("alert = %+v", created.Alert)
	}

	rec = ts.do(t, http.MethodGet, "/api/notices", nil)
	var notices struct {
		Notices []notify.Notice `json:"notices"`
	}
	decode(t, rec, &notices)
	last := notices.Notices[len(notices.Notices)-1]
	if last.Kind != notify.KindError || !strings.Contains(last.Message, "Budget exceeded for Groceries") {
		t.Errorf("last notice = %+v", last)
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/notices?after=%d", last.ID), nil)
	decode(t, rec, &notices)
	if len(notices.Notices) != 0 {
		t.Errorf("notices after last = %+v", notices.Notices)
	}
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.do(t, http.MethodPost, "/api/transactions", txBody("Salary", 1000, "Income", "2024-05-25"))
	ts.do(t, http.MethodPost, "/api/transactions", txBody("Rent", 400, "Housing", "2024-06-01"))

	rec := ts.do(t, http.MethodGet, "/api/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Period struct {
			Start civil.Date `json:"startDate"`
		} `json:"period"`
		Summary struct {
			Monthly struct {
				MonthlyIncome   float64 `json:"monthlyIncome"`
				MonthlyExpenses float64 `json:"monthlyExpenses"`
			} `json:"monthly"`
		} `json:"summary"`
	}
	decode(t, rec, &body)
	if body.Period.Start != (civil.Date{Year: 2024, Month: time.May, Day: 25}) {
		t.Errorf("period start = %v", body.Period.Start)
	}
	if body.Summary.Monthly.MonthlyIncome != 1000 || body.Summary.Monthly.MonthlyExpenses != 400 {
		t.Errorf("monthly = %+v", body.Summary.Monthly)
	}

	if rec = ts.do(t, http.MethodGet, "/api/summary?date=nope", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rec.Code)
	}
	if rec = ts.do(t, http.MethodPost, "/api/summary", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	if rec := ts.do(t, http.MethodPut, "/api/settings/currency", map[string]string{"currency": "DOGE"}); rec.Code != http.StatusBadRequest {
		t.Errorf("DOGE status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPut, "/api/settings/currency", map[string]string{"currency": "eur"}); rec.Code != http.StatusOK {
		t.Errorf("EUR status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := ts.store.PrimaryCurrency(); got != "EUR" {
		t.Errorf("PrimaryCurrency() = %q", got)
	}

	ts.do(t, http.MethodPost, "/api/transactions", txBody("Chips", 15, "Snacks", "2024-06-01"))
	rec := ts.do(t, http.MethodPut, "/api/settings/categories", map[string]any{
		"categories":      []string{"Groceries", "Travel"},
		"categoryRuleMap": map[string]string{"Groceries": "needs", "Travel": "Wants"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("categories status = %d: %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		Recategorized int `json:"recategorized"`
	}
	decode(t, rec, &saved)
	if saved.Recategorized != 1 {
		t.Errorf("recategorized = %d, want 1", saved.Recategorized)
	}

	rec = ts.do(t, http.MethodPut, "/api/settings/categories", map[string]any{
		"categories":      []string{"Groceries"},
		"categoryRuleMap": map[string]string{"Groceries": "luxuries"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown bucket status = %d", rec.Code)
	}
}

func uploadRequest(t *testing.T, name string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/receipt/file", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestReceiptFlow(t *testing.T) {
	ai := &aigateway.MockGateway{
		ExtractReceiptFunc: func(ctx context.Context, img aigateway.Image, primaryCurrency string) (domain.ReceiptData, error) {
			if img.MIMEType != "image/png" {
				t.Errorf("MIMEType = %q", img.MIMEType)
			}
			return domain.ReceiptData{
				Merchant: "Lidl",
				Date:     civil.Date{Year: 2024, Month: time.June, Day: 1},
				Currency: "USD",
				Items:    []domain.ReceiptItem{{Name: "Milk", Price: 2}, {Name: "Beer", Price: 5}},
				Total:    7,
			}, nil
		},
	}
	ts := newTestServer(t, ai, nil)

	if rec := ts.do(t, http.MethodPost, "/api/receipt/submit", nil); rec.Code != http.StatusConflict {
		t.Errorf("submit without file status = %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, uploadRequest(t, "lidl.png", pngBytes))
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/receipt/submit", nil)
	var snap receipt.Snapshot
	decode(t, rec, &snap)
	if snap.State != receipt.StateItemsPending || snap.Current == nil || snap.Current.Name != "Milk" {
		t.Fatalf("after submit = %+v", snap)
	}

	if rec = ts.do(t, http.MethodPost, "/api/receipt/assign", map[string]string{"category": "Income"}); rec.Code != http.StatusBadRequest {
		t.Errorf("assign Income status = %d", rec.Code)
	}
	ts.do(t, http.MethodPost, "/api/receipt/assign", map[string]string{"category": "Groceries"})
	rec = ts.do(t, http.MethodPost, "/api/receipt/assign", map[string]string{"category": "Booze"})
	decode(t, rec, &snap)
	if snap.State != receipt.StateIdle || len(snap.Created) != 2 {
		t.Errorf("after assigning = %+v", snap)
	}

	txs := ts.store.Transactions()
	if len(txs) != 2 || txs[0].Merchant != "Lidl" {
		t.Errorf("transactions = %+v", txs)
	}
}

func TestReceiptSelectErrors(t *testing.T) {
	ts := newTestServer(t, nil, &MockOpener{
		OpenFunc: func(ctx context.Context, uri string) (receiptsource.Receipt, error) {
			return receiptsource.FromBytes("r.png", pngBytes)
		},
	})

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, uploadRequest(t, "notes.txt", []byte("just some text")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("text upload status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/receipt/file", strings.NewReader("raw"))
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file field status = %d", rec.Code)
	}

	if rec = ts.do(t, http.MethodPost, "/api/receipt/file", map[string]string{"uri": "/etc/passwd"}); rec.Code != http.StatusBadRequest {
		t.Errorf("local path status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/receipt/file", map[string]string{"uri": "gs://bucket/r.png"})
	if rec.Code != http.StatusOK {
		t.Fatalf("gs:// status = %d: %s", rec.Code, rec.Body.String())
	}
	var snap receipt.Snapshot
	decode(t, rec, &snap)
	if snap.State != receipt.StateFileSelected || snap.FileName != "r.png" {
		t.Errorf("snapshot = %+v", snap)
	}

	rec = ts.do(t, http.MethodDelete, "/api/receipt", nil)
	decode(t, rec, &snap)
	if snap.State != receipt.StateIdle {
		t.Errorf("after cancel state = %s", snap.State)
	}
}

func TestReceiptExtractionFailure(t *testing.T) {
	ai := &aigateway.MockGateway{
		ExtractReceiptFunc: func(ctx context.Context, img aigateway.Image, primaryCurrency string) (domain.ReceiptData, error) {
			return domain.ReceiptData{}, fmt.Errorf("ExtractReceipt: %w: googleapi: Error 403: API key AIzaSECRET not valid", aigateway.ErrExtractionFailed)
		},
	}
	ts := newTestServer(t, ai, nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, uploadRequest(t, "r.png", pngBytes))

	if rec = ts.do(t, http.MethodPost, "/api/receipt/submit", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	body := rec.Body.String()
	for _, leaked := range []string{"googleapi", "AIzaSECRET", "403"} {
		if strings.Contains(body, leaked) {
			t.Errorf("body %q leaks upstream detail %q", body, leaked)
		}
	}
	if !strings.Contains(body, "Failed to analyze receipt") {
		t.Errorf("body = %q, want the user-facing extraction message", body)
	}
	if got := ts.workflow.Snapshot().State; got != receipt.StateFileSelected {
		t.Errorf("state = %s, want fileSelected", got)
	}
}

func TestInsights(t *testing.T) {
	ai := &aigateway.MockGateway{
		AnswerQueryFunc: func(ctx context.Context, question string, txs []domain.Transaction, primaryCurrency string) (string, error) {
			return "You spent 12.50 on groceries.", nil
		},
	}
	ts := newTestServer(t, ai, nil)

	rec := ts.do(t, http.MethodPost, "/api/insights/feedback", nil)
	var reply insights.Reply
	decode(t, rec, &reply)
	if reply.Text != insights.NoDataMessage {
		t.Errorf("feedback with no data = %q", reply.Text)
	}

	if rec = ts.do(t, http.MethodPost, "/api/insights/ask", map[string]string{"question": "  "}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty question status = %d", rec.Code)
	}

	ts.do(t, http.MethodPost, "/api/transactions", txBody("Milk", 12.5, "Groceries", "2024-06-01"))
	rec = ts.do(t, http.MethodPost, "/api/insights/ask", map[string]string{"question": "How much on groceries?"})
	decode(t, rec, &reply)
	if reply.Fallback || reply.Text != "You spent 12.50 on groceries." {
		t.Errorf("reply = %+v", reply)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}
