package aigateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/dvloznov/aeva/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// contentGenerator is the part of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements Gateway on the Gemini API.
type Gemini struct {
	models contentGenerator
	model  string
	log    zerolog.Logger
	now    func() time.Time
}

// NewGemini creates a client for apiKey. An empty model selects DefaultModelName.
func NewGemini(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return newGemini(client.Models, model, log), nil
}

func newGemini(models contentGenerator, model string, log zerolog.Logger) *Gemini {
	if model == "" {
		model = DefaultModelName
	}
	return &Gemini{
		models: models,
		model:  model,
		log:    log.With().Str("component", "aigateway").Logger(),
		now:    time.Now,
	}
}

// receiptSchema constrains the extraction response.
var receiptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"merchant": {Type: genai.TypeString, Description: "The store or merchant name printed on the receipt."},
		"date":     {Type: genai.TypeString, Description: "The date of the transaction in YYYY-MM-DD format. If not found, use today's date."},
		"currency": {Type: genai.TypeString, Description: "ISO 4217 code of the receipt currency, e.g. SEK."},
		"items": {
			Type:        genai.TypeArray,
			Description: "List of all items purchased from the receipt.",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":  {Type: genai.TypeString, Description: "The name of the item. Be concise."},
					"price": {Type: genai.TypeNumber, Description: "The price of the item."},
				},
				Required: []string{"name", "price"},
			},
		},
		"total": {Type: genai.TypeNumber, Description: "The total amount on the receipt."},
		"tax":   {Type: genai.TypeNumber, Description: "Total tax shown on the receipt, 0 if none."},
	},
	Required: []string{"date", "items", "total"},
}

// modelReceipt is the raw extraction payload before normalisation.
type modelReceipt struct {
	Merchant string `json:"merchant"`
	Date     string `json:"date"`
	Currency string `json:"currency"`
	Items    []struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	} `json:"items"`
	Total float64 `json:"total"`
	Tax   float64 `json:"tax"`
}

// ExtractReceipt sends the image with the extraction prompt and parses the
// structured reply.
func (g *Gemini) ExtractReceipt(ctx context.Context, img Image, primaryCurrency string) (domain.ReceiptData, error) {
	contents := imageContents(receiptPrompt, img)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   receiptSchema,
	}

	raw, err := g.generate(ctx, contents, cfg)
	if err != nil {
		g.log.Error().Err(err).Msg("Receipt extraction call failed")
		return domain.ReceiptData{}, fmt.Errorf("ExtractReceipt: %w: %v", ErrExtractionFailed, err)
	}

	var parsed modelReceipt
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		g.log.Error().Err(err).Str("raw_response", raw).Msg("Receipt response is not valid JSON")
		return domain.ReceiptData{}, fmt.Errorf("ExtractReceipt: %w: unmarshal JSON: %v", ErrExtractionFailed, err)
	}

	data := g.normalizeReceipt(parsed, primaryCurrency)
	g.log.Info().
		Str("merchant", data.Merchant).
		Str("currency", data.Currency).
		Int("items", len(data.Items)).
		Msg("Receipt extracted")
	return data, nil
}

// normalizeReceipt fills defaults and drops lines that cannot become transactions.
func (g *Gemini) normalizeReceipt(in modelReceipt, primaryCurrency string) domain.ReceiptData {
	out := domain.ReceiptData{
		Merchant: strings.TrimSpace(in.Merchant),
		Currency: strings.ToUpper(strings.TrimSpace(in.Currency)),
		Total:    finite(in.Total),
		Tax:      finite(in.Tax),
		Items:    make([]domain.ReceiptItem, 0, len(in.Items)),
	}
	if out.Currency == "" {
		out.Currency = strings.ToUpper(primaryCurrency)
	}

	d, err := civil.ParseDate(strings.TrimSpace(in.Date))
	if err != nil || !d.IsValid() {
		d = civil.DateOf(g.now())
	}
	out.Date = d

	for _, item := range in.Items {
		name := strings.TrimSpace(item.Name)
		price := finite(item.Price)
		if name == "" || price <= 0 {
			g.log.Debug().Str("item", item.Name).Float64("price", item.Price).Msg("Skipping unusable receipt line")
			continue
		}
		out.Items = append(out.Items, domain.ReceiptItem{Name: name, Price: price})
	}
	return out
}

// DetectMerchant asks only for the merchant name. Failures are logged and
// reported as "".
func (g *Gemini) DetectMerchant(ctx context.Context, img Image) string {
	raw, err := g.generate(ctx, imageContents(merchantPrompt, img), nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("Merchant detection failed")
		return ""
	}
	return cleanMerchant(raw)
}

// GetFeedback returns free-text advice on the given spending snapshot.
func (g *Gemini) GetFeedback(ctx context.Context, in FeedbackInput) (string, error) {
	prompt, err := buildFeedbackPrompt(in)
	if err != nil {
		return "", fmt.Errorf("GetFeedback: %w: %v", ErrAdvisoryFailed, err)
	}
	text, err := g.generate(ctx, textContents(prompt), nil)
	if err != nil {
		g.log.Error().Err(err).Msg("Feedback call failed")
		return "", fmt.Errorf("GetFeedback: %w: %v", ErrAdvisoryFailed, err)
	}
	return strings.TrimSpace(text), nil
}

// AnswerQuery answers a free-form question about txs.
func (g *Gemini) AnswerQuery(ctx context.Context, question string, txs []domain.Transaction, primaryCurrency string) (string, error) {
	prompt, err := buildQueryPrompt(question, txs, primaryCurrency)
	if err != nil {
		return "", fmt.Errorf("AnswerQuery: %w: %v", ErrAdvisoryFailed, err)
	}
	text, err := g.generate(ctx, textContents(prompt), nil)
	if err != nil {
		g.log.Error().Err(err).Msg("Query call failed")
		return "", fmt.Errorf("AnswerQuery: %w: %v", ErrAdvisoryFailed, err)
	}
	return strings.TrimSpace(text), nil
}

func (g *Gemini) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from model")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

func imageContents(prompt string, img Image) []*genai.Content {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mime, Data: img.Data}},
				{Text: prompt},
			},
		},
	}
}

func textContents(prompt string) []*genai.Content {
	return []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

// cleanMerchant keeps the first line of a short free-text reply.
func cleanMerchant(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.IndexAny(s, "\r\n"); idx != -1 {
		s = s[:idx]
	}
	s = strings.Trim(s, " \t\"'`*.")
	if strings.EqualFold(s, "unknown") || len(s) > 80 {
		return ""
	}
	return s
}
