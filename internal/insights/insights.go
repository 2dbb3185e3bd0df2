// Package insights turns the store snapshot into AI feedback and answers.
package insights

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/aeva/internal/aigateway"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/notify"
	"github.com/dvloznov/aeva/internal/period"
	"github.com/dvloznov/aeva/internal/store"
)

// User-visible replies used instead of raw errors.
const (
	NoDataMessage           = "No transaction data available to analyze."
	FeedbackFallbackMessage = "Sorry, I couldn't generate feedback right now. Please try again later."
	AnswerFallbackMessage   = "Sorry, I couldn't answer that right now. Please try again later."
)

// Source is the read side of the transaction store.
type Source interface {
	Transactions() []domain.Transaction
	Settings() store.Settings
	Today() civil.Date
}

// Reply is the outcome of an advisory request. Fallback is set when Text is a
// substitute message rather than model output.
type Reply struct {
	Text     string       `json:"text"`
	Fallback bool         `json:"fallback"`
	Period   period.Range `json:"period"`
}

// Service answers advisory requests.
type Service struct {
	source  Source
	ai      aigateway.Gateway
	notices notify.Notifier
	log     zerolog.Logger
}

// New creates a Service. A nil notifier discards notices.
func New(source Source, ai aigateway.Gateway, notices notify.Notifier, log zerolog.Logger) *Service {
	if notices == nil {
		notices = notify.Discard
	}
	return &Service{
		source:  source,
		ai:      ai,
		notices: notices,
		log:     log.With().Str("component", "insights").Logger(),
	}
}

// Feedback asks for advice on the current financial month. Service failures
// become a fallback reply, never an error.
func (s *Service) Feedback(ctx context.Context) Reply {
	r := period.FinancialMonthRange(s.source.Today())
	settings := s.source.Settings()

	var txs []domain.Transaction
	for _, tx := range s.source.Transactions() {
		if r.Contains(tx.Date) {
			txs = append(txs, tx)
		}
	}
	if len(txs) == 0 {
		return Reply{Text: NoDataMessage, Fallback: true, Period: r}
	}

	text, err := s.ai.GetFeedback(ctx, aigateway.FeedbackInput{
		Transactions:    txs,
		PrimaryCurrency: settings.PrimaryCurrency,
		Rules:           settings.RuleMap,
		Period:          r,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		s.log.Error().Err(err).Str("period", r.String()).Msg("Feedback request failed")
		s.notices.Notify(notify.KindError, "Failed to get AI feedback.")
		return Reply{Text: FeedbackFallbackMessage, Fallback: true, Period: r}
	}

	s.log.Info().Str("period", r.String()).Int("transactions", len(txs)).Msg("Feedback generated")
	return Reply{Text: text, Period: r}
}

// Ask answers a question about every transaction. An empty question is a
// validation error; service failures become a fallback reply.
func (s *Service) Ask(ctx context.Context, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, fmt.Errorf("insights.Ask: %w: question is empty", domain.ErrValidation)
	}

	r := period.FinancialMonthRange(s.source.Today())
	txs := s.source.Transactions()
	if len(txs) == 0 {
		return Reply{Text: NoDataMessage, Fallback: true, Period: r}, nil
	}

	text, err := s.ai.AnswerQuery(ctx, question, txs, s.source.Settings().PrimaryCurrency)
	if err != nil || strings.TrimSpace(text) == "" {
		s.log.Error().Err(err).Msg("Query request failed")
		s.notices.Notify(notify.KindError, "Failed to get an answer from the AI.")
		return Reply{Text: AnswerFallbackMessage, Fallback: true, Period: r}, nil
	}
	return Reply{Text: text, Period: r}, nil
}
