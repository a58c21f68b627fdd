package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/digvijay2003/contract-intelligence-api/internal/clients/openai"
	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/resilience"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

// ExtractionService is the contract with the external field-extraction
// capability: it sends a bounded slice of document text, validates the
// structured response, and returns an ExtractedField ready for the
// pipeline to persist. It never persists anything itself.
type ExtractionService interface {
	Extract(ctx context.Context, documentID uuid.UUID, fullText string) (*types.ExtractedField, error)
}

type extractionService struct {
	log           *logger.Logger
	ai            openai.Client
	exec          *resilience.Executor
	contextBudget int
	callTimeout   time.Duration
}

func NewExtractionService(baseLog *logger.Logger, ai openai.Client, exec *resilience.Executor, contextBudget int, callTimeout time.Duration) ExtractionService {
	if contextBudget <= 0 {
		contextBudget = 24000
	}
	if callTimeout <= 0 {
		callTimeout = 90 * time.Second
	}
	return &extractionService{
		log:           baseLog.With("service", "ExtractionService"),
		ai:            ai,
		exec:          exec,
		contextBudget: contextBudget,
		callTimeout:   callTimeout,
	}
}

const extractionSystemPrompt = `You are a contract analyst. Extract the requested fields from the contract text. Use null for anything the text does not state. Quote clause text verbatim where a clause is requested.`

func extractionSchema() map[string]any {
	str := map[string]any{"type": []string{"string", "null"}}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"parties":                map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"effective_date":         str,
			"term":                   str,
			"governing_law":          str,
			"payment_terms":          str,
			"termination":            str,
			"auto_renewal":           str,
			"confidentiality":        str,
			"indemnity":              str,
			"liability_cap_amount":   map[string]any{"type": []string{"number", "null"}},
			"liability_cap_currency": str,
			"signatories":            map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{
			"parties", "effective_date", "term", "governing_law", "payment_terms",
			"termination", "auto_renewal", "confidentiality", "indemnity",
			"liability_cap_amount", "liability_cap_currency", "signatories",
		},
	}
}

func (s *extractionService) Extract(ctx context.Context, documentID uuid.UUID, fullText string) (*types.ExtractedField, error) {
	if strings.TrimSpace(fullText) == "" {
		return nil, fmt.Errorf("extraction requires non-empty text")
	}

	prompt := s.boundedText(fullText)

	var raw map[string]any
	err := s.exec.Execute(ctx, "llm_extract", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		obj, callErr := s.ai.GenerateJSON(callCtx, extractionSystemPrompt, prompt, "contract_fields", extractionSchema())
		if callErr != nil {
			return callErr
		}
		raw = obj
		return nil
	}, resilience.RecoverableClassifier)
	if err != nil {
		return nil, fmt.Errorf("field extraction: %w", err)
	}

	return s.validate(documentID, raw), nil
}

// boundedText keeps the prompt under the context budget. Long
// contracts keep their head and tail; signature blocks and governing
// law clauses tend to live at the end.
func (s *extractionService) boundedText(fullText string) string {
	if len(fullText) <= s.contextBudget {
		return fullText
	}
	head := s.contextBudget * 3 / 4
	tail := s.contextBudget - head
	return fullText[:head] + "\n[...]\n" + fullText[len(fullText)-tail:]
}

// validate coerces the model response into an ExtractedField, nulling
// any field that violates its invariant instead of rejecting the whole
// record. Anomalies are logged, never surfaced.
func (s *extractionService) validate(documentID uuid.UUID, raw map[string]any) *types.ExtractedField {
	field := &types.ExtractedField{
		ID:              uuid.New(),
		DocumentID:      documentID,
		ExtractedAt:     time.Now(),
		ExtractionModel: s.ai.Model(),
	}

	field.EffectiveDate = stringOrEmpty(raw["effective_date"])
	field.Term = stringOrEmpty(raw["term"])
	field.GoverningLaw = stringOrEmpty(raw["governing_law"])
	field.PaymentTerms = stringOrEmpty(raw["payment_terms"])
	field.Termination = stringOrEmpty(raw["termination"])
	field.AutoRenewal = stringOrEmpty(raw["auto_renewal"])
	field.Confidentiality = stringOrEmpty(raw["confidentiality"])
	field.Indemnity = stringOrEmpty(raw["indemnity"])

	field.Parties = jsonArray(raw["parties"])
	field.Signatories = jsonArray(raw["signatories"])

	amount, currency := s.validateLiabilityCap(documentID, raw["liability_cap_amount"], raw["liability_cap_currency"])
	field.LiabilityCapAmount = amount
	field.LiabilityCapCurrency = currency

	return field
}

var recognizedCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "INR": true, "JPY": true,
	"CHF": true, "CAD": true, "AUD": true, "SGD": true, "CNY": true,
}

func (s *extractionService) validateLiabilityCap(documentID uuid.UUID, rawAmount, rawCurrency any) (*float64, string) {
	amount, ok := numberOrNil(rawAmount)
	if !ok {
		return nil, ""
	}
	if amount < 0 {
		s.log.Warn("Extracted liability cap is negative; nulling field",
			"document_id", documentID,
			"amount", amount,
		)
		return nil, ""
	}
	currency := strings.ToUpper(strings.TrimSpace(stringOrEmpty(rawCurrency)))
	if !recognizedCurrencies[currency] {
		s.log.Warn("Extracted liability cap currency not recognized; nulling field",
			"document_id", documentID,
			"currency", currency,
		)
		return nil, ""
	}
	return &amount, currency
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func numberOrNil(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	}
	return 0, false
}

func jsonArray(v any) datatypes.JSON {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s := stringOrEmpty(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
