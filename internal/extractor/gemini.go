package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"leadflow_backend/internal/leads/domain"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

const extractionInstruction = `Eres un asistente que extrae datos de calificación de una conversación
con un posible comprador de vivienda. Lee los mensajes del cliente y devuelve
únicamente los campos que el texto respalda explícitamente. No inventes valores.
Presupuesto en pesos (número entero). timing debe ser uno de:
immediate, 1-3_months, 3-6_months, 6+_months.`

// Gemini extracts qualification fields by asking a Gemini model for a
// JSON document constrained by a response schema.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Gemini{client: client, model: model, logger: logger}, nil
}

// extractionResult mirrors the response schema below. Pointer fields stay
// nil when the model omits them.
type extractionResult struct {
	Budget       *int64  `json:"budget,omitempty"`
	Zone         *string `json:"zone,omitempty"`
	Timing       *string `json:"timing,omitempty"`
	PropertyType *string `json:"property_type,omitempty"`
	Bedrooms     *int    `json:"bedrooms,omitempty"`
	Investor     *bool   `json:"investor,omitempty"`
	Financing    *bool   `json:"financing,omitempty"`
}

func (g *Gemini) Extract(ctx context.Context, messages []string) (domain.QualificationFields, error) {
	if len(messages) == 0 {
		return domain.QualificationFields{}, nil
	}

	prompt := extractionInstruction + "\n\nMensajes del cliente:\n" + strings.Join(messages, "\n")

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema(),
	})
	if err != nil {
		return domain.QualificationFields{}, fmt.Errorf("generate extraction: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return domain.QualificationFields{}, nil
	}

	var result extractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		g.logger.Warn("extractor returned malformed JSON", "error", err)
		return domain.QualificationFields{}, fmt.Errorf("parse extraction: %w", err)
	}

	fields := domain.QualificationFields{
		Budget:       result.Budget,
		Zone:         result.Zone,
		PropertyType: result.PropertyType,
		Bedrooms:     result.Bedrooms,
		Investor:     result.Investor,
		Financing:    result.Financing,
	}
	if result.Timing != nil && validTiming(*result.Timing) {
		fields.Timing = result.Timing
	}
	return fields, nil
}

func extractionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"budget":        {Type: genai.TypeInteger, Description: "budget in whole pesos"},
			"zone":          {Type: genai.TypeString},
			"timing":        {Type: genai.TypeString, Enum: []string{domain.TimingImmediate, domain.TimingShortTerm, domain.TimingMediumTerm, domain.TimingLongTerm}},
			"property_type": {Type: genai.TypeString},
			"bedrooms":      {Type: genai.TypeInteger},
			"investor":      {Type: genai.TypeBoolean},
			"financing":     {Type: genai.TypeBoolean},
		},
	}
}

func validTiming(t string) bool {
	switch t {
	case domain.TimingImmediate, domain.TimingShortTerm, domain.TimingMediumTerm, domain.TimingLongTerm:
		return true
	}
	return false
}
