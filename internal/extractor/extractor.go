// Package extractor derives structured qualification fields from free-form
// conversation text. The production implementation calls a Gemini model with
// a constrained JSON response schema; a noop implementation keeps the
// pipeline running when no API key is configured.
package extractor

import (
	"context"

	"leadflow_backend/internal/leads/domain"
)

// Extractor turns conversation turns into qualification fields. Returned
// fields carry only what the text supports; absent fields stay nil.
type Extractor interface {
	Extract(ctx context.Context, messages []string) (domain.QualificationFields, error)
}

// Noop never extracts anything. Used when extraction is disabled so message
// handling still merges engagement counts and runs disqualification.
type Noop struct{}

func (Noop) Extract(ctx context.Context, messages []string) (domain.QualificationFields, error) {
	return domain.QualificationFields{}, nil
}
