package service

import (
	"testing"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/internal/tenants/repository"
)

func TestWithDefaults_FillsZeroValues(t *testing.T) {
	s := withDefaults(repository.Settings{})

	if s.ScoreThreshold != DefaultScoreThreshold {
		t.Errorf("ScoreThreshold = %d, want %d", s.ScoreThreshold, DefaultScoreThreshold)
	}
	if s.InactivityHours != DefaultInactivityHours {
		t.Errorf("InactivityHours = %d, want %d", s.InactivityHours, DefaultInactivityHours)
	}
	if s.ReactivationMaxAttempts != DefaultReactivationMaxAttempts {
		t.Errorf("ReactivationMaxAttempts = %d, want %d", s.ReactivationMaxAttempts, DefaultReactivationMaxAttempts)
	}
	if s.ReactivationCooldownHours != DefaultReactivationCooldownHours {
		t.Errorf("ReactivationCooldownHours = %d, want %d", s.ReactivationCooldownHours, DefaultReactivationCooldownHours)
	}
	if s.RefundWindowHours != DefaultRefundWindowHours {
		t.Errorf("RefundWindowHours = %d, want %d", s.RefundWindowHours, DefaultRefundWindowHours)
	}
	if s.LeadPriceCredits != DefaultLeadPriceCredits {
		t.Errorf("LeadPriceCredits = %d, want %d", s.LeadPriceCredits, DefaultLeadPriceCredits)
	}
}

func TestWithDefaults_KeepsConfiguredValues(t *testing.T) {
	in := repository.Settings{
		ScoreThreshold:            85,
		InactivityHours:           24,
		ReactivationMaxAttempts:   5,
		ReactivationCooldownHours: 12,
		RefundWindowHours:         48,
		LeadPriceCredits:          3,
		MinSuccessfulIntegrations: 2,
	}
	if got := withDefaults(in); got != in {
		t.Errorf("withDefaults changed configured settings: %+v", got)
	}
}

func TestDefaultTemplate_ParsesAndScores(t *testing.T) {
	tpl, err := defaultTemplate()
	if err != nil {
		t.Fatalf("defaultTemplate: %v", err)
	}
	if err := tpl.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	budget := int64(3000000)
	timing := domain.TimingImmediate
	financing := true
	fields := domain.QualificationFields{
		Budget:          &budget,
		Timing:          &timing,
		Financing:       &financing,
		EngagementTurns: 8,
	}

	result, err := scoring.Score(fields, tpl)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if result.Total != 100 {
		t.Errorf("Total = %d, want 100 for a fully matching lead", result.Total)
	}
}

func TestDefaultTemplate_MinimumFieldsGate(t *testing.T) {
	tpl, err := defaultTemplate()
	if err != nil {
		t.Fatalf("defaultTemplate: %v", err)
	}

	budget := int64(3000000)
	fields := domain.QualificationFields{Budget: &budget}

	if _, err := scoring.Score(fields, tpl); err != scoring.ErrNotScoreable {
		t.Errorf("Score without timing: err = %v, want ErrNotScoreable", err)
	}
}
