// Package service holds tenant configuration logic: settings defaults,
// campaign resolution and scoring template selection.
package service

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

//go:embed default_template.yaml
var defaultTemplateYAML []byte

var defaultTemplate = sync.OnceValues(func() (scoring.Template, error) {
	return scoring.ParseTemplateYAML(defaultTemplateYAML)
})

// Defaults applied when a tenant leaves a setting at its zero value.
const (
	DefaultScoreThreshold            = scoring.DefaultThreshold
	DefaultInactivityHours           = 48
	DefaultReactivationMaxAttempts   = 2
	DefaultReactivationCooldownHours = 72
	DefaultRefundWindowHours         = 24
	DefaultLeadPriceCredits          = 1
)

type Service struct {
	repo   *repository.Repository
	logger *slog.Logger
}

func New(repo *repository.Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetTenant(ctx context.Context, tenantID uuid.UUID) (*repository.Tenant, error) {
	t, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	t.Settings = withDefaults(t.Settings)
	return t, nil
}

func (s *Service) GetTenantByChannelPhone(ctx context.Context, channelPhone string) (*repository.Tenant, error) {
	t, err := s.repo.GetTenantByChannelPhone(ctx, channelPhone)
	if err != nil {
		return nil, err
	}
	t.Settings = withDefaults(t.Settings)
	return t, nil
}

func (s *Service) CreateTenant(ctx context.Context, name, channelPhone, metaPageID string, settings repository.Settings) (*repository.Tenant, error) {
	normalized, err := phone.NormalizeE164(channelPhone)
	if err != nil {
		return nil, apperr.BadRequest("invalid channel phone")
	}
	return s.repo.CreateTenant(ctx, name, normalized, metaPageID, settings)
}

func (s *Service) GetTenantByMetaPage(ctx context.Context, pageID string) (*repository.Tenant, error) {
	t, err := s.repo.GetTenantByMetaPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	t.Settings = withDefaults(t.Settings)
	return t, nil
}

func (s *Service) UpdateSettings(ctx context.Context, tenantID uuid.UUID, settings repository.Settings) error {
	if settings.ScoreThreshold < 0 || settings.ScoreThreshold > 100 {
		return apperr.BadRequest("score threshold must be within [0,100]")
	}
	if settings.MinSuccessfulIntegrations < 0 {
		return apperr.BadRequest("min successful integrations cannot be negative")
	}
	return s.repo.UpdateSettings(ctx, tenantID, settings)
}

func (s *Service) ListTenants(ctx context.Context) ([]repository.Tenant, error) {
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tenants {
		tenants[i].Settings = withDefaults(tenants[i].Settings)
	}
	return tenants, nil
}

func (s *Service) GetOffer(ctx context.Context, tenantID, offerID uuid.UUID) (*repository.Offer, error) {
	return s.repo.GetOffer(ctx, tenantID, offerID)
}

func (s *Service) CreateOffer(ctx context.Context, tenantID uuid.UUID, name string) (*repository.Offer, error) {
	if name == "" {
		return nil, apperr.BadRequest("offer name is required")
	}
	return s.repo.CreateOffer(ctx, tenantID, name)
}

func (s *Service) ListOffers(ctx context.Context, tenantID uuid.UUID) ([]repository.Offer, error) {
	return s.repo.ListOffers(ctx, tenantID)
}

// ResolveCampaign maps (source, campaign id) to a tenant and offer. Returns
// KindNotFound when no mapping exists; ingestion treats that as the
// PENDING_MAPPING path rather than an error.
func (s *Service) ResolveCampaign(ctx context.Context, source, campaignID string) (*repository.CampaignMapping, error) {
	return s.repo.ResolveCampaign(ctx, source, campaignID)
}

func (s *Service) MapCampaign(ctx context.Context, tenantID, offerID uuid.UUID, source, campaignID string) error {
	if _, err := s.repo.GetOffer(ctx, tenantID, offerID); err != nil {
		return err
	}
	return s.repo.UpsertCampaignMapping(ctx, tenantID, offerID, source, campaignID)
}

func (s *Service) ListActiveIntegrations(ctx context.Context, tenantID uuid.UUID) ([]repository.Integration, error) {
	return s.repo.ListActiveIntegrations(ctx, tenantID)
}

func (s *Service) ListIntegrations(ctx context.Context, tenantID uuid.UUID) ([]repository.Integration, error) {
	return s.repo.ListIntegrations(ctx, tenantID)
}

func (s *Service) CreateIntegration(ctx context.Context, tenantID uuid.UUID, kind, name string, config map[string]string) (*repository.Integration, error) {
	switch kind {
	case repository.IntegrationSheets, repository.IntegrationCRM, repository.IntegrationCallback:
	default:
		return nil, apperr.BadRequest("unknown integration kind: " + kind)
	}
	return s.repo.CreateIntegration(ctx, tenantID, kind, name, config)
}

func (s *Service) SetIntegrationActive(ctx context.Context, tenantID, integrationID uuid.UUID, active bool) error {
	return s.repo.SetIntegrationActive(ctx, tenantID, integrationID, active)
}

// ScoringTemplateFor returns the parsed scoring template for an offer,
// preferring an offer-specific template over the tenant default. Tenants
// with no template at all fall back to the embedded one.
func (s *Service) ScoringTemplateFor(ctx context.Context, tenantID uuid.UUID, offerID *uuid.UUID) (*scoring.Template, error) {
	stored, err := s.repo.GetScoringTemplate(ctx, tenantID, offerID)
	if apperr.Is(err, apperr.KindNotFound) {
		tpl, perr := defaultTemplate()
		if perr != nil {
			return nil, fmt.Errorf("parse embedded scoring template: %w", perr)
		}
		return &tpl, nil
	}
	if err != nil {
		return nil, err
	}
	var tpl scoring.Template
	if err := json.Unmarshal(stored.Document, &tpl); err != nil {
		return nil, fmt.Errorf("parse scoring template %s: %w", stored.ID, err)
	}
	if err := tpl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring template %s: %w", stored.ID, err)
	}
	return &tpl, nil
}

// SaveScoringTemplate validates and stores a template document for a tenant
// or a specific offer.
func (s *Service) SaveScoringTemplate(ctx context.Context, tenantID uuid.UUID, offerID *uuid.UUID, tpl scoring.Template) error {
	if err := tpl.Validate(); err != nil {
		return apperr.BadRequest(err.Error())
	}
	doc, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("marshal scoring template: %w", err)
	}
	return s.repo.UpsertScoringTemplate(ctx, tenantID, offerID, tpl.Name, doc)
}

func withDefaults(s repository.Settings) repository.Settings {
	if s.ScoreThreshold <= 0 {
		s.ScoreThreshold = DefaultScoreThreshold
	}
	if s.InactivityHours <= 0 {
		s.InactivityHours = DefaultInactivityHours
	}
	if s.ReactivationMaxAttempts <= 0 {
		s.ReactivationMaxAttempts = DefaultReactivationMaxAttempts
	}
	if s.ReactivationCooldownHours <= 0 {
		s.ReactivationCooldownHours = DefaultReactivationCooldownHours
	}
	if s.RefundWindowHours <= 0 {
		s.RefundWindowHours = DefaultRefundWindowHours
	}
	if s.LeadPriceCredits <= 0 {
		s.LeadPriceCredits = DefaultLeadPriceCredits
	}
	return s
}
