// Package service orchestrates the lead lifecycle: ingestion, conversation
// handling, disqualification, scoring and the cooling/reactivation loop.
package service

import (
	"context"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/extractor"
	"leadflow_backend/internal/leads/disqualify"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/scoring"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	maxMessageLen    = 4000
	sweepBatchSize   = 200
	extractorContext = 20 // inbound turns fed to the extractor

	defaultExtractorTimeout = 20 * time.Second
)

// Store is the persistence surface the service needs. *repository.Repository
// implements it; tests substitute a fake.
type Store interface {
	CreateOrGetLead(ctx context.Context, tenantID uuid.UUID, phone, name, source string, email *string) (*repository.Lead, bool, error)
	GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Lead, error)
	CreateOrGetOffer(ctx context.Context, leadID, tenantID uuid.UUID, offerID *uuid.UUID, initial domain.Status) (*repository.LeadOffer, bool, error)
	GetOffer(ctx context.Context, tenantID, leadOfferID uuid.UUID) (*repository.LeadOffer, error)
	GetActiveOfferByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*repository.LeadOffer, error)
	Transition(ctx context.Context, leadOfferID uuid.UUID, from, to domain.Status, cause, actor string) error
	UpdateQualification(ctx context.Context, leadOfferID uuid.UUID, fields domain.QualificationFields, score *int, breakdown map[string]int) error
	AssignOffer(ctx context.Context, leadOfferID, offerID uuid.UUID) error
	IncrementContactAttempts(ctx context.Context, leadOfferID uuid.UUID) error
	IncrementReactivations(ctx context.Context, leadOfferID uuid.UUID) error
	RecordMessage(ctx context.Context, leadOfferID uuid.UUID, direction, body, externalID string) error
	CountInboundMessages(ctx context.Context, leadOfferID uuid.UUID) (int, error)
	ListMessages(ctx context.Context, leadOfferID uuid.UUID, limit int) ([]repository.Message, error)
	ListStalledQualifying(ctx context.Context, tenantID uuid.UUID, cutoff time.Time, limit int) ([]repository.LeadOffer, error)
	ListCoolingCandidates(ctx context.Context, tenantID uuid.UUID, cooledBefore time.Time, maxAttempts, limit int) ([]repository.LeadOffer, error)
	ListCoolingExhausted(ctx context.Context, tenantID uuid.UUID, cooledBefore time.Time, maxAttempts, limit int) ([]repository.LeadOffer, error)
	ListReady(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.LeadOffer, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, status *domain.Status, limit, offset int) ([]repository.LeadOffer, error)
	Timeline(ctx context.Context, leadOfferID uuid.UUID) ([]repository.LifecycleEvent, error)
}

// TenantDirectory is the slice of tenant configuration the lifecycle needs.
type TenantDirectory interface {
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*tenantrepo.Tenant, error)
	GetTenantByMetaPage(ctx context.Context, pageID string) (*tenantrepo.Tenant, error)
	GetOffer(ctx context.Context, tenantID, offerID uuid.UUID) (*tenantrepo.Offer, error)
	ResolveCampaign(ctx context.Context, source, campaignID string) (*tenantrepo.CampaignMapping, error)
	ScoringTemplateFor(ctx context.Context, tenantID uuid.UUID, offerID *uuid.UUID) (*scoring.Template, error)
	ListTenants(ctx context.Context) ([]tenantrepo.Tenant, error)
}

type Service struct {
	store        Store
	tenants      TenantDirectory
	extractor    extractor.Extractor
	extractLimit time.Duration
	bus          events.Bus
	logger       *logger.Logger
}

func New(store Store, tenants TenantDirectory, ext extractor.Extractor, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store: store, tenants: tenants, extractor: ext,
		extractLimit: defaultExtractorTimeout,
		bus:          bus, logger: log,
	}
}

// SetExtractorTimeout bounds each extractor call. Zero keeps the default.
func (s *Service) SetExtractorTimeout(d time.Duration) {
	if d > 0 {
		s.extractLimit = d
	}
}

// IngestInput is one verified lead event from an ingestion source.
type IngestInput struct {
	Source     string
	CampaignID string
	PageID     string
	Phone      string
	Name       string
	Email      *string
}

// IngestLeadEvent registers a lead event: it resolves the campaign to a
// tenant offer, creates or reuses the lead identity, and opens a LeadOffer.
// Re-ingesting the same (lead, offer) pair returns the existing offer
// unchanged. Unmapped campaigns from a known page open in PENDING_MAPPING.
func (s *Service) IngestLeadEvent(ctx context.Context, in IngestInput) (*repository.LeadOffer, error) {
	normalized, err := phone.NormalizeE164(in.Phone)
	if err != nil {
		return nil, apperr.Unprocessable("lead event has no usable phone number")
	}

	var (
		tenantID uuid.UUID
		offerID  *uuid.UUID
	)
	mapping, err := s.tenants.ResolveCampaign(ctx, in.Source, in.CampaignID)
	switch {
	case err == nil:
		tenantID = mapping.TenantID
		offerID = &mapping.OfferID
	case apperr.Is(err, apperr.KindNotFound):
		tenant, terr := s.tenants.GetTenantByMetaPage(ctx, in.PageID)
		if terr != nil {
			return nil, apperr.Unprocessable("campaign and page match no tenant")
		}
		tenantID = tenant.ID
	default:
		return nil, err
	}

	lead, createdLead, err := s.store.CreateOrGetLead(ctx, tenantID, normalized, sanitize.Text(in.Name), in.Source, in.Email)
	if err != nil {
		return nil, err
	}
	if createdLead {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			TenantID:  tenantID,
			Phone:     normalized,
			Source:    in.Source,
		})
	}

	offer, created, err := s.store.CreateOrGetOffer(ctx, lead.ID, tenantID, offerID, domain.InitialStatus(offerID != nil))
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Info("lead event deduplicated onto existing offer",
			"lead_offer_id", offer.ID, "source", in.Source)
	}
	return offer, nil
}

// HandleInboundMessage processes one conversation turn from the lead. The
// pipeline is: record, advance engagement state, check disqualification
// rules, extract qualification fields, then score.
//
// Messages from numbers with no active offer are logged and dropped so the
// messaging provider never sees an error for them.
func (s *Service) HandleInboundMessage(ctx context.Context, tenantID uuid.UUID, fromPhone, body, externalID string) error {
	normalized, err := phone.NormalizeE164(fromPhone)
	if err != nil {
		s.logger.Warn("inbound message with unusable sender", "tenant_id", tenantID)
		return nil
	}

	offer, err := s.store.GetActiveOfferByPhone(ctx, tenantID, normalized)
	if apperr.Is(err, apperr.KindNotFound) {
		s.logger.Warn("inbound message matches no active offer", "tenant_id", tenantID)
		return nil
	}
	if err != nil {
		return err
	}

	body = sanitize.Message(body, maxMessageLen)
	if err := s.store.RecordMessage(ctx, offer.ID, repository.DirectionInbound, body, externalID); err != nil {
		return err
	}

	status, err := s.advanceOnReply(ctx, offer)
	if err != nil {
		return err
	}

	if category := disqualify.Evaluate(body); category != disqualify.CategoryNone {
		if domain.CanTransition(status, domain.StatusDisqualified) {
			return s.transition(ctx, offer.ID, offer.TenantID, status, domain.StatusDisqualified,
				"disqualified:"+string(category), repository.ActorDetector)
		}
		s.logger.Warn("disqualification signal in non-disqualifiable status",
			"lead_offer_id", offer.ID, "status", status, "category", category)
		return nil
	}

	if status != domain.StatusQualifying {
		return nil
	}
	return s.qualify(ctx, offer)
}

// advanceOnReply moves the offer along the engagement edges a reply implies
// and returns the status the offer ends up in.
func (s *Service) advanceOnReply(ctx context.Context, offer *repository.LeadOffer) (domain.Status, error) {
	status := offer.Status
	for {
		var next domain.Status
		switch status {
		case domain.StatusContacted:
			next = domain.StatusEngaged
		case domain.StatusEngaged:
			next = domain.StatusQualifying
		case domain.StatusReactivation:
			next = domain.StatusQualifying
		case domain.StatusScored:
			// Conversation continued after scoring; new facts may change the score.
			next = domain.StatusQualifying
		default:
			return status, nil
		}
		err := s.transition(ctx, offer.ID, offer.TenantID, status, next, "lead_replied", repository.ActorSystem)
		if err != nil {
			return status, err
		}
		status = next
	}
}

// qualify runs extraction, merges fields into the stored snapshot and scores
// it against the tenant's template. The stored score is always recomputed
// from the full snapshot, never incremented.
func (s *Service) qualify(ctx context.Context, offer *repository.LeadOffer) error {
	messages, err := s.store.ListMessages(ctx, offer.ID, sweepBatchSize)
	if err != nil {
		return err
	}
	var inbound []string
	for _, m := range messages {
		if m.Direction == repository.DirectionInbound {
			inbound = append(inbound, m.Body)
		}
	}
	if len(inbound) > extractorContext {
		inbound = inbound[len(inbound)-extractorContext:]
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.extractLimit)
	extracted, err := s.extractor.Extract(extractCtx, inbound)
	cancel()
	if err != nil {
		// Extraction failure must not lose the turn; fields stay as they were.
		s.logger.Error("qualification extraction failed", "lead_offer_id", offer.ID, "error", err)
		extracted = domain.QualificationFields{}
	}

	fields := offer.Qualification.Merge(extracted)
	if turns, err := s.store.CountInboundMessages(ctx, offer.ID); err == nil && turns > fields.EngagementTurns {
		fields.EngagementTurns = turns
	}

	template, err := s.tenants.ScoringTemplateFor(ctx, offer.TenantID, offer.OfferID)
	if apperr.Is(err, apperr.KindNotFound) {
		return s.store.UpdateQualification(ctx, offer.ID, fields, nil, nil)
	}
	if err != nil {
		return err
	}

	if !scoring.MinimumFieldsSatisfied(fields, *template) {
		return s.store.UpdateQualification(ctx, offer.ID, fields, nil, nil)
	}

	result, err := scoring.Score(fields, *template)
	if err != nil {
		return err
	}
	if err := s.store.UpdateQualification(ctx, offer.ID, fields, &result.Total, result.Breakdown); err != nil {
		return err
	}
	if err := s.transition(ctx, offer.ID, offer.TenantID, domain.StatusQualifying, domain.StatusScored,
		"score_computed", repository.ActorScoring); err != nil {
		return err
	}

	tenant, err := s.tenants.GetTenant(ctx, offer.TenantID)
	if err != nil {
		return err
	}
	if !scoring.Qualified(result.Total, tenant.Settings.ScoreThreshold) {
		return s.transition(ctx, offer.ID, offer.TenantID, domain.StatusScored, domain.StatusQualifying,
			"below_threshold", repository.ActorScoring)
	}

	if err := s.transition(ctx, offer.ID, offer.TenantID, domain.StatusScored, domain.StatusLeadReady,
		"threshold_met", repository.ActorScoring); err != nil {
		return err
	}
	s.bus.Publish(ctx, events.LeadOfferReady{
		BaseEvent:   events.NewBaseEvent(),
		LeadOfferID: offer.ID,
		TenantID:    offer.TenantID,
		Score:       result.Total,
	})
	return nil
}

// MarkContacted records that first outreach went out for a mapped offer.
func (s *Service) MarkContacted(ctx context.Context, tenantID, leadOfferID uuid.UUID, messageBody string) error {
	offer, err := s.store.GetOffer(ctx, tenantID, leadOfferID)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, offer.ID, tenantID, domain.StatusToBeContacted, domain.StatusContacted,
		"outreach_sent", repository.ActorSystem); err != nil {
		return err
	}
	if err := s.store.IncrementContactAttempts(ctx, offer.ID); err != nil {
		return err
	}
	if messageBody != "" {
		return s.store.RecordMessage(ctx, offer.ID, repository.DirectionOutbound, sanitize.Message(messageBody, maxMessageLen), "")
	}
	return nil
}

// Escalate hands the conversation to a human operator.
func (s *Service) Escalate(ctx context.Context, tenantID, leadOfferID uuid.UUID, reason string) error {
	offer, err := s.store.GetOffer(ctx, tenantID, leadOfferID)
	if err != nil {
		return err
	}
	return s.transition(ctx, offer.ID, tenantID, offer.Status, domain.StatusHumanHandoff,
		"escalated:"+reason, repository.ActorSystem)
}

// Resume returns an escalated offer to the automated qualification flow.
func (s *Service) Resume(ctx context.Context, tenantID, leadOfferID uuid.UUID) error {
	return s.transition(ctx, leadOfferID, tenantID, domain.StatusHumanHandoff, domain.StatusQualifying,
		"resumed", repository.ActorAdmin)
}

// Disqualify is the manual override an operator uses.
func (s *Service) Disqualify(ctx context.Context, tenantID, leadOfferID uuid.UUID, reason string) error {
	offer, err := s.store.GetOffer(ctx, tenantID, leadOfferID)
	if err != nil {
		return err
	}
	return s.transition(ctx, offer.ID, tenantID, offer.Status, domain.StatusDisqualified,
		"manual:"+reason, repository.ActorAdmin)
}

// MapPendingOffer resolves a PENDING_MAPPING offer to a concrete tenant
// offer chosen by an operator and releases it into the contact queue.
func (s *Service) MapPendingOffer(ctx context.Context, tenantID, leadOfferID, offerID uuid.UUID) error {
	if _, err := s.tenants.GetOffer(ctx, tenantID, offerID); err != nil {
		return err
	}
	current, err := s.store.GetOffer(ctx, tenantID, leadOfferID)
	if err != nil {
		return err
	}
	if current.Status != domain.StatusPendingMapping {
		return apperr.Conflict("lead offer is not awaiting mapping")
	}
	if err := s.store.AssignOffer(ctx, leadOfferID, offerID); err != nil {
		return err
	}
	return s.transition(ctx, leadOfferID, tenantID, domain.StatusPendingMapping, domain.StatusToBeContacted,
		"offer_mapped", repository.ActorAdmin)
}

// MarkDelivered finalizes a lead offer after a successful, billed delivery.
func (s *Service) MarkDelivered(ctx context.Context, tenantID, leadOfferID uuid.UUID) error {
	return s.transition(ctx, leadOfferID, tenantID, domain.StatusLeadReady, domain.StatusSentToDeveloper,
		"delivered", repository.ActorSystem)
}

// GetOffer, ListOffers, Timeline and ListMessages back the read API.

func (s *Service) GetOffer(ctx context.Context, tenantID, leadOfferID uuid.UUID) (*repository.LeadOffer, error) {
	return s.store.GetOffer(ctx, tenantID, leadOfferID)
}

func (s *Service) GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (*repository.Lead, error) {
	return s.store.GetLead(ctx, tenantID, leadID)
}

func (s *Service) ListOffers(ctx context.Context, tenantID uuid.UUID, status *domain.Status, limit, offset int) ([]repository.LeadOffer, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByTenant(ctx, tenantID, status, limit, offset)
}

// ListReadyOffers returns the tenant's LEAD_READY offers, oldest first.
func (s *Service) ListReadyOffers(ctx context.Context, tenantID uuid.UUID) ([]repository.LeadOffer, error) {
	return s.store.ListReady(ctx, tenantID, sweepBatchSize)
}

func (s *Service) Timeline(ctx context.Context, tenantID, leadOfferID uuid.UUID) ([]repository.LifecycleEvent, error) {
	if _, err := s.store.GetOffer(ctx, tenantID, leadOfferID); err != nil {
		return nil, err
	}
	return s.store.Timeline(ctx, leadOfferID)
}

func (s *Service) ListMessages(ctx context.Context, tenantID, leadOfferID uuid.UUID) ([]repository.Message, error) {
	if _, err := s.store.GetOffer(ctx, tenantID, leadOfferID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, leadOfferID, sweepBatchSize)
}

// SweepCooling moves QUALIFYING offers with no inbound activity inside the
// tenant's inactivity window into COOLING. Returns how many were moved.
func (s *Service) SweepCooling(ctx context.Context) (int, error) {
	tenants, err := s.tenants.ListTenants(ctx)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, tenant := range tenants {
		cutoff := time.Now().UTC().Add(-time.Duration(tenant.Settings.InactivityHours) * time.Hour)
		stalled, err := s.store.ListStalledQualifying(ctx, tenant.ID, cutoff, sweepBatchSize)
		if err != nil {
			return moved, err
		}
		for _, offer := range stalled {
			err := s.transition(ctx, offer.ID, tenant.ID, domain.StatusQualifying, domain.StatusCooling,
				"inactivity", repository.ActorScheduler)
			if apperr.Is(err, apperr.KindStaleState) {
				continue // the lead replied mid-sweep; leave it alone
			}
			if err != nil {
				return moved, err
			}
			s.bus.Publish(ctx, events.LeadOfferCooling{
				BaseEvent:   events.NewBaseEvent(),
				LeadOfferID: offer.ID,
				TenantID:    tenant.ID,
			})
			moved++
		}
	}
	return moved, nil
}

// RunReactivation sends re-engagement probes to cooled offers that still
// have attempt budget and stops the ones that exhausted it.
func (s *Service) RunReactivation(ctx context.Context) (int, error) {
	tenants, err := s.tenants.ListTenants(ctx)
	if err != nil {
		return 0, err
	}
	probed := 0
	for _, tenant := range tenants {
		cooledBefore := time.Now().UTC().Add(-time.Duration(tenant.Settings.ReactivationCooldownHours) * time.Hour)
		maxAttempts := tenant.Settings.ReactivationMaxAttempts

		exhausted, err := s.store.ListCoolingExhausted(ctx, tenant.ID, cooledBefore, maxAttempts, sweepBatchSize)
		if err != nil {
			return probed, err
		}
		for _, offer := range exhausted {
			err := s.transition(ctx, offer.ID, tenant.ID, domain.StatusCooling, domain.StatusStopped,
				"reactivation_budget_exhausted", repository.ActorScheduler)
			if err != nil && !apperr.Is(err, apperr.KindStaleState) {
				return probed, err
			}
		}

		candidates, err := s.store.ListCoolingCandidates(ctx, tenant.ID, cooledBefore, maxAttempts, sweepBatchSize)
		if err != nil {
			return probed, err
		}
		for _, offer := range candidates {
			err := s.transition(ctx, offer.ID, tenant.ID, domain.StatusCooling, domain.StatusReactivation,
				"reactivation_probe", repository.ActorScheduler)
			if apperr.Is(err, apperr.KindStaleState) {
				continue
			}
			if err != nil {
				return probed, err
			}
			if err := s.store.IncrementReactivations(ctx, offer.ID); err != nil {
				return probed, err
			}
			probed++
		}
	}
	return probed, nil
}

// transition commits a lifecycle edge and publishes the transition event.
func (s *Service) transition(ctx context.Context, leadOfferID, tenantID uuid.UUID, from, to domain.Status, cause, actor string) error {
	if err := s.store.Transition(ctx, leadOfferID, from, to, cause, actor); err != nil {
		return err
	}
	s.logger.LeadTransition(leadOfferID.String(), string(from), string(to), cause)
	s.bus.Publish(ctx, events.LeadOfferTransitioned{
		BaseEvent:   events.NewBaseEvent(),
		LeadOfferID: leadOfferID,
		TenantID:    tenantID,
		From:        string(from),
		To:          string(to),
		Cause:       cause,
	})
	return nil
}
