package webhook

import (
	"context"

	leadrepo "leadflow_backend/internal/leads/repository"
	leadsvc "leadflow_backend/internal/leads/service"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadSink is the slice of the leads service the webhook module drives.
type LeadSink interface {
	IngestLeadEvent(ctx context.Context, in leadsvc.IngestInput) (*leadrepo.LeadOffer, error)
	HandleInboundMessage(ctx context.Context, tenantID uuid.UUID, fromPhone, body, externalID string) error
}

// Biller is the slice of the billing service payment events drive.
type Biller interface {
	Purchase(ctx context.Context, tenantID uuid.UUID, amount int64, reference string) error
	RefundPurchase(ctx context.Context, tenantID uuid.UUID, amount int64, reference string) error
}

// EventArchive is the durable audit store for verified webhook payloads.
// *Repository implements it.
type EventArchive interface {
	Archive(ctx context.Context, source, externalID, eventType string, payload []byte, outcome, detail string) error
	ListBySource(ctx context.Context, source string, limit int) ([]ExternalEvent, error)
}

// ChannelResolver maps a messaging business number to its tenant.
type ChannelResolver interface {
	GetTenantByChannelPhone(ctx context.Context, phone string) (*tenantrepo.Tenant, error)
}

// Result summarizes how the events inside one webhook body were handled.
type Result struct {
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

type Service struct {
	idem    IdempotencyStore
	archive EventArchive
	leads   LeadSink
	tenants ChannelResolver
	biller  Biller
	logger  *logger.Logger
}

func NewService(idem IdempotencyStore, archive EventArchive, leads LeadSink, tenants ChannelResolver, biller Biller, log *logger.Logger) *Service {
	return &Service{idem: idem, archive: archive, leads: leads, tenants: tenants, biller: biller, logger: log}
}

// AcceptMeta processes a verified Meta leadgen notification. Each leadgen
// event inside the body is deduplicated and ingested independently, so one
// duplicate never blocks a fresh sibling.
func (s *Service) AcceptMeta(ctx context.Context, body []byte) (*Result, error) {
	events, err := ParseMetaPayload(body)
	if err != nil {
		s.archiveEvent(ctx, SourceMeta, "", "leadgen", body, OutcomeUnprocessable, err.Error())
		return nil, err
	}

	result := &Result{}
	for _, event := range events {
		fresh, err := s.idem.MarkIfNew(ctx, SourceMeta, event.ExternalID)
		if err != nil {
			return result, err
		}
		if !fresh {
			s.logger.WebhookDuplicate(SourceMeta, event.ExternalID)
			s.archiveEvent(ctx, SourceMeta, event.ExternalID, "leadgen", body, OutcomeDuplicate, "")
			result.Duplicates++
			continue
		}

		_, err = s.leads.IngestLeadEvent(ctx, leadsvc.IngestInput{
			Source:     SourceMeta,
			CampaignID: event.CampaignID,
			PageID:     event.PageID,
			Phone:      event.Phone,
			Name:       event.Name,
			Email:      event.Email,
		})
		switch {
		case err == nil:
			s.archiveEvent(ctx, SourceMeta, event.ExternalID, "leadgen", body, OutcomeProcessed, "")
			result.Processed++
		case apperr.Is(err, apperr.KindUnprocessable):
			s.archiveEvent(ctx, SourceMeta, event.ExternalID, "leadgen", body, OutcomeUnprocessable, err.Error())
			result.Skipped++
		default:
			return result, err
		}
	}
	return result, nil
}

// AcceptMessaging processes a verified conversation event. Messages for
// unknown channels or senders are archived and dropped; the provider always
// gets a success so it stops retrying.
func (s *Service) AcceptMessaging(ctx context.Context, body []byte) (*Result, error) {
	messages, err := ParseMessagingPayload(body)
	if err != nil {
		s.archiveEvent(ctx, SourceMessaging, "", "message", body, OutcomeUnprocessable, err.Error())
		return nil, err
	}

	result := &Result{}
	for _, msg := range messages {
		fresh, err := s.idem.MarkIfNew(ctx, SourceMessaging, msg.ExternalID)
		if err != nil {
			return result, err
		}
		if !fresh {
			s.logger.WebhookDuplicate(SourceMessaging, msg.ExternalID)
			s.archiveEvent(ctx, SourceMessaging, msg.ExternalID, "message", body, OutcomeDuplicate, "")
			result.Duplicates++
			continue
		}

		tenant, err := s.tenants.GetTenantByChannelPhone(ctx, msg.ChannelPhone)
		if apperr.Is(err, apperr.KindNotFound) {
			s.archiveEvent(ctx, SourceMessaging, msg.ExternalID, "message", body, OutcomeUnprocessable, "unknown channel number")
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}

		if err := s.leads.HandleInboundMessage(ctx, tenant.ID, msg.FromPhone, msg.Body, msg.ExternalID); err != nil {
			return result, err
		}
		s.archiveEvent(ctx, SourceMessaging, msg.ExternalID, "message", body, OutcomeProcessed, "")
		result.Processed++
	}
	return result, nil
}

// AcceptPayment processes a verified billing notification. The idempotency
// mark plus the ledger's own reference constraint give exactly-once credit.
func (s *Service) AcceptPayment(ctx context.Context, body []byte) (*Result, error) {
	event, err := ParsePaymentPayload(body)
	if err != nil {
		s.archiveEvent(ctx, SourcePayments, "", "payment", body, OutcomeUnprocessable, err.Error())
		return nil, err
	}

	fresh, err := s.idem.MarkIfNew(ctx, SourcePayments, event.ExternalID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.logger.WebhookDuplicate(SourcePayments, event.ExternalID)
		s.archiveEvent(ctx, SourcePayments, event.ExternalID, event.Type, body, OutcomeDuplicate, "")
		return &Result{Duplicates: 1}, nil
	}

	tenantID, err := uuid.Parse(event.TenantID)
	if err != nil {
		s.archiveEvent(ctx, SourcePayments, event.ExternalID, event.Type, body, OutcomeUnprocessable, "bad tenant id")
		return nil, apperr.Unprocessable("payment payload has a malformed tenant id")
	}

	reference := event.Reference
	if reference == "" {
		reference = event.ExternalID
	}
	switch event.Type {
	case PaymentSucceeded:
		err = s.biller.Purchase(ctx, tenantID, event.Credits, reference)
	case PaymentRefunded:
		err = s.biller.RefundPurchase(ctx, tenantID, event.Credits, reference)
	}
	if err != nil {
		return nil, err
	}

	s.archiveEvent(ctx, SourcePayments, event.ExternalID, event.Type, body, OutcomeProcessed, "")
	return &Result{Processed: 1}, nil
}

// RecentEvents backs the admin audit endpoint.
func (s *Service) RecentEvents(ctx context.Context, source string, limit int) ([]ExternalEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.archive.ListBySource(ctx, source, limit)
}

// archiveEvent is best-effort: the archive is an audit trail, and a failed
// insert must not turn a processed webhook into a source-visible error.
func (s *Service) archiveEvent(ctx context.Context, source, externalID, eventType string, payload []byte, outcome, detail string) {
	if err := s.archive.Archive(ctx, source, externalID, eventType, payload, outcome, detail); err != nil {
		s.logger.DatabaseError("archive external event", err)
	}
}
