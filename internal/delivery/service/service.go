// Package service orchestrates lead delivery: payload snapshot, parallel
// fan-out to the tenant's integrations, retry scheduling with backoff, the
// exactly-once billing debit and the dead-letter escalation.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/delivery/integrations"
	"leadflow_backend/internal/delivery/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	leadrepo "leadflow_backend/internal/leads/repository"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxAttempts bounds the retry chain per delivery.
	DefaultMaxAttempts = 5

	defaultRetryBase = 30 * time.Second
	defaultRetryCap  = time.Hour

	callTimeout = 10 * time.Second
)

// Store is the persistence surface the orchestrator needs.
// *repository.Repository implements it; tests substitute a fake.
type Store interface {
	Create(ctx context.Context, leadOfferID, tenantID uuid.UUID, snapshot []byte, maxAttempts int) (*repository.Delivery, error)
	Get(ctx context.Context, deliveryID uuid.UUID) (*repository.Delivery, error)
	LatestByLeadOffer(ctx context.Context, leadOfferID uuid.UUID) (*repository.Delivery, error)
	RecordResults(ctx context.Context, deliveryID uuid.UUID, results []repository.Result) error
	SucceededIntegrations(ctx context.Context, deliveryID uuid.UUID) (map[uuid.UUID]bool, error)
	ListResults(ctx context.Context, deliveryID uuid.UUID) ([]repository.Result, error)
	UpdateAfterAttempt(ctx context.Context, deliveryID uuid.UUID, status string, attempt int, lastError string, retryPending bool) error
	ClaimRetry(ctx context.Context, deliveryID uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, deliveryID uuid.UUID) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, status *string, limit, offset int) ([]repository.Delivery, error)
}

// Settler commits the delivery settle and the credit debit atomically.
type Settler interface {
	SettleBilled(ctx context.Context, d *repository.Delivery, attempt int, lastError string, price int64) (uuid.UUID, error)
}

// LeadSource is the slice of the lead lifecycle the orchestrator reads from
// and reports back to.
type LeadSource interface {
	GetOffer(ctx context.Context, tenantID, leadOfferID uuid.UUID) (*leadrepo.LeadOffer, error)
	GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (*leadrepo.Lead, error)
	ListReadyOffers(ctx context.Context, tenantID uuid.UUID) ([]leadrepo.LeadOffer, error)
	MarkDelivered(ctx context.Context, tenantID, leadOfferID uuid.UUID) error
}

// TenantDirectory provides the tenant's delivery policy and destinations.
type TenantDirectory interface {
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*tenantrepo.Tenant, error)
	ListActiveIntegrations(ctx context.Context, tenantID uuid.UUID) ([]tenantrepo.Integration, error)
}

// Biller is the slice of the credit ledger the orchestrator consults.
type Biller interface {
	Balance(ctx context.Context, tenantID uuid.UUID) (int64, error)
	RefundDelivery(ctx context.Context, tenantID, leadOfferID uuid.UUID, note string) error
}

// RetryScheduler enqueues a deferred retry task.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, deliveryID uuid.UUID, attempt int, delay time.Duration) error
}

type Service struct {
	store       Store
	settler     Settler
	leads       LeadSource
	tenants     TenantDirectory
	biller      Biller
	scheduler   RetryScheduler
	clients     integrations.Registry
	bus         events.Bus
	logger      *logger.Logger
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration
}

func New(store Store, settler Settler, leads LeadSource, tenants TenantDirectory, biller Biller,
	scheduler RetryScheduler, clients integrations.Registry, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:       store,
		settler:     settler,
		leads:       leads,
		tenants:     tenants,
		biller:      biller,
		scheduler:   scheduler,
		clients:     clients,
		bus:         bus,
		logger:      log,
		maxAttempts: DefaultMaxAttempts,
		retryBase:   defaultRetryBase,
		retryCap:    defaultRetryCap,
	}
}

// SetRetryPolicy overrides the attempt bound and backoff schedule for new
// deliveries. Zero values keep the defaults.
func (s *Service) SetRetryPolicy(maxAttempts int, base, limit time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if base > 0 {
		s.retryBase = base
	}
	if limit > 0 {
		s.retryCap = limit
	}
}

// snapshot is the payload sent to every integration. Frozen at dispatch so
// retries resend exactly what the first attempt sent.
type snapshot struct {
	LeadOfferID    uuid.UUID                  `json:"lead_offer_id"`
	OfferID        *uuid.UUID                 `json:"offer_id"`
	TenantID       uuid.UUID                  `json:"tenant_id"`
	Name           string                     `json:"name"`
	Phone          string                     `json:"phone"`
	Email          *string                    `json:"email,omitempty"`
	Score          *int                       `json:"score"`
	ScoreBreakdown map[string]int             `json:"score_breakdown,omitempty"`
	Qualification  domain.QualificationFields `json:"qualification"`
	ScoredAt       time.Time                  `json:"scored_at"`
}

// Dispatch starts delivery for a LEAD_READY offer. Idempotent: an existing
// delivery for the offer means dispatch already happened and the retry chain
// owns it. A balance below the lead price blocks dispatch and leaves the
// offer LEAD_READY so credits can be topped up.
func (s *Service) Dispatch(ctx context.Context, tenantID, leadOfferID uuid.UUID) error {
	if existing, err := s.store.LatestByLeadOffer(ctx, leadOfferID); err == nil {
		s.logger.DeliveryOutcome(existing.ID.String(), existing.Status, 0, 0, existing.Attempt)
		return nil
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return err
	}

	offer, err := s.leads.GetOffer(ctx, tenantID, leadOfferID)
	if err != nil {
		return err
	}
	if offer.Status != domain.StatusLeadReady {
		return apperr.Conflict(fmt.Sprintf("offer is %s, not %s", offer.Status, domain.StatusLeadReady))
	}

	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	price := tenant.Settings.LeadPriceCredits
	balance, err := s.biller.Balance(ctx, tenantID)
	if err != nil {
		return err
	}
	if balance < price {
		return apperr.InsufficientCredits(fmt.Sprintf("balance %d below lead price %d", balance, price))
	}

	lead, err := s.leads.GetLead(ctx, tenantID, offer.LeadID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snapshot{
		LeadOfferID:    offer.ID,
		OfferID:        offer.OfferID,
		TenantID:       tenantID,
		Name:           lead.Name,
		Phone:          lead.Phone,
		Email:          lead.Email,
		Score:          offer.Score,
		ScoreBreakdown: offer.ScoreBreakdown,
		Qualification:  offer.Qualification,
		ScoredAt:       offer.StatusChangedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal delivery snapshot: %w", err)
	}

	d, err := s.store.Create(ctx, leadOfferID, tenantID, payload, s.maxAttempts)
	if err != nil {
		return err
	}
	return s.attempt(ctx, d, tenant)
}

// DispatchReady re-dispatches LEAD_READY offers that an earlier dispatch left
// stranded on an insufficient balance. Runs when credits land; stops as soon
// as the balance runs out again, oldest offers first.
func (s *Service) DispatchReady(ctx context.Context, tenantID uuid.UUID) error {
	offers, err := s.leads.ListReadyOffers(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, offer := range offers {
		err := s.Dispatch(ctx, tenantID, offer.ID)
		if apperr.Is(err, apperr.KindInsufficientCredits) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Retry runs one scheduled re-attempt. The claim on retry_pending makes
// concurrent workers and manual retries race-safe: only one proceeds.
func (s *Service) Retry(ctx context.Context, deliveryID uuid.UUID) error {
	claimed, err := s.store.ClaimRetry(ctx, deliveryID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	d, err := s.store.Get(ctx, deliveryID)
	if err != nil {
		return err
	}
	if d.Terminal() {
		return nil
	}
	tenant, err := s.tenants.GetTenant(ctx, d.TenantID)
	if err != nil {
		return err
	}
	return s.attempt(ctx, d, tenant)
}

// ForceRetry is the admin path: it re-arms the retry flag and attempts
// immediately, even on a dead-lettered delivery.
func (s *Service) ForceRetry(ctx context.Context, tenantID, deliveryID uuid.UUID) error {
	d, err := s.store.Get(ctx, deliveryID)
	if err != nil {
		return err
	}
	if d.TenantID != tenantID {
		return apperr.NotFound("delivery not found")
	}
	if d.Status == repository.StatusDelivered || d.Status == repository.StatusRefunded {
		return apperr.Conflict("delivery already settled")
	}
	tenant, err := s.tenants.GetTenant(ctx, d.TenantID)
	if err != nil {
		return err
	}
	return s.attempt(ctx, d, tenant)
}

func (s *Service) attempt(ctx context.Context, d *repository.Delivery, tenant *tenantrepo.Tenant) error {
	active, err := s.tenants.ListActiveIntegrations(ctx, d.TenantID)
	if err != nil {
		return err
	}
	attempt := d.Attempt + 1

	if len(active) == 0 {
		return s.recordFailure(ctx, d, attempt, 0, 0, "no active integrations configured")
	}

	already, err := s.store.SucceededIntegrations(ctx, d.ID)
	if err != nil {
		return err
	}
	var pending []tenantrepo.Integration
	for _, in := range active {
		if !already[in.ID] {
			pending = append(pending, in)
		}
	}

	results := s.fanOut(ctx, d, attempt, pending)
	if len(results) > 0 {
		if err := s.store.RecordResults(ctx, d.ID, results); err != nil {
			return err
		}
	}

	succeeded := len(already)
	var failures []string
	for _, res := range results {
		if res.Succeeded {
			succeeded++
		} else {
			failures = append(failures, res.Error)
		}
	}

	required := requiredSuccesses(tenant.Settings, len(active))
	if succeeded < required {
		return s.recordFailure(ctx, d, attempt, succeeded, len(failures), strings.Join(failures, "; "))
	}
	return s.settle(ctx, d, tenant, attempt, succeeded, len(failures), strings.Join(failures, "; "))
}

// fanOut calls every pending integration in parallel with a per-call timeout
// and collects one result per destination. A failing destination never stops
// the others.
func (s *Service) fanOut(ctx context.Context, d *repository.Delivery, attempt int, pending []tenantrepo.Integration) []repository.Result {
	results := make([]repository.Result, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range pending {
		g.Go(func() error {
			res := repository.Result{
				DeliveryID:    d.ID,
				IntegrationID: target.ID,
				Kind:          target.Kind,
				Attempt:       attempt,
			}
			client, ok := s.clients[target.Kind]
			if !ok {
				res.Error = "no client for integration kind " + target.Kind
				results[i] = res
				return nil
			}
			callCtx, cancel := context.WithTimeout(gctx, callTimeout)
			defer cancel()
			if err := client.Deliver(callCtx, target, d.Snapshot); err != nil {
				res.Error = err.Error()
			} else {
				res.Succeeded = true
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()
	return results
}

// recordFailure marks an attempt that missed the success policy: PARTIAL when
// some destinations landed, FAILED when none did, DEAD_LETTER once retries are
// exhausted. Non-terminal outcomes schedule the next retry.
func (s *Service) recordFailure(ctx context.Context, d *repository.Delivery, attempt, succeeded, failed int, lastError string) error {
	if attempt >= d.MaxAttempts {
		if err := s.store.UpdateAfterAttempt(ctx, d.ID, repository.StatusDeadLetter, attempt, lastError, false); err != nil {
			return err
		}
		s.logger.DeliveryOutcome(d.ID.String(), repository.StatusDeadLetter, succeeded, failed, attempt)
		s.bus.Publish(ctx, events.DeliveryDeadLettered{
			BaseEvent:   events.NewBaseEvent(),
			DeliveryID:  d.ID,
			LeadOfferID: d.LeadOfferID,
			TenantID:    d.TenantID,
			LastError:   lastError,
		})
		return nil
	}

	status := repository.StatusFailed
	if succeeded > 0 {
		status = repository.StatusPartial
	}
	if err := s.store.UpdateAfterAttempt(ctx, d.ID, status, attempt, lastError, true); err != nil {
		return err
	}
	s.logger.DeliveryOutcome(d.ID.String(), status, succeeded, failed, attempt)
	return s.scheduler.ScheduleRetry(ctx, d.ID, attempt, s.backoff(attempt))
}

// settle commits the terminal DELIVERED outcome once the success policy is
// met and debits the lead price in the same transaction. Stragglers past the
// policy threshold are not retried.
func (s *Service) settle(ctx context.Context, d *repository.Delivery, tenant *tenantrepo.Tenant, attempt, succeeded, failed int, lastError string) error {
	entryID, err := s.settler.SettleBilled(ctx, d, attempt, lastError, tenant.Settings.LeadPriceCredits)
	if err != nil {
		return err
	}
	d.LedgerEntryID = &entryID
	s.logger.DeliveryOutcome(d.ID.String(), repository.StatusDelivered, succeeded, failed, attempt)

	if err := s.leads.MarkDelivered(ctx, d.TenantID, d.LeadOfferID); err != nil && !apperr.Is(err, apperr.KindStaleState) {
		return err
	}
	s.bus.Publish(ctx, events.DeliveryCompleted{
		BaseEvent:   events.NewBaseEvent(),
		DeliveryID:  d.ID,
		LeadOfferID: d.LeadOfferID,
		TenantID:    d.TenantID,
	})
	return nil
}

// Refund reverses a billed delivery inside the tenant's refund window.
func (s *Service) Refund(ctx context.Context, tenantID, deliveryID uuid.UUID, reason string) error {
	d, err := s.store.Get(ctx, deliveryID)
	if err != nil {
		return err
	}
	if d.TenantID != tenantID {
		return apperr.NotFound("delivery not found")
	}
	if d.LedgerEntryID == nil {
		return apperr.Conflict("delivery was never billed")
	}
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	window := time.Duration(tenant.Settings.RefundWindowHours) * time.Hour
	if time.Since(d.UpdatedAt) > window {
		return apperr.Conflict("refund window has closed")
	}
	if err := s.biller.RefundDelivery(ctx, tenantID, d.LeadOfferID, reason); err != nil {
		return err
	}
	return s.store.MarkRefunded(ctx, d.ID)
}

func (s *Service) Get(ctx context.Context, tenantID, deliveryID uuid.UUID) (*repository.Delivery, []repository.Result, error) {
	d, err := s.store.Get(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	if d.TenantID != tenantID {
		return nil, nil, apperr.NotFound("delivery not found")
	}
	results, err := s.store.ListResults(ctx, deliveryID)
	if err != nil {
		return nil, nil, err
	}
	return d, results, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, status *string, limit, offset int) ([]repository.Delivery, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByTenant(ctx, tenantID, status, limit, offset)
}

// Backoff returns the default delay before the next attempt: base 30s,
// doubled per attempt, capped at one hour.
func Backoff(attempt int) time.Duration {
	return backoffWith(defaultRetryBase, defaultRetryCap, attempt)
}

func (s *Service) backoff(attempt int) time.Duration {
	return backoffWith(s.retryBase, s.retryCap, attempt)
}

func backoffWith(base, limit time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}

// requiredSuccesses resolves the tenant's policy: 0 means every active
// integration must succeed; an explicit minimum is clamped to the active set.
func requiredSuccesses(settings tenantrepo.Settings, activeCount int) int {
	need := settings.MinSuccessfulIntegrations
	if need <= 0 || need > activeCount {
		return activeCount
	}
	return need
}
