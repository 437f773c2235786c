package service

import (
	"context"
	"fmt"

	"leadflow_backend/internal/billing/repository"
	"leadflow_backend/internal/events"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Ledger is the slice of the credit ledger the billing service drives.
type Ledger interface {
	Append(ctx context.Context, tenantID uuid.UUID, entryType string, amount int64, reference string, leadOfferID *uuid.UUID, note string) (*repository.Entry, error)
	AppendInTx(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, entryType string, amount int64, reference string, leadOfferID *uuid.UUID, note string) (*repository.Entry, error)
	Balance(ctx context.Context, tenantID uuid.UUID) (int64, error)
	History(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Entry, error)
	ConsumptionFor(ctx context.Context, leadOfferID uuid.UUID) (*repository.Entry, error)
}

// TenantDirectory provides the per-tenant watermark for low-balance alerts.
type TenantDirectory interface {
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*tenantrepo.Tenant, error)
}

type Service struct {
	ledger  Ledger
	tenants TenantDirectory
	bus     events.Bus
	logger  *logger.Logger
}

func New(ledger Ledger, tenants TenantDirectory, bus events.Bus, log *logger.Logger) *Service {
	return &Service{ledger: ledger, tenants: tenants, bus: bus, logger: log}
}

// Purchase credits a payment onto the tenant's ledger. The reference is the
// payment provider's transaction id, so a replayed payment event that slips
// past the idempotency store still dedupes on the ledger's unique constraint.
func (s *Service) Purchase(ctx context.Context, tenantID uuid.UUID, amount int64, reference string) error {
	if amount <= 0 {
		return apperr.Unprocessable("purchase amount must be positive")
	}
	entry, err := s.ledger.Append(ctx, tenantID, repository.EntryPurchase, amount, reference, nil, "")
	if err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			s.logger.WebhookDuplicate("payments", reference)
			return nil
		}
		return err
	}
	s.logger.LedgerAppend(tenantID.String(), repository.EntryPurchase, amount, entry.BalanceAfter)
	s.bus.Publish(ctx, events.CreditsPurchased{
		BaseEvent:    events.NewBaseEvent(),
		TenantID:     tenantID,
		Amount:       amount,
		BalanceAfter: entry.BalanceAfter,
	})
	return nil
}

// RefundPurchase reverses an earlier purchase; the ledger keeps both entries.
func (s *Service) RefundPurchase(ctx context.Context, tenantID uuid.UUID, amount int64, reference string) error {
	if amount <= 0 {
		return apperr.Unprocessable("refund amount must be positive")
	}
	entry, err := s.ledger.Append(ctx, tenantID, repository.EntryAdjustment, -amount, "refund:"+reference, nil, "payment refund")
	if err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			s.logger.WebhookDuplicate("payments", reference)
			return nil
		}
		return err
	}
	s.logger.LedgerAppend(tenantID.String(), repository.EntryAdjustment, -amount, entry.BalanceAfter)
	s.checkWatermark(ctx, tenantID, entry.BalanceAfter)
	return nil
}

// ConsumeForDelivery debits the delivery price inside the caller's
// transaction, so the debit commits atomically with the delivery state
// change. The unique consumption constraint per lead offer makes the debit
// exactly-once across retries: a replayed debit returns the original entry.
func (s *Service) ConsumeForDelivery(ctx context.Context, tx pgx.Tx, tenantID, leadOfferID uuid.UUID, price int64) (uuid.UUID, error) {
	if price <= 0 {
		return uuid.Nil, apperr.Unprocessable("delivery price must be positive")
	}
	entry, err := s.ledger.AppendInTx(ctx, tx, tenantID, repository.EntryConsumption, -price,
		fmt.Sprintf("delivery:%s", leadOfferID), &leadOfferID, "")
	if err != nil {
		if apperr.Is(err, apperr.KindDuplicate) {
			existing, lookupErr := s.ledger.ConsumptionFor(ctx, leadOfferID)
			if lookupErr != nil {
				return uuid.Nil, lookupErr
			}
			return existing.ID, nil
		}
		return uuid.Nil, err
	}
	s.logger.LedgerAppend(tenantID.String(), repository.EntryConsumption, -price, entry.BalanceAfter)
	s.checkWatermark(ctx, tenantID, entry.BalanceAfter)
	return entry.ID, nil
}

// RefundDelivery credits back a consumed delivery, e.g. when a developer
// rejects the lead within the refund window. The amount mirrors the original
// CONSUMPTION entry; the consumption itself is never mutated.
func (s *Service) RefundDelivery(ctx context.Context, tenantID, leadOfferID uuid.UUID, note string) error {
	consumed, err := s.ledger.ConsumptionFor(ctx, leadOfferID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Conflict("lead offer was never billed")
		}
		return err
	}
	entry, err := s.ledger.Append(ctx, tenantID, repository.EntryRefund, -consumed.Amount,
		fmt.Sprintf("delivery:%s", leadOfferID), &leadOfferID, note)
	if err != nil {
		return err
	}
	s.logger.LedgerAppend(tenantID.String(), repository.EntryRefund, -consumed.Amount, entry.BalanceAfter)
	return nil
}

// GrantBonus credits promotional credits, keyed by an admin-supplied
// reference so a retried grant does not double-credit.
func (s *Service) GrantBonus(ctx context.Context, tenantID uuid.UUID, amount int64, reference, note string) error {
	if amount <= 0 {
		return apperr.Unprocessable("bonus amount must be positive")
	}
	entry, err := s.ledger.Append(ctx, tenantID, repository.EntryBonus, amount, reference, nil, note)
	if err != nil {
		return err
	}
	s.logger.LedgerAppend(tenantID.String(), repository.EntryBonus, amount, entry.BalanceAfter)
	return nil
}

func (s *Service) Balance(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return s.ledger.Balance(ctx, tenantID)
}

func (s *Service) History(ctx context.Context, tenantID uuid.UUID, limit int) ([]repository.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.History(ctx, tenantID, limit)
}

func (s *Service) checkWatermark(ctx context.Context, tenantID uuid.UUID, balance int64) {
	tenant, err := s.tenants.GetTenant(ctx, tenantID)
	if err != nil {
		s.logger.DatabaseError("billing.watermark", err)
		return
	}
	watermark := tenant.Settings.LowBalanceWatermark
	if watermark <= 0 || balance > watermark {
		return
	}
	s.bus.Publish(ctx, events.LowBalance{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenantID,
		Balance:   balance,
		Watermark: watermark,
	})
}
