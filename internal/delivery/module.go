// Package delivery wires the delivery orchestration bounded context.
package delivery

import (
	"context"
	"net/http"

	"leadflow_backend/internal/delivery/handler"
	"leadflow_backend/internal/delivery/integrations"
	"leadflow_backend/internal/delivery/repository"
	"leadflow_backend/internal/delivery/service"
	"leadflow_backend/internal/events"
	httpmodule "leadflow_backend/internal/http"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// Biller joins the two ledger surfaces the orchestrator needs. The billing
// service implements both.
type Biller interface {
	service.Biller
	service.TxBiller
}

func NewModule(pool *pgxpool.Pool, leads service.LeadSource, tenants service.TenantDirectory,
	biller Biller, scheduler service.RetryScheduler, httpClient *http.Client,
	bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	settler := service.NewPgSettler(pool, repo, biller)
	svc := service.New(repo, settler, leads, tenants, biller, scheduler,
		integrations.NewRegistry(httpClient), bus, log)

	m := &Module{svc: svc, handler: handler.New(svc)}
	m.subscribe(bus, log)
	return m
}

func (m *Module) Name() string { return "delivery" }

// Service exposes dispatch and retry to the scheduler worker.
func (m *Module) Service() *service.Service { return m.svc }

// subscribe starts dispatch whenever an offer reaches LEAD_READY. An
// insufficient balance is expected here, not an error: the offer stays
// LEAD_READY and a credit purchase re-dispatches it.
func (m *Module) subscribe(bus events.Bus, log *logger.Logger) {
	bus.Subscribe(events.LeadOfferReady{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		ready, ok := e.(events.LeadOfferReady)
		if !ok {
			return nil
		}
		err := m.svc.Dispatch(ctx, ready.TenantID, ready.LeadOfferID)
		if apperr.Is(err, apperr.KindInsufficientCredits) {
			log.Warn("dispatch blocked on balance", "lead_offer_id", ready.LeadOfferID, "tenant_id", ready.TenantID)
			return nil
		}
		return err
	}))

	bus.Subscribe(events.CreditsPurchased{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		purchased, ok := e.(events.CreditsPurchased)
		if !ok {
			return nil
		}
		return m.svc.DispatchReady(ctx, purchased.TenantID)
	}))
}

func (m *Module) RegisterRoutes(ctx *httpmodule.RouterContext) {
	deliveries := ctx.Admin.Group("/tenants/:tenantId/deliveries")
	deliveries.GET("", m.handler.List)
	deliveries.GET("/:deliveryId", m.handler.Get)
	deliveries.POST("/:deliveryId/retry", m.handler.Retry)
	deliveries.POST("/:deliveryId/refund", m.handler.Refund)
}
