// Package leads wires the lead lifecycle bounded context.
package leads

import (
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/extractor"
	httpmodule "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, tenants service.TenantDirectory, ext extractor.Extractor, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, tenants, ext, bus, log)
	return &Module{svc: svc, handler: handler.New(svc)}
}

func (m *Module) Name() string { return "leads" }

// Service exposes the lifecycle to the webhook, delivery and scheduler
// modules. Wired in the composition roots.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) RegisterRoutes(ctx *httpmodule.RouterContext) {
	offers := ctx.Admin.Group("/lead-offers")
	offers.GET("", m.handler.ListOffers)
	offers.GET("/:leadOfferId", m.handler.GetOffer)
	offers.GET("/:leadOfferId/timeline", m.handler.Timeline)
	offers.GET("/:leadOfferId/messages", m.handler.ListMessages)
	offers.POST("/:leadOfferId/contacted", m.handler.MarkContacted)
	offers.POST("/:leadOfferId/escalate", m.handler.Escalate)
	offers.POST("/:leadOfferId/resume", m.handler.Resume)
	offers.POST("/:leadOfferId/disqualify", m.handler.Disqualify)
	offers.POST("/:leadOfferId/map", m.handler.MapPendingOffer)
}
