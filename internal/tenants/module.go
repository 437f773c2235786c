// Package tenants wires the tenant administration bounded context.
package tenants

import (
	"log/slog"

	httpmodule "leadflow_backend/internal/http"
	"leadflow_backend/internal/tenants/handler"
	"leadflow_backend/internal/tenants/repository"
	"leadflow_backend/internal/tenants/service"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, logger *slog.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, logger)
	return &Module{svc: svc, handler: handler.New(svc)}
}

func (m *Module) Name() string { return "tenants" }

// Service exposes tenant configuration to sibling modules (leads, webhook,
// delivery). Wired in the composition root.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) RegisterRoutes(ctx *httpmodule.RouterContext) {
	admin := ctx.Admin.Group("/tenants")
	admin.POST("", m.handler.CreateTenant)
	admin.GET("", m.handler.ListTenants)
	admin.GET("/:tenantId", m.handler.GetTenant)
	admin.PUT("/:tenantId/settings", m.handler.UpdateSettings)
	admin.POST("/:tenantId/offers", m.handler.CreateOffer)
	admin.GET("/:tenantId/offers", m.handler.ListOffers)
	admin.POST("/:tenantId/campaign-mappings", m.handler.MapCampaign)
	admin.POST("/:tenantId/integrations", m.handler.CreateIntegration)
	admin.GET("/:tenantId/integrations", m.handler.ListIntegrations)
	admin.PATCH("/:tenantId/integrations/:integrationId", m.handler.SetIntegrationActive)
	admin.PUT("/:tenantId/scoring-template", m.handler.SaveScoringTemplate)
}
