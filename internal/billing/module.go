// Package billing wires the append-only credit ledger bounded context.
package billing

import (
	"leadflow_backend/internal/billing/handler"
	"leadflow_backend/internal/billing/repository"
	"leadflow_backend/internal/billing/service"
	"leadflow_backend/internal/events"
	httpmodule "leadflow_backend/internal/http"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

func NewModule(pool *pgxpool.Pool, tenants service.TenantDirectory, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, tenants, bus, log)
	return &Module{svc: svc, handler: handler.New(svc)}
}

func (m *Module) Name() string { return "billing" }

// Service exposes the ledger to the webhook and delivery modules.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) RegisterRoutes(ctx *httpmodule.RouterContext) {
	billing := ctx.Admin.Group("/tenants/:tenantId/billing")
	billing.GET("/balance", m.handler.Balance)
	billing.GET("/ledger", m.handler.History)
	billing.POST("/bonus", m.handler.GrantBonus)
}
