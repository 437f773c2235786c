package webhook

import (
	"time"

	httpmodule "leadflow_backend/internal/http"
	leadsvc "leadflow_backend/internal/leads/service"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Module struct {
	handler *Handler
}

func NewModule(pool *pgxpool.Pool, redisClient redis.UniversalClient, cfg config.WebhookConfig, leads *leadsvc.Service, tenants ChannelResolver, biller Biller, log *logger.Logger) *Module {
	ttl := cfg.GetIdempotencyTTL()
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	idem := NewRedisIdempotency(redisClient, ttl)
	svc := NewService(idem, NewRepository(pool), leads, tenants, biller, log)
	handler := NewHandler(svc,
		NewMetaVerifier(cfg.GetMetaAppSecret()),
		NewMessagingVerifier(cfg.GetMessagingSecret()),
		NewPaymentsVerifier(cfg.GetPaymentsSecret()),
		cfg.GetMetaVerifyToken(),
		log,
	)
	return &Module{handler: handler}
}

func (m *Module) Name() string { return "webhook" }

// RegisterRoutes mounts the public endpoints on the engine root (sources do
// not know about /api/v1) behind the webhook rate limiter, and the audit
// view under admin.
func (m *Module) RegisterRoutes(ctx *httpmodule.RouterContext) {
	hooks := ctx.Engine.Group("/webhooks", ctx.WebhookRateLimiter.RateLimit())
	hooks.GET("/meta", m.handler.VerifyMeta)
	hooks.POST("/meta", m.handler.ReceiveMeta)
	hooks.POST("/messaging", m.handler.ReceiveMessaging)
	hooks.POST("/payments", m.handler.ReceivePayment)

	ctx.Admin.GET("/external-events/:source", m.handler.ListEvents)
}
