// Package notification turns domain events into emails: low-balance warnings
// to the tenant and dead-letter escalations to operations. Handlers are
// fire-and-forget; a failed email never blocks the publisher.
package notification

import (
	"context"
	"fmt"
	"html"

	"leadflow_backend/internal/events"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// TenantDirectory resolves the tenant's notification address.
type TenantDirectory interface {
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*tenantrepo.Tenant, error)
}

type Module struct {
	mailer   Mailer
	tenants  TenantDirectory
	opsEmail string
	log      *logger.Logger
}

func New(mailer Mailer, tenants TenantDirectory, opsEmail string, log *logger.Logger) *Module {
	return &Module{mailer: mailer, tenants: tenants, opsEmail: opsEmail, log: log}
}

// RegisterHandlers subscribes the notification handlers on the bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LowBalance{}.EventName(), events.HandlerFunc(m.handleLowBalance))
	bus.Subscribe(events.DeliveryDeadLettered{}.EventName(), events.HandlerFunc(m.handleDeadLetter))
}

func (m *Module) handleLowBalance(ctx context.Context, e events.Event) error {
	alert, ok := e.(events.LowBalance)
	if !ok {
		return nil
	}
	tenant, err := m.tenants.GetTenant(ctx, alert.TenantID)
	if err != nil {
		return err
	}
	if tenant.Settings.NotifyEmail == "" {
		m.log.Warn("low balance alert dropped, tenant has no notify email", "tenant_id", alert.TenantID)
		return nil
	}

	subject := fmt.Sprintf("Saldo bajo: %d créditos restantes", alert.Balance)
	body := fmt.Sprintf(
		"<p>Hola %s,</p><p>Tu saldo de créditos bajó a <strong>%d</strong> (tu umbral de aviso es %d). "+
			"Recarga para seguir recibiendo leads calificados.</p>",
		html.EscapeString(tenant.Name), alert.Balance, alert.Watermark)
	return m.mailer.Send(ctx, tenant.Settings.NotifyEmail, subject, body)
}

func (m *Module) handleDeadLetter(ctx context.Context, e events.Event) error {
	dead, ok := e.(events.DeliveryDeadLettered)
	if !ok {
		return nil
	}
	if m.opsEmail == "" {
		m.log.Warn("dead letter alert dropped, no ops email configured", "delivery_id", dead.DeliveryID)
		return nil
	}

	subject := fmt.Sprintf("Delivery dead-lettered: %s", dead.DeliveryID)
	body := fmt.Sprintf(
		"<p>Delivery <code>%s</code> for lead offer <code>%s</code> (tenant <code>%s</code>) exhausted its retries.</p>"+
			"<p>Last error: %s</p><p>Manual intervention required.</p>",
		dead.DeliveryID, dead.LeadOfferID, dead.TenantID, html.EscapeString(dead.LastError))
	return m.mailer.Send(ctx, m.opsEmail, subject, body)
}
