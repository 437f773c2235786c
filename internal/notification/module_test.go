package notification

import (
	"context"
	"strings"
	"testing"

	"leadflow_backend/internal/events"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	sent []sentMail
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

type fakeDirectory struct {
	tenant *tenantrepo.Tenant
}

func (f *fakeDirectory) GetTenant(_ context.Context, _ uuid.UUID) (*tenantrepo.Tenant, error) {
	return f.tenant, nil
}

func TestHandleLowBalance_EmailsTenant(t *testing.T) {
	mailer := &fakeMailer{}
	tenant := &tenantrepo.Tenant{
		ID:   uuid.New(),
		Name: "Desarrollos Norte",
		Settings: tenantrepo.Settings{
			NotifyEmail:         "ops@desarrollosnorte.mx",
			LowBalanceWatermark: 20,
		},
	}
	m := New(mailer, &fakeDirectory{tenant: tenant}, "", logger.New("development"))

	err := m.handleLowBalance(context.Background(), events.LowBalance{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenant.ID,
		Balance:   15,
		Watermark: 20,
	})
	if err != nil {
		t.Fatalf("handleLowBalance: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(mailer.sent))
	}
	if mailer.sent[0].to != "ops@desarrollosnorte.mx" {
		t.Fatalf("sent to %s", mailer.sent[0].to)
	}
	if !strings.Contains(mailer.sent[0].body, "15") {
		t.Fatalf("body should carry the balance: %s", mailer.sent[0].body)
	}
}

func TestHandleLowBalance_NoNotifyEmailDropsSilently(t *testing.T) {
	mailer := &fakeMailer{}
	tenant := &tenantrepo.Tenant{ID: uuid.New(), Name: "Sin Correo"}
	m := New(mailer, &fakeDirectory{tenant: tenant}, "", logger.New("development"))

	err := m.handleLowBalance(context.Background(), events.LowBalance{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenant.ID,
		Balance:   5,
	})
	if err != nil {
		t.Fatalf("missing notify email must not error: %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("no mail expected, got %v", mailer.sent)
	}
}

func TestHandleDeadLetter_EscalatesToOps(t *testing.T) {
	mailer := &fakeMailer{}
	m := New(mailer, &fakeDirectory{}, "oncall@leadflow.mx", logger.New("development"))

	err := m.handleDeadLetter(context.Background(), events.DeliveryDeadLettered{
		BaseEvent:   events.NewBaseEvent(),
		DeliveryID:  uuid.New(),
		LeadOfferID: uuid.New(),
		TenantID:    uuid.New(),
		LastError:   "destination returned 502",
	})
	if err != nil {
		t.Fatalf("handleDeadLetter: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].to != "oncall@leadflow.mx" {
		t.Fatalf("expected one mail to ops, got %v", mailer.sent)
	}
	if !strings.Contains(mailer.sent[0].body, "destination returned 502") {
		t.Fatalf("body should carry the last error: %s", mailer.sent[0].body)
	}
}
