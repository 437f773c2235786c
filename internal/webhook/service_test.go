package webhook

import (
	"context"
	"testing"

	leadrepo "leadflow_backend/internal/leads/repository"
	leadsvc "leadflow_backend/internal/leads/service"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type memoryIdem struct {
	seen map[string]bool
}

func (m *memoryIdem) MarkIfNew(_ context.Context, source, externalID string) (bool, error) {
	key := source + ":" + externalID
	if m.seen[key] {
		return false, nil
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	m.seen[key] = true
	return true, nil
}

type memoryArchive struct {
	rows []ExternalEvent
}

func (m *memoryArchive) Archive(_ context.Context, source, externalID, eventType string, payload []byte, outcome, detail string) error {
	m.rows = append(m.rows, ExternalEvent{
		Source: source, ExternalID: externalID, EventType: eventType,
		Payload: payload, Outcome: outcome, Detail: detail,
	})
	return nil
}

func (m *memoryArchive) ListBySource(_ context.Context, source string, _ int) ([]ExternalEvent, error) {
	var out []ExternalEvent
	for _, r := range m.rows {
		if r.Source == source {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryArchive) outcomes() []string {
	var out []string
	for _, r := range m.rows {
		out = append(out, r.Outcome)
	}
	return out
}

type fakeLeads struct {
	ingested []leadsvc.IngestInput
	messages []string
}

func (f *fakeLeads) IngestLeadEvent(_ context.Context, in leadsvc.IngestInput) (*leadrepo.LeadOffer, error) {
	if in.Phone == "" {
		return nil, apperr.Unprocessable("lead event has no usable phone number")
	}
	f.ingested = append(f.ingested, in)
	return &leadrepo.LeadOffer{ID: uuid.New()}, nil
}

func (f *fakeLeads) HandleInboundMessage(_ context.Context, _ uuid.UUID, _, body, _ string) error {
	f.messages = append(f.messages, body)
	return nil
}

type fakeResolver struct {
	tenant *tenantrepo.Tenant
}

func (f *fakeResolver) GetTenantByChannelPhone(_ context.Context, phone string) (*tenantrepo.Tenant, error) {
	if f.tenant != nil && f.tenant.ChannelPhone == phone {
		return f.tenant, nil
	}
	return nil, apperr.NotFound("no tenant for channel phone")
}

type fakeBiller struct {
	purchases []int64
	refunds   []int64
}

func (f *fakeBiller) Purchase(_ context.Context, _ uuid.UUID, amount int64, _ string) error {
	f.purchases = append(f.purchases, amount)
	return nil
}

func (f *fakeBiller) RefundPurchase(_ context.Context, _ uuid.UUID, amount int64, _ string) error {
	f.refunds = append(f.refunds, amount)
	return nil
}

func newTestService(leads *fakeLeads, resolver *fakeResolver, biller *fakeBiller) (*Service, *memoryArchive) {
	archive := &memoryArchive{}
	svc := NewService(&memoryIdem{}, archive, leads, resolver, biller, logger.New("development"))
	return svc, archive
}

const metaBody = `{
	"object": "page",
	"entry": [{
		"id": "page-1",
		"changes": [{
			"field": "leadgen",
			"value": {
				"leadgen_id": "lg-100",
				"campaign_id": "camp-1",
				"field_data": [
					{"name": "full_name", "values": ["Ana Torres"]},
					{"name": "phone_number", "values": ["+52 1 811 222 3344"]},
					{"name": "email", "values": ["ana@example.com"]}
				]
			}
		}]
	}]
}`

func TestAcceptMeta_ProcessesThenDeduplicates(t *testing.T) {
	leads := &fakeLeads{}
	svc, archive := newTestService(leads, &fakeResolver{}, &fakeBiller{})
	ctx := context.Background()

	first, err := svc.AcceptMeta(ctx, []byte(metaBody))
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if first.Processed != 1 || first.Duplicates != 0 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	if len(leads.ingested) != 1 {
		t.Fatalf("expected 1 ingest, got %d", len(leads.ingested))
	}
	if leads.ingested[0].CampaignID != "camp-1" || leads.ingested[0].PageID != "page-1" {
		t.Fatalf("ingest input mangled: %+v", leads.ingested[0])
	}

	// Source retries the identical delivery: acknowledged, not reprocessed.
	second, err := svc.AcceptMeta(ctx, []byte(metaBody))
	if err != nil {
		t.Fatalf("replay accept: %v", err)
	}
	if second.Processed != 0 || second.Duplicates != 1 {
		t.Fatalf("replay must be a duplicate no-op: %+v", second)
	}
	if len(leads.ingested) != 1 {
		t.Fatal("replay reached the leads service")
	}

	got := archive.outcomes()
	if len(got) != 2 || got[0] != OutcomeProcessed || got[1] != OutcomeDuplicate {
		t.Fatalf("archive outcomes: %v", got)
	}
}

func TestAcceptMeta_MalformedPayloadIsUnprocessable(t *testing.T) {
	svc, archive := newTestService(&fakeLeads{}, &fakeResolver{}, &fakeBiller{})

	_, err := svc.AcceptMeta(context.Background(), []byte(`{"entry": "nope"`))
	if !apperr.Is(err, apperr.KindUnprocessable) {
		t.Fatalf("expected unprocessable, got %v", err)
	}
	if len(archive.rows) != 1 || archive.rows[0].Outcome != OutcomeUnprocessable {
		t.Fatalf("malformed payload must still be archived: %+v", archive.rows)
	}
}

func TestAcceptMessaging_RoutesByChannelPhone(t *testing.T) {
	tenant := &tenantrepo.Tenant{ID: uuid.New(), ChannelPhone: "+5218112345678", Active: true}
	leads := &fakeLeads{}
	svc, _ := newTestService(leads, &fakeResolver{tenant: tenant}, &fakeBiller{})

	body := `{
		"display_phone_number": "+5218112345678",
		"messages": [
			{"id": "wamid.1", "from": "+5218119990000", "type": "text", "text": {"body": "hola"}},
			{"id": "wamid.2", "from": "+5218119990000", "type": "image", "text": {"body": ""}}
		]
	}`
	result, err := svc.AcceptMessaging(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected 1 processed text message, got %+v", result)
	}
	if len(leads.messages) != 1 || leads.messages[0] != "hola" {
		t.Fatalf("message not forwarded: %v", leads.messages)
	}
}

func TestAcceptMessaging_UnknownChannelIsSkippedNotErrored(t *testing.T) {
	svc, archive := newTestService(&fakeLeads{}, &fakeResolver{}, &fakeBiller{})

	body := `{
		"display_phone_number": "+5210000000000",
		"messages": [{"id": "wamid.3", "from": "+5218119990000", "text": {"body": "hola"}}]
	}`
	result, err := svc.AcceptMessaging(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("unknown channel must not error: %v", err)
	}
	if result.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %+v", result)
	}
	if archive.rows[len(archive.rows)-1].Outcome != OutcomeUnprocessable {
		t.Fatal("skipped message must be archived as unprocessable")
	}
}

func TestAcceptPayment_PurchaseAndReplay(t *testing.T) {
	tenantID := uuid.New()
	biller := &fakeBiller{}
	svc, _ := newTestService(&fakeLeads{}, &fakeResolver{}, biller)
	ctx := context.Background()

	body := `{"id": "pay-1", "type": "payment.succeeded", "tenant_id": "` + tenantID.String() + `", "credits": 50}`
	result, err := svc.AcceptPayment(ctx, []byte(body))
	if err != nil {
		t.Fatalf("accept payment: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("expected processed, got %+v", result)
	}
	if len(biller.purchases) != 1 || biller.purchases[0] != 50 {
		t.Fatalf("purchase not applied: %v", biller.purchases)
	}

	// Billing events must never double-credit on replay.
	result, err = svc.AcceptPayment(ctx, []byte(body))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Duplicates != 1 || len(biller.purchases) != 1 {
		t.Fatalf("replay double-credited: %+v purchases=%v", result, biller.purchases)
	}
}

func TestAcceptPayment_Refund(t *testing.T) {
	tenantID := uuid.New()
	biller := &fakeBiller{}
	svc, _ := newTestService(&fakeLeads{}, &fakeResolver{}, biller)

	body := `{"id": "ref-1", "type": "payment.refunded", "tenant_id": "` + tenantID.String() + `", "credits": 20}`
	if _, err := svc.AcceptPayment(context.Background(), []byte(body)); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(biller.refunds) != 1 || biller.refunds[0] != 20 {
		t.Fatalf("refund not applied: %v", biller.refunds)
	}
}

func TestAcceptPayment_RejectsBadShapes(t *testing.T) {
	svc, _ := newTestService(&fakeLeads{}, &fakeResolver{}, &fakeBiller{})
	ctx := context.Background()

	for _, body := range []string{
		`{"id": "", "type": "payment.succeeded", "tenant_id": "x", "credits": 10}`,
		`{"id": "p2", "type": "payment.weird", "tenant_id": "x", "credits": 10}`,
		`{"id": "p3", "type": "payment.succeeded", "tenant_id": "x", "credits": 0}`,
	} {
		if _, err := svc.AcceptPayment(ctx, []byte(body)); !apperr.Is(err, apperr.KindUnprocessable) {
			t.Fatalf("body %s: expected unprocessable, got %v", body, err)
		}
	}
}
