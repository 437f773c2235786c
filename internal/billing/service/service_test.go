package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"leadflow_backend/internal/billing/repository"
	"leadflow_backend/internal/events"
	tenantrepo "leadflow_backend/internal/tenants/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// fakeLedger keeps the chain in memory with the same semantics as the SQL
// repository: per-tenant seq assigned under the lock, gapless balance_after,
// no negative balances, unique references per entry type and a single
// consumption per lead offer. The mutex stands in for the tenant row lock.
type fakeLedger struct {
	mu      sync.Mutex
	entries []repository.Entry
}

func (f *fakeLedger) Append(_ context.Context, tenantID uuid.UUID, entryType string, amount int64, reference string, leadOfferID *uuid.UUID, note string) (*repository.Entry, error) {
	return f.append(tenantID, entryType, amount, reference, leadOfferID, note)
}

func (f *fakeLedger) AppendInTx(_ context.Context, _ pgx.Tx, tenantID uuid.UUID, entryType string, amount int64, reference string, leadOfferID *uuid.UUID, note string) (*repository.Entry, error) {
	return f.append(tenantID, entryType, amount, reference, leadOfferID, note)
}

func (f *fakeLedger) append(tenantID uuid.UUID, entryType string, amount int64, reference string, leadOfferID *uuid.UUID, note string) (*repository.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.EntryType == entryType && e.Reference == reference {
			return nil, apperr.Duplicate("ledger entry already recorded for this reference")
		}
		if entryType == repository.EntryConsumption && e.EntryType == repository.EntryConsumption &&
			leadOfferID != nil && e.LeadOfferID != nil && *e.LeadOfferID == *leadOfferID {
			return nil, apperr.Duplicate("ledger entry already recorded for this reference")
		}
	}
	seq, balance := f.head(tenantID)
	balance += amount
	if balance < 0 {
		return nil, apperr.InsufficientCredits(fmt.Sprintf("balance cannot absorb %d", amount))
	}
	entry := repository.Entry{
		ID: uuid.New(), TenantID: tenantID, Seq: seq + 1, EntryType: entryType,
		Amount: amount, BalanceAfter: balance, Reference: reference,
		LeadOfferID: leadOfferID, Note: note,
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

// head returns the highest seq and its balance_after, the same read the SQL
// repository does under the tenant lock.
func (f *fakeLedger) head(tenantID uuid.UUID) (int64, int64) {
	var seq, balance int64
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.Seq > seq {
			seq, balance = e.Seq, e.BalanceAfter
		}
	}
	return seq, balance
}

func (f *fakeLedger) balance(tenantID uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, b := f.head(tenantID)
	return b
}

func (f *fakeLedger) Balance(_ context.Context, tenantID uuid.UUID) (int64, error) {
	return f.balance(tenantID), nil
}

func (f *fakeLedger) History(_ context.Context, tenantID uuid.UUID, limit int) ([]repository.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Entry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].TenantID == tenantID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) ConsumptionFor(_ context.Context, leadOfferID uuid.UUID) (*repository.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.EntryType == repository.EntryConsumption && e.LeadOfferID != nil && *e.LeadOfferID == leadOfferID {
			return &e, nil
		}
	}
	return nil, apperr.NotFound("lead offer was never billed")
}

type fakeDirectory struct {
	tenant *tenantrepo.Tenant
}

func (f *fakeDirectory) GetTenant(_ context.Context, _ uuid.UUID) (*tenantrepo.Tenant, error) {
	return f.tenant, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (f *fakeBus) Publish(_ context.Context, e events.Event) {
	f.mu.Lock()
	f.published = append(f.published, e)
	f.mu.Unlock()
}

func (f *fakeBus) PublishSync(_ context.Context, e events.Event) error {
	f.mu.Lock()
	f.published = append(f.published, e)
	f.mu.Unlock()
	return nil
}
func (f *fakeBus) Subscribe(string, events.Handler) {}

func (f *fakeBus) names() []string {
	var out []string
	for _, e := range f.published {
		out = append(out, e.EventName())
	}
	return out
}

func newService(watermark int64) (*Service, *fakeLedger, *fakeBus, uuid.UUID) {
	tenant := &tenantrepo.Tenant{
		ID:       uuid.New(),
		Settings: tenantrepo.Settings{LowBalanceWatermark: watermark},
	}
	ledger := &fakeLedger{}
	bus := &fakeBus{}
	return New(ledger, &fakeDirectory{tenant: tenant}, bus, logger.New("development")), ledger, bus, tenant.ID
}

func TestPurchase_AppendsAndPublishes(t *testing.T) {
	svc, ledger, bus, tenantID := newService(0)

	if err := svc.Purchase(context.Background(), tenantID, 100, "pay-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	balance, _ := svc.Balance(context.Background(), tenantID)
	if balance != 100 {
		t.Fatalf("balance = %d, want 100", balance)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].EntryType != repository.EntryPurchase {
		t.Fatalf("unexpected ledger entries: %+v", ledger.entries)
	}
	if got := bus.names(); len(got) != 1 || got[0] != "billing.credits.purchased" {
		t.Fatalf("published = %v, want [billing.credits.purchased]", got)
	}
}

func TestPurchase_ReplayedReferenceCreditsOnce(t *testing.T) {
	svc, _, bus, tenantID := newService(0)

	if err := svc.Purchase(context.Background(), tenantID, 100, "pay-1"); err != nil {
		t.Fatalf("first Purchase: %v", err)
	}
	if err := svc.Purchase(context.Background(), tenantID, 100, "pay-1"); err != nil {
		t.Fatalf("replayed Purchase should be absorbed, got %v", err)
	}
	balance, _ := svc.Balance(context.Background(), tenantID)
	if balance != 100 {
		t.Fatalf("balance = %d, want 100 after replay", balance)
	}
	if len(bus.published) != 1 {
		t.Fatalf("replay must not publish a second event, got %d", len(bus.published))
	}
}

func TestConsumeForDelivery_ExactlyOnce(t *testing.T) {
	svc, ledger, _, tenantID := newService(0)
	offerID := uuid.New()

	if err := svc.Purchase(context.Background(), tenantID, 100, "pay-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	entryID, err := svc.ConsumeForDelivery(context.Background(), nil, tenantID, offerID, 25)
	if err != nil {
		t.Fatalf("ConsumeForDelivery: %v", err)
	}
	replayID, err := svc.ConsumeForDelivery(context.Background(), nil, tenantID, offerID, 25)
	if err != nil {
		t.Fatalf("replayed consumption should resolve to the original entry, got %v", err)
	}
	if replayID != entryID {
		t.Fatalf("replay returned entry %s, want original %s", replayID, entryID)
	}
	balance := ledger.balance(tenantID)
	if balance != 75 {
		t.Fatalf("balance = %d, want 75 after a single debit", balance)
	}
}

func TestConsumeForDelivery_InsufficientCredits(t *testing.T) {
	svc, _, _, tenantID := newService(0)

	if err := svc.Purchase(context.Background(), tenantID, 10, "pay-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	_, err := svc.ConsumeForDelivery(context.Background(), nil, tenantID, uuid.New(), 25)
	if !apperr.Is(err, apperr.KindInsufficientCredits) {
		t.Fatalf("want insufficient credits, got %v", err)
	}
}

func TestConsumeForDelivery_LowBalanceWatermark(t *testing.T) {
	svc, _, bus, tenantID := newService(30)

	if err := svc.Purchase(context.Background(), tenantID, 50, "pay-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if _, err := svc.ConsumeForDelivery(context.Background(), nil, tenantID, uuid.New(), 25); err != nil {
		t.Fatalf("ConsumeForDelivery: %v", err)
	}
	names := bus.names()
	if len(names) != 2 || names[1] != "billing.low_balance" {
		t.Fatalf("published = %v, want low balance alert after dropping to 25", names)
	}
	alert := bus.published[1].(events.LowBalance)
	if alert.Balance != 25 || alert.Watermark != 30 {
		t.Fatalf("alert = %+v", alert)
	}
}

func TestRefundDelivery_RequiresPriorConsumption(t *testing.T) {
	svc, _, _, tenantID := newService(0)
	offerID := uuid.New()

	if err := svc.Purchase(context.Background(), tenantID, 100, "pay-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	err := svc.RefundDelivery(context.Background(), tenantID, offerID, "rejected")
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("refund without consumption must conflict, got %v", err)
	}

	if _, err := svc.ConsumeForDelivery(context.Background(), nil, tenantID, offerID, 25); err != nil {
		t.Fatalf("ConsumeForDelivery: %v", err)
	}
	if err := svc.RefundDelivery(context.Background(), tenantID, offerID, "rejected"); err != nil {
		t.Fatalf("RefundDelivery: %v", err)
	}
	balance, _ := svc.Balance(context.Background(), tenantID)
	if balance != 100 {
		t.Fatalf("balance = %d, want 100 after refund", balance)
	}
}

func TestRefundPurchase_DebitsBalance(t *testing.T) {
	svc, ledger, _, tenantID := newService(0)

	if err := svc.Purchase(context.Background(), tenantID, 100, "pay-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if err := svc.RefundPurchase(context.Background(), tenantID, 40, "pay-1"); err != nil {
		t.Fatalf("RefundPurchase: %v", err)
	}
	if balance := ledger.balance(tenantID); balance != 60 {
		t.Fatalf("balance = %d, want 60", balance)
	}
	// Ledger keeps both sides of the story.
	if len(ledger.entries) != 2 || ledger.entries[1].EntryType != repository.EntryAdjustment {
		t.Fatalf("entries = %+v", ledger.entries)
	}
}

func TestLedger_ConcurrentAppendsKeepTheChainIntact(t *testing.T) {
	svc, ledger, _, tenantID := newService(0)
	offerID := uuid.New()

	const purchases = 20
	const racers = 10

	// Seed one purchase up front so the racing debit never trips the
	// balance check regardless of goroutine order.
	if err := svc.Purchase(context.Background(), tenantID, 10, "pay-seed"); err != nil {
		t.Fatalf("seed Purchase: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < purchases; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := svc.Purchase(context.Background(), tenantID, 10, fmt.Sprintf("pay-%d", i)); err != nil {
				t.Errorf("Purchase %d: %v", i, err)
			}
		}(i)
	}
	// Parallel debit attempts for the same lead offer: all must resolve to
	// the single CONSUMPTION entry.
	entryIDs := make([]uuid.UUID, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := svc.ConsumeForDelivery(context.Background(), nil, tenantID, offerID, 10)
			if err != nil {
				t.Errorf("ConsumeForDelivery %d: %v", i, err)
			}
			entryIDs[i] = id
		}(i)
	}
	wg.Wait()

	var sum int64
	consumptions := 0
	seen := make(map[int64]bool)
	for _, e := range ledger.entries {
		sum += e.Amount
		if e.EntryType == repository.EntryConsumption {
			consumptions++
		}
		if seen[e.Seq] {
			t.Fatalf("seq %d assigned twice", e.Seq)
		}
		seen[e.Seq] = true
	}
	if consumptions != 1 {
		t.Fatalf("consumptions = %d, want exactly one per lead offer", consumptions)
	}
	for i := int64(1); i <= int64(len(ledger.entries)); i++ {
		if !seen[i] {
			t.Fatalf("seq chain has a gap at %d", i)
		}
	}

	balance, err := svc.Balance(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	want := int64((purchases+1)*10 - 10)
	if balance != want || sum != want {
		t.Fatalf("balance = %d, running sum = %d, want %d", balance, sum, want)
	}

	for i, id := range entryIDs {
		if id != entryIDs[0] {
			t.Fatalf("racer %d got entry %s, racer 0 got %s; debit must be exactly-once", i, id, entryIDs[0])
		}
	}
}

func TestGrantBonus_BalanceChainStaysGapless(t *testing.T) {
	svc, ledger, _, tenantID := newService(0)

	if err := svc.Purchase(context.Background(), tenantID, 100, "pay-1"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if err := svc.GrantBonus(context.Background(), tenantID, 20, "promo-aug", "launch promo"); err != nil {
		t.Fatalf("GrantBonus: %v", err)
	}
	if _, err := svc.ConsumeForDelivery(context.Background(), nil, tenantID, uuid.New(), 30); err != nil {
		t.Fatalf("ConsumeForDelivery: %v", err)
	}

	var running int64
	for i, e := range ledger.entries {
		running += e.Amount
		if e.BalanceAfter != running {
			t.Fatalf("entry %d balance_after = %d, want %d", i, e.BalanceAfter, running)
		}
	}
	if running != 90 {
		t.Fatalf("final balance = %d, want 90", running)
	}
}
