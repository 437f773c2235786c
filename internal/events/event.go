// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadCreated is published when a new lead identity is registered.
type LeadCreated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Phone    string    `json:"phone"`
	Source   string    `json:"source"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadOfferTransitioned is published after every committed status transition.
type LeadOfferTransitioned struct {
	BaseEvent
	LeadOfferID uuid.UUID `json:"leadOfferId"`
	TenantID    uuid.UUID `json:"tenantId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Cause       string    `json:"cause"`
}

func (e LeadOfferTransitioned) EventName() string { return "leads.offer.transitioned" }

// LeadOfferReady is published when a lead offer reaches LEAD_READY.
// The delivery module subscribes to it to start dispatch.
type LeadOfferReady struct {
	BaseEvent
	LeadOfferID uuid.UUID `json:"leadOfferId"`
	TenantID    uuid.UUID `json:"tenantId"`
	Score       int       `json:"score"`
}

func (e LeadOfferReady) EventName() string { return "leads.offer.ready" }

// LeadOfferCooling is published when an offer enters COOLING so the
// scheduler can plan the re-engagement probe.
type LeadOfferCooling struct {
	BaseEvent
	LeadOfferID uuid.UUID `json:"leadOfferId"`
	TenantID    uuid.UUID `json:"tenantId"`
}

func (e LeadOfferCooling) EventName() string { return "leads.offer.cooling" }

// =============================================================================
// Delivery Events
// =============================================================================

// DeliveryCompleted is published when a delivery reaches DELIVERED.
type DeliveryCompleted struct {
	BaseEvent
	DeliveryID  uuid.UUID `json:"deliveryId"`
	LeadOfferID uuid.UUID `json:"leadOfferId"`
	TenantID    uuid.UUID `json:"tenantId"`
}

func (e DeliveryCompleted) EventName() string { return "delivery.completed" }

// DeliveryDeadLettered is published when a delivery exhausts its retries.
// Operations staff are notified out-of-band; manual intervention is required.
type DeliveryDeadLettered struct {
	BaseEvent
	DeliveryID  uuid.UUID `json:"deliveryId"`
	LeadOfferID uuid.UUID `json:"leadOfferId"`
	TenantID    uuid.UUID `json:"tenantId"`
	LastError   string    `json:"lastError"`
}

func (e DeliveryDeadLettered) EventName() string { return "delivery.dead_lettered" }

// =============================================================================
// Billing Events
// =============================================================================

// CreditsPurchased is published when a payment event credits the ledger.
type CreditsPurchased struct {
	BaseEvent
	TenantID     uuid.UUID `json:"tenantId"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
}

func (e CreditsPurchased) EventName() string { return "billing.credits.purchased" }

// LowBalance is published after an append leaves the tenant at or below
// its low-balance watermark.
type LowBalance struct {
	BaseEvent
	TenantID  uuid.UUID `json:"tenantId"`
	Balance   int64     `json:"balance"`
	Watermark int64     `json:"watermark"`
}

func (e LowBalance) EventName() string { return "billing.low_balance" }
