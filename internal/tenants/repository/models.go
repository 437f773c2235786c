// Package repository provides data access for tenants, their offers,
// channel campaign mappings, delivery integrations and scoring templates.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a paying customer of the platform. ChannelPhone is the messaging
// business number inbound conversation events are matched against.
type Tenant struct {
	ID           uuid.UUID
	Name         string
	ChannelPhone string
	MetaPageID   string // attributes unmapped-campaign leadgen events to the page owner
	Active       bool
	Settings     Settings
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Settings are the per-tenant knobs stored as a JSONB document. Zero values
// fall back to the defaults below at read time.
type Settings struct {
	ScoreThreshold            int    `json:"score_threshold"`
	MinSuccessfulIntegrations int    `json:"min_successful_integrations"` // 0 = all active must succeed
	InactivityHours           int    `json:"inactivity_hours"`
	ReactivationMaxAttempts   int    `json:"reactivation_max_attempts"`
	ReactivationCooldownHours int    `json:"reactivation_cooldown_hours"`
	RefundWindowHours         int    `json:"refund_window_hours"`
	LeadPriceCredits          int64  `json:"lead_price_credits"`
	LowBalanceWatermark       int64  `json:"low_balance_watermark"`
	NotifyEmail               string `json:"notify_email"`
}

// Offer is a product a tenant qualifies leads against, e.g. a real estate
// development. Each campaign maps to exactly one offer.
type Offer struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CampaignMapping resolves an ad platform campaign identifier to the offer
// its leads belong to.
type CampaignMapping struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	OfferID    uuid.UUID
	Source     string
	CampaignID string
	CreatedAt  time.Time
}

// Integration is one configured delivery destination for a tenant.
type Integration struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Kind      string // "sheets", "crm" or "callback"
	Name      string
	Config    map[string]string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Integration kinds.
const (
	IntegrationSheets   = "sheets"
	IntegrationCRM      = "crm"
	IntegrationCallback = "callback"
)

// ScoringTemplate associates a stored template document with a tenant and
// optionally a single offer. Offer-specific templates win over the tenant
// default.
type ScoringTemplate struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	OfferID   *uuid.UUID
	Name      string
	Document  []byte // JSONB scoring template
	CreatedAt time.Time
	UpdatedAt time.Time
}
