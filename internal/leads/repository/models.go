// Package repository provides data access for the leads bounded context.
// It is the only component that mutates lead and lead offer state.
package repository

import (
	"time"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// Lead is a normalized contact identity. Created on the first inbound event
// for that identity; never deleted, only archived.
type Lead struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Phone      string // normalized E.164, the stable identity key
	Name       string
	Email      *string
	Source     string
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LeadOffer is one lead evaluated against one tenant offer. Status flows
// exclusively through this entity.
type LeadOffer struct {
	ID                uuid.UUID
	LeadID            uuid.UUID
	TenantID          uuid.UUID
	OfferID           *uuid.UUID // nil while PENDING_MAPPING
	Status            domain.Status
	Version           int
	Qualification     domain.QualificationFields
	Score             *int
	ScoreBreakdown    map[string]int
	ContactAttempts   int
	ReactivationCount int
	LastInboundAt     *time.Time
	StatusChangedAt   time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LifecycleEvent is the audit record written with every committed transition.
type LifecycleEvent struct {
	ID          uuid.UUID
	LeadOfferID uuid.UUID
	FromStatus  domain.Status
	ToStatus    domain.Status
	Cause       string
	Actor       string
	CreatedAt   time.Time
}

// Message is one conversation turn attached to a lead offer.
type Message struct {
	ID          uuid.UUID
	LeadOfferID uuid.UUID
	Direction   string // "inbound" or "outbound"
	Body        string
	ExternalID  string
	CreatedAt   time.Time
}

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Actor names recorded on lifecycle events.
const (
	ActorSystem    = "system"
	ActorDetector  = "disqualification_detector"
	ActorScoring   = "scoring_engine"
	ActorScheduler = "scheduler"
	ActorAdmin     = "admin"
)
