// Package repository provides data access for deliveries and their
// per-integration attempt results.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Delivery statuses.
const (
	StatusPending    = "PENDING"
	StatusDelivered  = "DELIVERED"
	StatusPartial    = "PARTIAL"
	StatusFailed     = "FAILED"
	StatusDeadLetter = "DEAD_LETTER"
	StatusRefunded   = "REFUNDED"
)

// Delivery is one attempt to hand a scored lead offer to the tenant's
// configured destinations. The payload is snapshotted at creation so retries
// send exactly what the first attempt sent, even if the offer changes later.
type Delivery struct {
	ID            uuid.UUID
	LeadOfferID   uuid.UUID
	TenantID      uuid.UUID
	Status        string
	Attempt       int
	MaxAttempts   int
	Snapshot      []byte // JSONB payload sent to integrations
	LastError     string
	LedgerEntryID *uuid.UUID // set when the CONSUMPTION entry commits
	RetryPending  bool       // guards against double-enqueued retries
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the delivery can never be attempted again.
func (d *Delivery) Terminal() bool {
	switch d.Status {
	case StatusDelivered, StatusDeadLetter, StatusRefunded:
		return true
	}
	return false
}

// Result is the outcome of one integration call within one attempt.
type Result struct {
	ID            uuid.UUID
	DeliveryID    uuid.UUID
	IntegrationID uuid.UUID
	Kind          string
	Attempt       int
	Succeeded     bool
	Error         string
	CreatedAt     time.Time
}
