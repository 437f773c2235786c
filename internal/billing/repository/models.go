// Package repository provides data access for the append-only credit
// ledger. Entries are never updated or deleted; the current balance is the
// balance_after of the highest-seq entry.
package repository

import (
	"time"

	"github.com/google/uuid"
)

// Entry types. Amount carries the sign: purchases, bonuses and refunds are
// positive, consumptions and clawback adjustments negative.
const (
	EntryPurchase    = "PURCHASE"
	EntryConsumption = "CONSUMPTION"
	EntryRefund      = "REFUND"
	EntryAdjustment  = "ADJUSTMENT"
	EntryBonus       = "BONUS"
)

// Entry is one immutable ledger row.
type Entry struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Seq          int64 // per-tenant append position; the newest entry has the highest seq
	EntryType    string
	Amount       int64 // signed delta in credits
	BalanceAfter int64
	Reference    string     // external payment id or internal cause
	LeadOfferID  *uuid.UUID // set on CONSUMPTION and delivery REFUND rows
	Note         string
	CreatedAt    time.Time
}
