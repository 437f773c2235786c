package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying pool so callers that need the append inside a
// larger transaction (delivery billing) can open it themselves.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// Append writes a ledger entry in its own transaction.
func (r *Repository) Append(ctx context.Context, tenantID uuid.UUID, entryType string, amount int64, reference string, leadOfferID *uuid.UUID, note string) (*Entry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ledger append: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := r.AppendInTx(ctx, tx, tenantID, entryType, amount, reference, leadOfferID, note)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger append: %w", err)
	}
	return entry, nil
}

// AppendInTx writes a ledger entry inside the caller's transaction. It
// serializes appends per tenant with a row lock on the tenant, so the
// balance_after chain is gapless even under concurrent appends, and rejects
// any entry that would drive the balance negative. The entry's seq is
// assigned under the same lock; created_at is transaction-start time and two
// transactions queued on the lock can commit it out of order, so seq is the
// ledger's append order, not created_at.
func (r *Repository) AppendInTx(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, entryType string, amount int64, reference string, leadOfferID *uuid.UUID, note string) (*Entry, error) {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM tenants WHERE id = $1 FOR UPDATE`, tenantID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("tenant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lock tenant for ledger append: %w", err)
	}

	var lastSeq, balance int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(last.seq, 0), COALESCE(last.balance_after, 0)
		FROM (SELECT 1) one
		LEFT JOIN LATERAL (
			SELECT seq, balance_after FROM credit_ledger
			WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1
		) last ON true`, tenantID).Scan(&lastSeq, &balance)
	if err != nil {
		return nil, fmt.Errorf("read ledger head: %w", err)
	}

	newBalance := balance + amount
	if newBalance < 0 {
		return nil, apperr.InsufficientCredits(fmt.Sprintf("balance %d cannot absorb %d", balance, amount))
	}

	var entry Entry
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (tenant_id, seq, entry_type, amount, balance_after, reference, lead_offer_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, tenant_id, seq, entry_type, amount, balance_after, reference, lead_offer_id, note, created_at`,
		tenantID, lastSeq+1, entryType, amount, newBalance, reference, leadOfferID, note).
		Scan(&entry.ID, &entry.TenantID, &entry.Seq, &entry.EntryType, &entry.Amount, &entry.BalanceAfter,
			&entry.Reference, &entry.LeadOfferID, &entry.Note, &entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.Duplicate("ledger entry already recorded for this reference")
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return &entry, nil
}

// Balance returns the tenant's current credit balance.
func (r *Repository) Balance(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT balance_after FROM credit_ledger
			WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1
		), 0)`, tenantID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// History returns the newest ledger entries for a tenant.
func (r *Repository) History(ctx context.Context, tenantID uuid.UUID, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, seq, entry_type, amount, balance_after, reference, lead_offer_id, note, created_at
		FROM credit_ledger WHERE tenant_id = $1
		ORDER BY seq DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Seq, &e.EntryType, &e.Amount, &e.BalanceAfter,
			&e.Reference, &e.LeadOfferID, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ConsumptionFor returns the CONSUMPTION entry recorded for a lead offer, or
// KindNotFound when the offer was never billed.
func (r *Repository) ConsumptionFor(ctx context.Context, leadOfferID uuid.UUID) (*Entry, error) {
	var e Entry
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, seq, entry_type, amount, balance_after, reference, lead_offer_id, note, created_at
		FROM credit_ledger WHERE entry_type = $1 AND lead_offer_id = $2`,
		EntryConsumption, leadOfferID).
		Scan(&e.ID, &e.TenantID, &e.Seq, &e.EntryType, &e.Amount, &e.BalanceAfter,
			&e.Reference, &e.LeadOfferID, &e.Note, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lead offer was never billed")
	}
	if err != nil {
		return nil, fmt.Errorf("read consumption: %w", err)
	}
	return &e, nil
}
