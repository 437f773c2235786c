package repository

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const deliveryColumns = `id, lead_offer_id, tenant_id, status, attempt, max_attempts,
	snapshot, last_error, ledger_entry_id, retry_pending, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying pool for the delivered-and-billed transaction.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// Create inserts a PENDING delivery with its payload snapshot.
func (r *Repository) Create(ctx context.Context, leadOfferID, tenantID uuid.UUID, snapshot []byte, maxAttempts int) (*Delivery, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO deliveries (lead_offer_id, tenant_id, status, attempt, max_attempts, snapshot)
		VALUES ($1, $2, $3, 0, $4, $5)
		RETURNING %s`, deliveryColumns),
		leadOfferID, tenantID, StatusPending, maxAttempts, snapshot)
	return scanDelivery(row)
}

func (r *Repository) Get(ctx context.Context, deliveryID uuid.UUID) (*Delivery, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM deliveries WHERE id = $1`, deliveryColumns), deliveryID)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("delivery not found")
	}
	return d, err
}

// LatestByLeadOffer returns the newest delivery for the offer, or KindNotFound.
func (r *Repository) LatestByLeadOffer(ctx context.Context, leadOfferID uuid.UUID) (*Delivery, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM deliveries WHERE lead_offer_id = $1
		ORDER BY created_at DESC LIMIT 1`, deliveryColumns), leadOfferID)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no delivery for lead offer")
	}
	return d, err
}

// RecordResults appends the per-integration outcomes of one attempt.
func (r *Repository) RecordResults(ctx context.Context, deliveryID uuid.UUID, results []Result) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record results: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, res := range results {
		_, err := tx.Exec(ctx, `
			INSERT INTO delivery_results (delivery_id, integration_id, kind, attempt, succeeded, error)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			deliveryID, res.IntegrationID, res.Kind, res.Attempt, res.Succeeded, res.Error)
		if err != nil {
			return fmt.Errorf("insert delivery result: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// SucceededIntegrations returns the ids of integrations that have already
// succeeded for this delivery across all attempts. Retries skip them.
func (r *Repository) SucceededIntegrations(ctx context.Context, deliveryID uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT integration_id FROM delivery_results
		WHERE delivery_id = $1 AND succeeded`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list succeeded integrations: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan integration id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ListResults returns every recorded integration outcome for a delivery.
func (r *Repository) ListResults(ctx context.Context, deliveryID uuid.UUID) ([]Result, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, delivery_id, integration_id, kind, attempt, succeeded, error, created_at
		FROM delivery_results WHERE delivery_id = $1
		ORDER BY created_at`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list delivery results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ID, &res.DeliveryID, &res.IntegrationID, &res.Kind,
			&res.Attempt, &res.Succeeded, &res.Error, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// UpdateAfterAttempt records the outcome of an attempt: new status, attempt
// counter, last error and whether a retry has been enqueued.
func (r *Repository) UpdateAfterAttempt(ctx context.Context, deliveryID uuid.UUID, status string, attempt int, lastError string, retryPending bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deliveries
		SET status = $2, attempt = $3, last_error = $4, retry_pending = $5, updated_at = now()
		WHERE id = $1`, deliveryID, status, attempt, lastError, retryPending)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("delivery not found")
	}
	return nil
}

// ClaimRetry atomically consumes the retry_pending flag. Returns false when
// another worker already claimed the retry or none was scheduled.
func (r *Repository) ClaimRetry(ctx context.Context, deliveryID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deliveries SET retry_pending = false, updated_at = now()
		WHERE id = $1 AND retry_pending`, deliveryID)
	if err != nil {
		return false, fmt.Errorf("claim retry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SettleInTx flips the delivery to DELIVERED and links the ledger entry,
// inside the caller's transaction so the debit and the status change commit
// together.
func (r *Repository) SettleInTx(ctx context.Context, tx pgx.Tx, deliveryID, ledgerEntryID uuid.UUID, attempt int, lastError string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE deliveries
		SET status = $2, attempt = $3, ledger_entry_id = $4, last_error = $5, retry_pending = false, updated_at = now()
		WHERE id = $1 AND status NOT IN ($2, $6)`,
		deliveryID, StatusDelivered, attempt, ledgerEntryID, lastError,
		StatusRefunded)
	if err != nil {
		return fmt.Errorf("settle delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.StaleState("delivery already settled")
	}
	return nil
}

// MarkRefunded settles a billed delivery as refunded.
func (r *Repository) MarkRefunded(ctx context.Context, deliveryID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deliveries SET status = $2, retry_pending = false, updated_at = now()
		WHERE id = $1 AND status = $3`,
		deliveryID, StatusRefunded, StatusDelivered)
	if err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("only billed deliveries can be refunded")
	}
	return nil
}

// ListByTenant returns deliveries newest-first, optionally filtered by status.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID, status *string, limit, offset int) ([]Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM deliveries WHERE tenant_id = $1`, deliveryColumns)
	args := []any{tenantID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDelivery(row scannable) (*Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.LeadOfferID, &d.TenantID, &d.Status, &d.Attempt, &d.MaxAttempts,
		&d.Snapshot, &d.LastError, &d.LedgerEntryID, &d.RetryPending, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	return &d, nil
}
