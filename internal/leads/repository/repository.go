package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, tenant_id, phone, name, email, source, archived_at, created_at, updated_at`

// CreateOrGetLead inserts a lead for the normalized phone or returns the
// existing one. The bool reports whether a new row was created.
func (r *Repository) CreateOrGetLead(ctx context.Context, tenantID uuid.UUID, phone, name, source string, email *string) (*Lead, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (tenant_id, phone, name, email, source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, phone) DO NOTHING
		RETURNING `+leadColumns,
		tenantID, phone, name, email, source)

	lead, err := scanLead(row)
	if err == nil {
		return lead, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert lead: %w", err)
	}

	row = r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 AND phone = $2`, tenantID, phone)
	lead, err = scanLead(row)
	if err != nil {
		return nil, false, fmt.Errorf("get lead by phone: %w", err)
	}

	// Enrich sparse identity fields from later events without erasing data.
	if (lead.Name == "" && name != "") || (lead.Email == nil && email != nil) {
		_, err = r.pool.Exec(ctx, `
			UPDATE leads SET
				name = CASE WHEN name = '' THEN $2 ELSE name END,
				email = COALESCE(email, $3),
				updated_at = now()
			WHERE id = $1`, lead.ID, name, email)
		if err != nil {
			return nil, false, fmt.Errorf("enrich lead: %w", err)
		}
	}
	return lead, false, nil
}

func (r *Repository) GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (*Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 AND tenant_id = $2`, leadID, tenantID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lead not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

const offerColumns = `id, lead_id, tenant_id, offer_id, status, version, qualification,
	score, score_breakdown, contact_attempts, reactivation_count, last_inbound_at,
	status_changed_at, created_at, updated_at`

// CreateOrGetOffer inserts a lead offer in the given initial status, or
// returns the existing one for (lead, offer). A nil offerID creates a
// PENDING_MAPPING row awaiting manual assignment; those never deduplicate.
func (r *Repository) CreateOrGetOffer(ctx context.Context, leadID, tenantID uuid.UUID, offerID *uuid.UUID, initial domain.Status) (*LeadOffer, bool, error) {
	if offerID != nil {
		row := r.pool.QueryRow(ctx, `
			SELECT `+offerColumns+` FROM lead_offers WHERE lead_id = $1 AND offer_id = $2`,
			leadID, *offerID)
		existing, err := scanOffer(row)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("get lead offer: %w", err)
		}
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO lead_offers (lead_id, tenant_id, offer_id, status, qualification)
		VALUES ($1, $2, $3, $4, '{}'::jsonb)
		RETURNING `+offerColumns,
		leadID, tenantID, offerID, initial)
	offer, err := scanOffer(row)
	if err != nil {
		return nil, false, fmt.Errorf("insert lead offer: %w", err)
	}
	return offer, true, nil
}

func (r *Repository) GetOffer(ctx context.Context, tenantID, leadOfferID uuid.UUID) (*LeadOffer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+offerColumns+` FROM lead_offers WHERE id = $1 AND tenant_id = $2`, leadOfferID, tenantID)
	offer, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lead offer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get lead offer: %w", err)
	}
	return offer, nil
}

// GetActiveOfferByPhone finds the lead offer an inbound message belongs to:
// the most recent non-terminal offer for that contact within the tenant.
func (r *Repository) GetActiveOfferByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*LeadOffer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+qualify(offerColumns, "lo")+`
		FROM lead_offers lo
		JOIN leads l ON l.id = lo.lead_id
		WHERE lo.tenant_id = $1 AND l.phone = $2
			AND lo.status NOT IN ('SENT_TO_DEVELOPER', 'DISQUALIFIED', 'STOPPED')
		ORDER BY lo.created_at DESC
		LIMIT 1`, tenantID, phone)
	offer, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no active lead offer for phone")
	}
	if err != nil {
		return nil, fmt.Errorf("get active offer by phone: %w", err)
	}
	return offer, nil
}

// Transition moves a lead offer from one status to another with optimistic
// concurrency: the update only commits if the row is still in the expected
// status. A lost race returns KindStaleState so callers can re-read and
// re-evaluate. The lifecycle event is written in the same transaction.
func (r *Repository) Transition(ctx context.Context, leadOfferID uuid.UUID, from, to domain.Status, cause, actor string) error {
	if !domain.CanTransition(from, to) {
		return apperr.IllegalTransition(fmt.Sprintf("no edge %s -> %s", from, to))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE lead_offers
		SET status = $3, version = version + 1, status_changed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2`,
		leadOfferID, from, to)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current domain.Status
		err = tx.QueryRow(ctx, `SELECT status FROM lead_offers WHERE id = $1`, leadOfferID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("lead offer not found")
		}
		if err != nil {
			return fmt.Errorf("read current status: %w", err)
		}
		return apperr.StaleState(fmt.Sprintf("expected %s, found %s", from, current))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO lead_lifecycle_events (lead_offer_id, from_status, to_status, cause, actor)
		VALUES ($1, $2, $3, $4, $5)`,
		leadOfferID, from, to, cause, actor)
	if err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}

	return tx.Commit(ctx)
}

// UpdateQualification overwrites the stored qualification snapshot and score.
// Scores are recomputed from scratch on every pass, never merged.
func (r *Repository) UpdateQualification(ctx context.Context, leadOfferID uuid.UUID, fields domain.QualificationFields, score *int, breakdown map[string]int) error {
	qual, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal qualification: %w", err)
	}
	var bd []byte
	if breakdown != nil {
		if bd, err = json.Marshal(breakdown); err != nil {
			return fmt.Errorf("marshal breakdown: %w", err)
		}
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE lead_offers
		SET qualification = $2, score = $3, score_breakdown = $4, updated_at = now()
		WHERE id = $1`,
		leadOfferID, qual, score, bd)
	if err != nil {
		return fmt.Errorf("update qualification: %w", err)
	}
	return nil
}

// AssignOffer resolves a PENDING_MAPPING row by attaching the offer chosen
// by an operator. Deduplication against an existing (lead, offer) pair is
// the caller's concern.
func (r *Repository) AssignOffer(ctx context.Context, leadOfferID, offerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE lead_offers SET offer_id = $2, updated_at = now()
		WHERE id = $1 AND offer_id IS NULL`,
		leadOfferID, offerID)
	if err != nil {
		return fmt.Errorf("assign offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("lead offer already mapped")
	}
	return nil
}

func (r *Repository) IncrementContactAttempts(ctx context.Context, leadOfferID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_offers SET contact_attempts = contact_attempts + 1, updated_at = now()
		WHERE id = $1`, leadOfferID)
	if err != nil {
		return fmt.Errorf("increment contact attempts: %w", err)
	}
	return nil
}

func (r *Repository) IncrementReactivations(ctx context.Context, leadOfferID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE lead_offers SET reactivation_count = reactivation_count + 1, updated_at = now()
		WHERE id = $1`, leadOfferID)
	if err != nil {
		return fmt.Errorf("increment reactivations: %w", err)
	}
	return nil
}

// RecordMessage stores a conversation turn and, for inbound turns, bumps the
// recency marker used by the cooling sweep.
func (r *Repository) RecordMessage(ctx context.Context, leadOfferID uuid.UUID, direction, body, externalID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record message: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO lead_messages (lead_offer_id, direction, body, external_id)
		VALUES ($1, $2, $3, $4)`,
		leadOfferID, direction, body, externalID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if direction == DirectionInbound {
		_, err = tx.Exec(ctx, `UPDATE lead_offers SET last_inbound_at = now(), updated_at = now() WHERE id = $1`, leadOfferID)
		if err != nil {
			return fmt.Errorf("update last inbound: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *Repository) CountInboundMessages(ctx context.Context, leadOfferID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM lead_messages WHERE lead_offer_id = $1 AND direction = $2`,
		leadOfferID, DirectionInbound).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count inbound messages: %w", err)
	}
	return n, nil
}

func (r *Repository) ListMessages(ctx context.Context, leadOfferID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_offer_id, direction, body, external_id, created_at
		FROM lead_messages WHERE lead_offer_id = $1
		ORDER BY created_at ASC LIMIT $2`, leadOfferID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.LeadOfferID, &m.Direction, &m.Body, &m.ExternalID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListStalledQualifying returns a tenant's offers still QUALIFYING whose
// last inbound message is older than the cutoff. Used by the cooling sweep.
func (r *Repository) ListStalledQualifying(ctx context.Context, tenantID uuid.UUID, cutoff time.Time, limit int) ([]LeadOffer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM lead_offers
		WHERE tenant_id = $1 AND status = $2
			AND last_inbound_at IS NOT NULL AND last_inbound_at < $3
		ORDER BY last_inbound_at ASC LIMIT $4`,
		tenantID, domain.StatusQualifying, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stalled qualifying: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

// ListCoolingCandidates returns COOLING offers eligible for a reactivation
// attempt: cooled long enough and still under the tenant's attempt budget.
func (r *Repository) ListCoolingCandidates(ctx context.Context, tenantID uuid.UUID, cooledBefore time.Time, maxAttempts, limit int) ([]LeadOffer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM lead_offers
		WHERE tenant_id = $1 AND status = $2
			AND status_changed_at < $3 AND reactivation_count < $4
		ORDER BY status_changed_at ASC LIMIT $5`,
		tenantID, domain.StatusCooling, cooledBefore, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list cooling candidates: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

// ListCoolingExhausted returns COOLING offers that already spent the
// tenant's reactivation budget and should be stopped.
func (r *Repository) ListCoolingExhausted(ctx context.Context, tenantID uuid.UUID, cooledBefore time.Time, maxAttempts, limit int) ([]LeadOffer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM lead_offers
		WHERE tenant_id = $1 AND status = $2
			AND status_changed_at < $3 AND reactivation_count >= $4
		ORDER BY status_changed_at ASC LIMIT $5`,
		tenantID, domain.StatusCooling, cooledBefore, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list cooling exhausted: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

// ListReady returns LEAD_READY offers oldest-first, so a credit top-up
// releases stranded offers in the order they became ready.
func (r *Repository) ListReady(ctx context.Context, tenantID uuid.UUID, limit int) ([]LeadOffer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM lead_offers
		WHERE tenant_id = $1 AND status = $2
		ORDER BY status_changed_at ASC LIMIT $3`,
		tenantID, domain.StatusLeadReady, limit)
	if err != nil {
		return nil, fmt.Errorf("list ready offers: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID, status *domain.Status, limit, offset int) ([]LeadOffer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+offerColumns+` FROM lead_offers
		WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		tenantID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()
	return collectOffers(rows)
}

// Timeline returns the lifecycle audit trail for a lead offer, oldest first.
func (r *Repository) Timeline(ctx context.Context, leadOfferID uuid.UUID) ([]LifecycleEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_offer_id, from_status, to_status, cause, actor, created_at
		FROM lead_lifecycle_events WHERE lead_offer_id = $1
		ORDER BY created_at ASC`, leadOfferID)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle events: %w", err)
	}
	defer rows.Close()

	var out []LifecycleEvent
	for rows.Next() {
		var e LifecycleEvent
		if err := rows.Scan(&e.ID, &e.LeadOfferID, &e.FromStatus, &e.ToStatus, &e.Cause, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.TenantID, &l.Phone, &l.Name, &l.Email, &l.Source,
		&l.ArchivedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanOffer(row pgx.Row) (*LeadOffer, error) {
	var (
		o    LeadOffer
		qual []byte
		bd   []byte
	)
	err := row.Scan(&o.ID, &o.LeadID, &o.TenantID, &o.OfferID, &o.Status, &o.Version,
		&qual, &o.Score, &bd, &o.ContactAttempts, &o.ReactivationCount,
		&o.LastInboundAt, &o.StatusChangedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(qual) > 0 {
		if err := json.Unmarshal(qual, &o.Qualification); err != nil {
			return nil, fmt.Errorf("unmarshal qualification: %w", err)
		}
	}
	if len(bd) > 0 {
		if err := json.Unmarshal(bd, &o.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
	}
	return &o, nil
}

func collectOffers(rows pgx.Rows) ([]LeadOffer, error) {
	var out []LeadOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead offer: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// qualify prefixes each column in a comma-separated list with a table alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
