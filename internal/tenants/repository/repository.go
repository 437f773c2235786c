package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

const tenantColumns = `id, name, channel_phone, meta_page_id, active, settings, created_at, updated_at`

func (r *Repository) GetTenant(ctx context.Context, tenantID uuid.UUID) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("tenant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// GetTenantByChannelPhone resolves the tenant an inbound conversation event
// belongs to, keyed on the business number the message was sent to.
func (r *Repository) GetTenantByChannelPhone(ctx context.Context, phone string) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE channel_phone = $1 AND active`, phone)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no tenant for channel phone")
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by channel phone: %w", err)
	}
	return t, nil
}

// GetTenantByMetaPage resolves the owner of a Meta page so leadgen events
// from unmapped campaigns can enter PENDING_MAPPING instead of being dropped.
func (r *Repository) GetTenantByMetaPage(ctx context.Context, pageID string) (*Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE meta_page_id = $1 AND active`, pageID)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no tenant for meta page")
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by meta page: %w", err)
	}
	return t, nil
}

func (r *Repository) CreateTenant(ctx context.Context, name, channelPhone, metaPageID string, settings Settings) (*Tenant, error) {
	doc, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenants (name, channel_phone, meta_page_id, active, settings)
		VALUES ($1, $2, $3, true, $4)
		RETURNING `+tenantColumns,
		name, channelPhone, metaPageID, doc)
	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

func (r *Repository) UpdateSettings(ctx context.Context, tenantID uuid.UUID, settings Settings) error {
	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE tenants SET settings = $2, updated_at = now() WHERE id = $1`, tenantID, doc)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("tenant not found")
	}
	return nil
}

func (r *Repository) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *Repository) GetOffer(ctx context.Context, tenantID, offerID uuid.UUID) (*Offer, error) {
	var o Offer
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, active, created_at, updated_at
		FROM offers WHERE id = $1 AND tenant_id = $2`, offerID, tenantID).
		Scan(&o.ID, &o.TenantID, &o.Name, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("offer not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return &o, nil
}

func (r *Repository) CreateOffer(ctx context.Context, tenantID uuid.UUID, name string) (*Offer, error) {
	var o Offer
	err := r.pool.QueryRow(ctx, `
		INSERT INTO offers (tenant_id, name, active) VALUES ($1, $2, true)
		RETURNING id, tenant_id, name, active, created_at, updated_at`,
		tenantID, name).
		Scan(&o.ID, &o.TenantID, &o.Name, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}
	return &o, nil
}

func (r *Repository) ListOffers(ctx context.Context, tenantID uuid.UUID) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, active, created_at, updated_at
		FROM offers WHERE tenant_id = $1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.TenantID, &o.Name, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ResolveCampaign looks up the tenant and offer a campaign identifier maps
// to. Not found is the PENDING_MAPPING path, so callers must distinguish it.
func (r *Repository) ResolveCampaign(ctx context.Context, source, campaignID string) (*CampaignMapping, error) {
	var m CampaignMapping
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, offer_id, source, campaign_id, created_at
		FROM campaign_mappings WHERE source = $1 AND campaign_id = $2`,
		source, campaignID).
		Scan(&m.ID, &m.TenantID, &m.OfferID, &m.Source, &m.CampaignID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("campaign not mapped")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve campaign: %w", err)
	}
	return &m, nil
}

func (r *Repository) UpsertCampaignMapping(ctx context.Context, tenantID, offerID uuid.UUID, source, campaignID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO campaign_mappings (tenant_id, offer_id, source, campaign_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, campaign_id)
		DO UPDATE SET tenant_id = EXCLUDED.tenant_id, offer_id = EXCLUDED.offer_id`,
		tenantID, offerID, source, campaignID)
	if err != nil {
		return fmt.Errorf("upsert campaign mapping: %w", err)
	}
	return nil
}

const integrationColumns = `id, tenant_id, kind, name, config, active, created_at, updated_at`

// ListActiveIntegrations returns the delivery destinations a qualified lead
// fans out to, in creation order so delivery results are stable.
func (r *Repository) ListActiveIntegrations(ctx context.Context, tenantID uuid.UUID) ([]Integration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+integrationColumns+` FROM tenant_integrations
		WHERE tenant_id = $1 AND active ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active integrations: %w", err)
	}
	defer rows.Close()
	return collectIntegrations(rows)
}

func (r *Repository) ListIntegrations(ctx context.Context, tenantID uuid.UUID) ([]Integration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+integrationColumns+` FROM tenant_integrations
		WHERE tenant_id = $1 ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()
	return collectIntegrations(rows)
}

func (r *Repository) CreateIntegration(ctx context.Context, tenantID uuid.UUID, kind, name string, config map[string]string) (*Integration, error) {
	doc, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal integration config: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tenant_integrations (tenant_id, kind, name, config, active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING `+integrationColumns,
		tenantID, kind, name, doc)
	in, err := scanIntegration(row)
	if err != nil {
		return nil, fmt.Errorf("insert integration: %w", err)
	}
	return in, nil
}

func (r *Repository) SetIntegrationActive(ctx context.Context, tenantID, integrationID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenant_integrations SET active = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`, integrationID, tenantID, active)
	if err != nil {
		return fmt.Errorf("set integration active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("integration not found")
	}
	return nil
}

// GetScoringTemplate returns the template for an offer, falling back to the
// tenant-wide default (offer_id IS NULL) when no offer-specific one exists.
func (r *Repository) GetScoringTemplate(ctx context.Context, tenantID uuid.UUID, offerID *uuid.UUID) (*ScoringTemplate, error) {
	var t ScoringTemplate
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, offer_id, name, document, created_at, updated_at
		FROM scoring_templates
		WHERE tenant_id = $1 AND (offer_id = $2 OR offer_id IS NULL)
		ORDER BY offer_id NULLS LAST LIMIT 1`,
		tenantID, offerID).
		Scan(&t.ID, &t.TenantID, &t.OfferID, &t.Name, &t.Document, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no scoring template configured")
	}
	if err != nil {
		return nil, fmt.Errorf("get scoring template: %w", err)
	}
	return &t, nil
}

func (r *Repository) UpsertScoringTemplate(ctx context.Context, tenantID uuid.UUID, offerID *uuid.UUID, name string, document []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scoring_templates (tenant_id, offer_id, name, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, offer_id)
		DO UPDATE SET name = EXCLUDED.name, document = EXCLUDED.document, updated_at = now()`,
		tenantID, offerID, name, document)
	if err != nil {
		return fmt.Errorf("upsert scoring template: %w", err)
	}
	return nil
}

func scanTenant(row pgx.Row) (*Tenant, error) {
	var (
		t   Tenant
		doc []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.ChannelPhone, &t.MetaPageID, &t.Active, &doc, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &t.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &t, nil
}

func scanIntegration(row pgx.Row) (*Integration, error) {
	var (
		in  Integration
		doc []byte
	)
	err := row.Scan(&in.ID, &in.TenantID, &in.Kind, &in.Name, &doc, &in.Active, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &in.Config); err != nil {
			return nil, fmt.Errorf("unmarshal integration config: %w", err)
		}
	}
	return &in, nil
}

func collectIntegrations(rows pgx.Rows) ([]Integration, error) {
	var out []Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}
