package service

import (
	"context"
	"fmt"

	"leadflow_backend/internal/delivery/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxBiller appends the consumption entry inside an open transaction.
// *billing service.Service implements it.
type TxBiller interface {
	ConsumeForDelivery(ctx context.Context, tx pgx.Tx, tenantID, leadOfferID uuid.UUID, price int64) (uuid.UUID, error)
}

// PgSettler commits the delivery settle and the credit debit in one
// transaction: either both land or neither does.
type PgSettler struct {
	pool   *pgxpool.Pool
	repo   *repository.Repository
	biller TxBiller
}

func NewPgSettler(pool *pgxpool.Pool, repo *repository.Repository, biller TxBiller) *PgSettler {
	return &PgSettler{pool: pool, repo: repo, biller: biller}
}

func (p *PgSettler) SettleBilled(ctx context.Context, d *repository.Delivery, attempt int, lastError string, price int64) (uuid.UUID, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	entryID, err := p.biller.ConsumeForDelivery(ctx, tx, d.TenantID, d.LeadOfferID, price)
	if err != nil {
		return uuid.Nil, err
	}
	if err := p.repo.SettleInTx(ctx, tx, d.ID, entryID, attempt, lastError); err != nil {
		return uuid.Nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit settle: %w", err)
	}
	return entryID, nil
}
