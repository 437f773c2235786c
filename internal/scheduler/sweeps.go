package scheduler

import (
	"context"
	"time"

	leadsvc "leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/webhook"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultCoolingSweepInterval      = 15 * time.Minute
	defaultReactivationSweepInterval = time.Hour
	defaultArchiveSweepInterval      = 24 * time.Hour
	defaultArchiveRetention          = 30 * 24 * time.Hour
)

// LifecycleSweeper runs the periodic lifecycle jobs: moving silent QUALIFYING
// offers to COOLING and probing or stopping cooled offers.
type LifecycleSweeper struct {
	leads                *leadsvc.Service
	log                  *logger.Logger
	coolingInterval      time.Duration
	reactivationInterval time.Duration
}

func NewLifecycleSweeper(leads *leadsvc.Service, log *logger.Logger) *LifecycleSweeper {
	return &LifecycleSweeper{
		leads:                leads,
		log:                  log,
		coolingInterval:      defaultCoolingSweepInterval,
		reactivationInterval: defaultReactivationSweepInterval,
	}
}

func (s *LifecycleSweeper) Run(ctx context.Context) {
	if s == nil || s.leads == nil {
		return
	}

	s.sweepCooling(ctx)
	s.sweepReactivation(ctx)

	cooling := time.NewTicker(s.coolingInterval)
	reactivation := time.NewTicker(s.reactivationInterval)
	defer cooling.Stop()
	defer reactivation.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cooling.C:
			s.sweepCooling(ctx)
		case <-reactivation.C:
			s.sweepReactivation(ctx)
		}
	}
}

func (s *LifecycleSweeper) sweepCooling(ctx context.Context) {
	moved, err := s.leads.SweepCooling(ctx)
	if err != nil {
		s.log.Warn("cooling sweep failed", "error", err, "moved", moved)
		return
	}
	if moved > 0 {
		s.log.Info("cooling sweep moved stalled offers", "moved", moved)
	}
}

func (s *LifecycleSweeper) sweepReactivation(ctx context.Context) {
	probed, err := s.leads.RunReactivation(ctx)
	if err != nil {
		s.log.Warn("reactivation sweep failed", "error", err, "probed", probed)
		return
	}
	if probed > 0 {
		s.log.Info("reactivation sweep probed cooled offers", "probed", probed)
	}
}

// ArchiveSweeper prunes expired rows from the webhook event archive. Redis
// keys expire on their own; the Postgres mirror needs this janitor.
type ArchiveSweeper struct {
	repo      *webhook.Repository
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewArchiveSweeper(pool *pgxpool.Pool, log *logger.Logger, interval, retention time.Duration) *ArchiveSweeper {
	if interval <= 0 {
		interval = defaultArchiveSweepInterval
	}
	if retention <= 0 {
		retention = defaultArchiveRetention
	}
	return &ArchiveSweeper{
		repo:      webhook.NewRepository(pool),
		log:       log,
		interval:  interval,
		retention: retention,
	}
}

func (s *ArchiveSweeper) Run(ctx context.Context) {
	if s == nil || s.repo == nil {
		return
	}

	s.prune(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.prune(ctx)
		}
	}
}

func (s *ArchiveSweeper) prune(ctx context.Context) {
	deleted, err := s.repo.PruneBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		s.log.Warn("archive prune failed", "error", err)
		return
	}
	if deleted > 0 {
		s.log.Info("archive prune deleted expired events", "deleted", deleted)
	}
}
