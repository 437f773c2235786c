package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Processing outcomes recorded on external_events rows.
const (
	OutcomeProcessed     = "PROCESSED"
	OutcomeDuplicate     = "DUPLICATE"
	OutcomeUnprocessable = "UNPROCESSABLE"
)

// ExternalEvent is the durable audit record of one verified webhook
// delivery. Redis answers the fast idempotency check; these rows are the
// archive operators query when a source disputes what was received.
type ExternalEvent struct {
	ID         uuid.UUID
	Source     string
	ExternalID string
	EventType  string
	Payload    []byte
	Outcome    string
	Detail     string
	ReceivedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Archive stores the raw verified payload with its processing outcome.
// Duplicate (source, external id, outcome) rows are tolerated: a replay that
// slipped past Redis after TTL expiry just lands as another DUPLICATE row.
func (r *Repository) Archive(ctx context.Context, source, externalID, eventType string, payload []byte, outcome, detail string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO external_events (source, external_id, event_type, payload, outcome, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		source, externalID, eventType, payload, outcome, detail)
	if err != nil {
		return fmt.Errorf("archive external event: %w", err)
	}
	return nil
}

// PruneBefore deletes archived events older than the cutoff and returns how
// many were removed.
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM external_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune external events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListBySource returns recent archived events for operator inspection.
func (r *Repository) ListBySource(ctx context.Context, source string, limit int) ([]ExternalEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source, external_id, event_type, payload, outcome, detail, received_at
		FROM external_events WHERE source = $1
		ORDER BY received_at DESC LIMIT $2`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("list external events: %w", err)
	}
	defer rows.Close()

	var out []ExternalEvent
	for rows.Next() {
		var e ExternalEvent
		if err := rows.Scan(&e.ID, &e.Source, &e.ExternalID, &e.EventType, &e.Payload, &e.Outcome, &e.Detail, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan external event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
