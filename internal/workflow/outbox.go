package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxStatus values. Failed records stay pending with an error until
// the retry limit is reached.
const (
	statusPending    = "PENDING"
	statusDispatched = "DISPATCHED"
	statusFailed     = "FAILED"

	maxAttempts = 5
)

// OutboxRecord is a stored notification awaiting delivery.
type OutboxRecord struct {
	ID             uuid.UUID
	Name           string
	ServiceOrderID uuid.UUID
	ProviderID     *uuid.UUID
	CorrelationID  string
	Payload        []byte
	Status         string
	Attempts       int
	LastError      *string
	RunAt          time.Time
	CreatedAt      time.Time
}

// OutboxRepository stores and claims workflow notifications.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Enqueue stores a notification for asynchronous delivery.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflow_outbox (
			id, name, service_order_id, provider_id, correlation_id,
			payload, status, attempts, run_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW(), NOW())`,
		msg.ID, msg.Name, msg.ServiceOrderID, msg.ProviderID,
		msg.CorrelationID, payload, statusPending,
	)
	if err != nil {
		return fmt.Errorf("enqueue workflow notification: %w", err)
	}
	return nil
}

// ClaimPending atomically claims up to limit due records for delivery.
// SKIP LOCKED keeps concurrent drain runs from claiming the same rows.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE workflow_outbox
		SET attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM workflow_outbox
			WHERE status = $1 AND run_at <= NOW()
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, service_order_id, provider_id, correlation_id,
		          payload, status, attempts, last_error, run_at, created_at`,
		statusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox records: %w", err)
	}
	defer rows.Close()

	var out []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(
			&rec.ID, &rec.Name, &rec.ServiceOrderID, &rec.ProviderID,
			&rec.CorrelationID, &rec.Payload, &rec.Status, &rec.Attempts,
			&rec.LastError, &rec.RunAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outbox records: %w", err)
	}
	return out, nil
}

// MarkDispatched closes a delivered record.
func (r *OutboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE workflow_outbox
		SET status = $2, last_error = NULL
		WHERE id = $1`, id, statusDispatched)
	if err != nil {
		return fmt.Errorf("mark outbox record dispatched: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure. The record is retried with a
// delay until the attempt limit, then parked as failed.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE workflow_outbox
		SET status = CASE WHEN attempts >= $3 THEN $4 ELSE $2 END,
		    last_error = $5,
		    run_at = NOW() + make_interval(secs => attempts * 30)
		WHERE id = $1`,
		id, statusPending, maxAttempts, statusFailed, cause)
	if err != nil {
		return fmt.Errorf("mark outbox record failed: %w", err)
	}
	return nil
}

// OutboxNotifier implements Notifier by storing notifications in the
// outbox table. The scheduler drains it.
type OutboxNotifier struct {
	repo *OutboxRepository
}

func NewOutboxNotifier(repo *OutboxRepository) *OutboxNotifier {
	return &OutboxNotifier{repo: repo}
}

func (n *OutboxNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	return n.repo.Enqueue(ctx, msg)
}

var _ Notifier = (*OutboxNotifier)(nil)
