// Package repository persists assignments. All offer resolutions use
// conditional updates so concurrent responses race on the database row,
// not in application code.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchcore/internal/assignment/domain"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/tenant"
	"dispatchcore/platform/apperr"
)

type AssignmentRepository struct {
	pool *pgxpool.Pool
}

func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{pool: pool}
}

const assignmentColumns = `
	id, service_order_id, provider_id, work_team_id,
	country_code, business_unit, state, mode, rank, score,
	decline_reason, correlation_id, funnel_data,
	offered_at, offer_expires_at, resolved_at, created_at, updated_at
`

// CreateBatch inserts the assignments of one dispatch run and applies
// the order linkage in a single transaction. Either everything is
// persisted or nothing is.
func (r *AssignmentRepository) CreateBatch(ctx context.Context, ten tenant.Tenant, assignments []domain.Assignment, upd orders.AssignmentUpdate) ([]domain.Assignment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin dispatch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]domain.Assignment, 0, len(assignments))
	for _, a := range assignments {
		row := tx.QueryRow(ctx, `
			INSERT INTO assignments (
				id, service_order_id, provider_id, work_team_id,
				country_code, business_unit, state, mode, rank, score,
				decline_reason, correlation_id, funnel_data,
				offered_at, offer_expires_at, resolved_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
			RETURNING `+assignmentColumns,
			a.ID, a.ServiceOrderID, a.ProviderID, a.WorkTeamID,
			a.CountryCode, a.BusinessUnit, a.State, a.Mode, a.Rank, a.Score,
			a.DeclineReason, a.CorrelationID, a.FunnelData,
			a.OfferedAt, a.OfferExpiresAt, a.ResolvedAt,
		)
		inserted, err := scanAssignment(row)
		if err != nil {
			return nil, fmt.Errorf("insert assignment: %w", err)
		}
		created = append(created, inserted)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE service_orders
		SET status = $4, provider_id = $5, work_team_id = $6, updated_at = NOW()
		WHERE country_code = $1 AND business_unit = $2 AND id = $3`,
		ten.CountryCode, ten.BusinessUnit, upd.OrderID,
		upd.Status, upd.ProviderID, upd.WorkTeamID,
	)
	if err != nil {
		return nil, fmt.Errorf("link service order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFound("service order not found").
			WithCode(apperr.CodeServiceOrderNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit dispatch transaction: %w", err)
	}
	return created, nil
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE id = $1`, id)

	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Assignment{}, apperr.NotFound("assignment not found").
				WithCode(apperr.CodeAssignmentNotFound)
		}
		return domain.Assignment{}, fmt.Errorf("load assignment: %w", err)
	}
	return a, nil
}

// Accept resolves an open offer in the provider's favor. The state
// condition makes concurrent responses race on the row: exactly one
// resolution succeeds, later ones see zero affected rows.
func (r *AssignmentRepository) Accept(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET state = $2, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND state = $3
		  AND (offer_expires_at IS NULL OR offer_expires_at > NOW())
		RETURNING `+assignmentColumns,
		id, domain.StateAccepted, domain.StateOffered)

	return r.resolveResult(ctx, row, id, domain.StateAccepted)
}

// Decline resolves an open offer against the provider.
func (r *AssignmentRepository) Decline(ctx context.Context, id uuid.UUID, reason string) (domain.Assignment, error) {
	var declineReason *string
	if reason != "" {
		declineReason = &reason
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET state = $2, decline_reason = $4, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND state = $3
		  AND (offer_expires_at IS NULL OR offer_expires_at > NOW())
		RETURNING `+assignmentColumns,
		id, domain.StateDeclined, domain.StateOffered, declineReason)

	return r.resolveResult(ctx, row, id, domain.StateDeclined)
}

// MarkTimeout flips an expired offer to TIMEOUT. It is idempotent: when
// the offer was already resolved the current row is returned unchanged,
// so lazy expiry on read and the background sweep cannot disagree.
func (r *AssignmentRepository) MarkTimeout(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET state = $2, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND state = $3
		  AND offer_expires_at IS NOT NULL
		  AND offer_expires_at <= NOW()
		RETURNING `+assignmentColumns,
		id, domain.StateTimeout, domain.StateOffered)

	a, err := scanAssignment(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, fmt.Errorf("mark assignment timeout: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Cancel withdraws an assignment that has not been resolved yet.
func (r *AssignmentRepository) Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Assignment, error) {
	var cancelReason *string
	if reason != "" {
		cancelReason = &reason
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET state = $2, decline_reason = $5, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state IN ($3, $4)
		RETURNING `+assignmentColumns,
		id, domain.StateCancelled, domain.StateCreated, domain.StateOffered, cancelReason)

	return r.resolveResult(ctx, row, id, domain.StateCancelled)
}

// MarkReassigned closes a declined, timed out or cancelled assignment
// after a replacement has been dispatched.
func (r *AssignmentRepository) MarkReassigned(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET state = $2, updated_at = NOW()
		WHERE id = $1 AND state IN ($3, $4, $5)
		RETURNING `+assignmentColumns,
		id, domain.StateReassigned, domain.StateDeclined, domain.StateTimeout, domain.StateCancelled)

	return r.resolveResult(ctx, row, id, domain.StateReassigned)
}

// PromoteNextCreated offers the order to its best waiting candidate.
// The subselect takes the lowest rank still in CREATED; SKIP LOCKED
// keeps concurrent sweeps from promoting the same row twice. Returns
// false when nobody is waiting.
func (r *AssignmentRepository) PromoteNextCreated(ctx context.Context, serviceOrderID uuid.UUID, offeredAt, expiresAt time.Time) (domain.Assignment, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE assignments
		SET state = $2, offered_at = $3, offer_expires_at = $4, updated_at = NOW()
		WHERE id = (
			SELECT id FROM assignments
			WHERE service_order_id = $1 AND state = $5
			ORDER BY rank
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+assignmentColumns,
		serviceOrderID, domain.StateOffered, offeredAt, expiresAt, domain.StateCreated)

	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Assignment{}, false, nil
		}
		return domain.Assignment{}, false, fmt.Errorf("promote waiting assignment: %w", err)
	}
	return a, true, nil
}

// CancelSiblings withdraws the other open assignments of a broadcast
// once a winner accepted. Returns the cancelled assignments.
func (r *AssignmentRepository) CancelSiblings(ctx context.Context, serviceOrderID, winnerID uuid.UUID) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE assignments
		SET state = $3, resolved_at = NOW(), updated_at = NOW()
		WHERE service_order_id = $1
		  AND id <> $2
		  AND state IN ($4, $5)
		RETURNING `+assignmentColumns,
		serviceOrderID, winnerID, domain.StateCancelled, domain.StateCreated, domain.StateOffered)
	if err != nil {
		return nil, fmt.Errorf("cancel sibling assignments: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// HasOpen reports whether the order already has an unresolved
// assignment. Dispatch refuses to stack offers on top of each other.
func (r *AssignmentRepository) HasOpen(ctx context.Context, serviceOrderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM assignments
			WHERE service_order_id = $1 AND state IN ($2, $3)
		)`,
		serviceOrderID, domain.StateCreated, domain.StateOffered).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open assignments: %w", err)
	}
	return exists, nil
}

// SweepExpired times out every overdue offer in one statement and
// returns the affected assignments so the caller can emit events.
func (r *AssignmentRepository) SweepExpired(ctx context.Context, limit int) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE assignments
		SET state = $1, resolved_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM assignments
			WHERE state = $2
			  AND offer_expires_at IS NOT NULL
			  AND offer_expires_at <= NOW()
			ORDER BY offer_expires_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+assignmentColumns,
		domain.StateTimeout, domain.StateOffered, limit)
	if err != nil {
		return nil, fmt.Errorf("sweep expired offers: %w", err)
	}
	defer rows.Close()

	return scanAssignments(rows)
}

// resolveResult turns a zero-row conditional update into the error the
// current row justifies: a forbidden transition gets the state machine
// error, a lost race against another resolution gets ALREADY_RESOLVED.
func (r *AssignmentRepository) resolveResult(ctx context.Context, row pgx.Row, id uuid.UUID, target domain.State) (domain.Assignment, error) {
	a, err := scanAssignment(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, fmt.Errorf("resolve assignment: %w", err)
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return domain.Assignment{}, getErr
	}
	if current.OfferExpired(time.Now()) {
		return current, apperr.Conflict("offer already expired").
			WithCode(apperr.CodeAlreadyResolved)
	}
	if terr := domain.ValidateTransition(current.State, target); terr != nil {
		return current, terr
	}
	return current, apperr.Conflict(
		fmt.Sprintf("assignment is %s, the offer is no longer open", current.State)).
		WithCode(apperr.CodeAlreadyResolved)
}

func scanAssignment(row pgx.Row) (domain.Assignment, error) {
	var a domain.Assignment
	err := row.Scan(
		&a.ID, &a.ServiceOrderID, &a.ProviderID, &a.WorkTeamID,
		&a.CountryCode, &a.BusinessUnit, &a.State, &a.Mode, &a.Rank, &a.Score,
		&a.DeclineReason, &a.CorrelationID, &a.FunnelData,
		&a.OfferedAt, &a.OfferExpiresAt, &a.ResolvedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func scanAssignments(rows pgx.Rows) ([]domain.Assignment, error) {
	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read assignments: %w", err)
	}
	return out, nil
}
