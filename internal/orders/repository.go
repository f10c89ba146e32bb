package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchcore/internal/geo"
	"dispatchcore/internal/tenant"
	"dispatchcore/platform/apperr"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID loads a service order within a tenant.
func (r *Repository) GetByID(ctx context.Context, ten tenant.Tenant, id uuid.UUID) (ServiceOrder, error) {
	query := `
		SELECT id, country_code, business_unit, status, priority,
		       postal_code, latitude, longitude, required_skills,
		       scheduled_date, delivery_date, provider_id, work_team_id,
		       created_at, updated_at
		FROM service_orders
		WHERE country_code = $1 AND business_unit = $2 AND id = $3`

	var (
		o        ServiceOrder
		lat, lon *float64
	)
	err := r.pool.QueryRow(ctx, query, ten.CountryCode, ten.BusinessUnit, id).Scan(
		&o.ID, &o.CountryCode, &o.BusinessUnit, &o.Status, &o.Priority,
		&o.PostalCode, &lat, &lon, &o.RequiredSkills,
		&o.ScheduledDate, &o.DeliveryDate, &o.ProviderID, &o.WorkTeamID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServiceOrder{}, apperr.NotFound("service order not found").
				WithCode(apperr.CodeServiceOrderNotFound)
		}
		return ServiceOrder{}, fmt.Errorf("failed to load service order: %w", err)
	}

	if lat != nil && lon != nil {
		o.Location = &geo.Coordinates{Latitude: *lat, Longitude: *lon}
	}
	return o, nil
}

// LinkProvider commits the accepted provider on the order and promotes
// it to ACCEPTED. Used when an offer resolves in the provider's favor;
// direct dispatches write the linkage inside the dispatch transaction.
func (r *Repository) LinkProvider(ctx context.Context, ten tenant.Tenant, id uuid.UUID, providerID uuid.UUID, workTeamID *uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_orders
		SET status = $4, provider_id = $5, work_team_id = $6, updated_at = NOW()
		WHERE country_code = $1 AND business_unit = $2 AND id = $3`,
		ten.CountryCode, ten.BusinessUnit, id, StatusAccepted, providerID, workTeamID,
	)
	if err != nil {
		return fmt.Errorf("failed to link service order provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("service order not found").
			WithCode(apperr.CodeServiceOrderNotFound)
	}
	return nil
}

// ClearAssignment detaches the provider from an order after a declined
// or timed out offer so the order can be dispatched again.
func (r *Repository) ClearAssignment(ctx context.Context, ten tenant.Tenant, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE service_orders
		SET status = $4, provider_id = NULL, work_team_id = NULL, updated_at = NOW()
		WHERE country_code = $1 AND business_unit = $2 AND id = $3`,
		ten.CountryCode, ten.BusinessUnit, id, StatusNew,
	)
	if err != nil {
		return fmt.Errorf("failed to clear service order assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("service order not found").
			WithCode(apperr.CodeServiceOrderNotFound)
	}
	return nil
}
