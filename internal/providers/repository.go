package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchcore/internal/tenant"
	"dispatchcore/platform/apperr"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const providerColumns = `
	id, name, country_code, business_unit,
	latitude, longitude, skills, service_zones,
	tier, risk_level, suspended, on_watch, utilization,
	unavailable_from, unavailable_until
`

// ListActive returns the non-suspended providers of a tenant. Suspended
// providers are still rejected by the funnel when loaded through other
// paths, filtering here just keeps the candidate pool small.
func (r *Repository) ListActive(ctx context.Context, ten tenant.Tenant) ([]Provider, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM providers
		WHERE country_code = $1 AND business_unit = $2 AND suspended = FALSE
		ORDER BY name`, providerColumns)

	rows, err := r.pool.Query(ctx, query, ten.CountryCode, ten.BusinessUnit)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	return scanProviders(rows)
}

// GetByIDs loads the given providers within a tenant. Unknown ids are
// skipped, callers decide whether a partial result is acceptable.
func (r *Repository) GetByIDs(ctx context.Context, ten tenant.Tenant, ids []uuid.UUID) ([]Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM providers
		WHERE country_code = $1 AND business_unit = $2 AND id = ANY($3)`, providerColumns)

	rows, err := r.pool.Query(ctx, query, ten.CountryCode, ten.BusinessUnit, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}
	defer rows.Close()

	return scanProviders(rows)
}

// GetByID loads a single provider within a tenant.
func (r *Repository) GetByID(ctx context.Context, ten tenant.Tenant, id uuid.UUID) (Provider, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM providers
		WHERE country_code = $1 AND business_unit = $2 AND id = $3`, providerColumns)

	row := r.pool.QueryRow(ctx, query, ten.CountryCode, ten.BusinessUnit, id)
	p, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Provider{}, apperr.NotFound("provider not found")
		}
		return Provider{}, fmt.Errorf("failed to load provider: %w", err)
	}
	return p, nil
}

// WorkTeamSkills returns the skills of a work team, used to widen the
// skill coverage of a provider when a team is pinned on the request.
func (r *Repository) WorkTeamSkills(ctx context.Context, ten tenant.Tenant, workTeamID uuid.UUID) ([]string, error) {
	query := `
		SELECT skills
		FROM work_teams
		WHERE country_code = $1 AND business_unit = $2 AND id = $3`

	var skills []string
	err := r.pool.QueryRow(ctx, query, ten.CountryCode, ten.BusinessUnit, workTeamID).Scan(&skills)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("work team not found")
		}
		return nil, fmt.Errorf("failed to load work team skills: %w", err)
	}
	return skills, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (Provider, error) {
	var p Provider
	err := row.Scan(
		&p.ID, &p.Name, &p.CountryCode, &p.BusinessUnit,
		&p.Latitude, &p.Longitude, &p.Skills, &p.ServiceZones,
		&p.Tier, &p.RiskLevel, &p.Suspended, &p.OnWatch, &p.Utilization,
		&p.UnavailableFrom, &p.UnavailableUntil,
	)
	return p, err
}

func scanProviders(rows pgx.Rows) ([]Provider, error) {
	var out []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read providers: %w", err)
	}
	return out, nil
}
