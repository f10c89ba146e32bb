package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatchcore/internal/tenant"
	"dispatchcore/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the pgx-backed calendar store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a calendar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetConfig loads the calendar config for a tenant.
func (r *Repository) GetConfig(ctx context.Context, ten tenant.Tenant) (Config, error) {
	query := `
		SELECT id, country_code, business_unit, working_days, shift_start, shift_end,
		       global_buffer_days, static_buffer_days, travel_buffer_minutes,
		       holiday_region, auto_accept_enabled, offer_timeout_hours, updated_at
		FROM calendar_configs
		WHERE country_code = $1 AND business_unit = $2`

	var cfg Config
	var workingDays []int
	err := r.pool.QueryRow(ctx, query, ten.CountryCode, ten.BusinessUnit).Scan(
		&cfg.ID, &cfg.CountryCode, &cfg.BusinessUnit, &workingDays,
		&cfg.ShiftStart, &cfg.ShiftEnd,
		&cfg.GlobalBufferDays, &cfg.StaticBufferDays, &cfg.TravelBufferMinutes,
		&cfg.HolidayRegion, &cfg.AutoAcceptEnabled, &cfg.OfferTimeoutHours,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, apperr.NotFound("calendar config not found for tenant " + ten.String()).
			WithCode(apperr.CodeCalendarConfigNotFound)
	}
	if err != nil {
		return Config{}, fmt.Errorf("get calendar config: %w", err)
	}

	cfg.WorkingDays = make([]time.Weekday, 0, len(workingDays))
	for _, d := range workingDays {
		cfg.WorkingDays = append(cfg.WorkingDays, time.Weekday(d))
	}

	return cfg, nil
}

// HolidaysForYear returns cached holidays for a region and year.
// An empty slice means the year has not been cached.
func (r *Repository) HolidaysForYear(ctx context.Context, region string, year int) ([]Holiday, error) {
	query := `
		SELECT holiday_date, name
		FROM holidays
		WHERE region = $1 AND EXTRACT(YEAR FROM holiday_date) = $2
		ORDER BY holiday_date`

	rows, err := r.pool.Query(ctx, query, region, year)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	defer rows.Close()

	holidays := make([]Holiday, 0)
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.Date, &h.Name); err != nil {
			return nil, fmt.Errorf("scan holiday: %w", err)
		}
		h.Region = region
		holidays = append(holidays, h)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate holidays: %w", rows.Err())
	}

	return holidays, nil
}

// CacheHolidays upserts fetched holidays for a region.
func (r *Repository) CacheHolidays(ctx context.Context, region string, holidays []Holiday) error {
	for _, h := range holidays {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO holidays (id, region, holiday_date, name)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (region, holiday_date) DO UPDATE SET name = EXCLUDED.name
		`, uuid.New(), region, h.Date, h.Name)
		if err != nil {
			return fmt.Errorf("cache holiday: %w", err)
		}
	}
	return nil
}

// UpsertTravelBuffer stores a computed travel buffer for a service order.
// Writing replaces any prior stored buffer for that order.
func (r *Repository) UpsertTravelBuffer(ctx context.Context, serviceOrderID uuid.UUID, minutes int, reason string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_order_travel_buffers (service_order_id, minutes, reason, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (service_order_id)
		DO UPDATE SET minutes = EXCLUDED.minutes, reason = EXCLUDED.reason, updated_at = now()
	`, serviceOrderID, minutes, reason)
	if err != nil {
		return fmt.Errorf("upsert travel buffer: %w", err)
	}
	return nil
}

// GetTravelBuffer reads the stored travel buffer for a service order.
func (r *Repository) GetTravelBuffer(ctx context.Context, serviceOrderID uuid.UUID) (StoredBuffer, error) {
	query := `
		SELECT service_order_id, minutes, reason, updated_at
		FROM service_order_travel_buffers
		WHERE service_order_id = $1`

	var buf StoredBuffer
	err := r.pool.QueryRow(ctx, query, serviceOrderID).Scan(
		&buf.ServiceOrderID, &buf.Minutes, &buf.Reason, &buf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredBuffer{}, apperr.NotFound("no travel buffer stored for service order")
	}
	if err != nil {
		return StoredBuffer{}, fmt.Errorf("get travel buffer: %w", err)
	}

	return buf, nil
}
