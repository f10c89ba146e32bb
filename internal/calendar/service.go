// Package calendar resolves per-tenant working-day calendars, public
// holidays, and buffer-window rules for booking validation.
package calendar

import (
	"context"
	"fmt"
	"time"

	"dispatchcore/internal/tenant"
	"dispatchcore/platform/apperr"
	"dispatchcore/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the service depends on.
type Store interface {
	GetConfig(ctx context.Context, ten tenant.Tenant) (Config, error)
	HolidaysForYear(ctx context.Context, region string, year int) ([]Holiday, error)
	CacheHolidays(ctx context.Context, region string, holidays []Holiday) error
	UpsertTravelBuffer(ctx context.Context, serviceOrderID uuid.UUID, minutes int, reason string) error
	GetTravelBuffer(ctx context.Context, serviceOrderID uuid.UUID) (StoredBuffer, error)
}

// Service validates booking windows against tenant calendars.
type Service struct {
	store    Store
	provider HolidayProvider
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a calendar buffer service. The holiday provider may be
// nil, in which case only cached holidays are consulted.
func NewService(store Store, provider HolidayProvider, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		log:      log,
		now:      time.Now,
	}
}

// ValidateBookingWindow verifies that a scheduled date is bookable for the
// tenant: it must be a working day, not a public holiday, and far enough out
// to satisfy the global buffer. When a delivery date is supplied the static
// buffer between scheduled and delivery date is checked as well.
func (s *Service) ValidateBookingWindow(ctx context.Context, ten tenant.Tenant, date time.Time, deliveryDate *time.Time) error {
	cfg, err := s.store.GetConfig(ctx, ten)
	if err != nil {
		return err
	}

	workingSet := cfg.workingDaySet()
	if !workingSet[date.Weekday()] {
		return apperr.Validation(fmt.Sprintf("%s is not a working day for %s", date.Format("2006-01-02"), ten)).
			WithCode(apperr.CodeBankHoliday)
	}
	if s.IsPublicHoliday(ctx, cfg.HolidayRegion, date) {
		return apperr.Validation(fmt.Sprintf("%s is a public holiday in %s", date.Format("2006-01-02"), cfg.HolidayRegion)).
			WithCode(apperr.CodeBankHoliday)
	}

	separating := s.countWorkingDaysBetween(ctx, cfg, s.now(), date)
	if separating < cfg.GlobalBufferDays {
		return apperr.Validation(fmt.Sprintf("booking requires %d working days of lead time, only %d remain", cfg.GlobalBufferDays, separating)).
			WithCode(apperr.CodeBufferWindowViolation)
	}

	if deliveryDate != nil {
		between := s.countWorkingDaysBetween(ctx, cfg, date, *deliveryDate)
		if between < cfg.StaticBufferDays {
			return apperr.Validation(fmt.Sprintf("delivery requires %d working days after the scheduled date, only %d available", cfg.StaticBufferDays, between)).
				WithCode(apperr.CodeBufferWindowViolation)
		}
	}

	return nil
}

// EarliestBookableDate returns the first working day that satisfies the
// global buffer, honoring holidays.
func (s *Service) EarliestBookableDate(ctx context.Context, ten tenant.Tenant) (time.Time, error) {
	cfg, err := s.store.GetConfig(ctx, ten)
	if err != nil {
		return time.Time{}, err
	}

	workingSet := cfg.workingDaySet()
	now := s.now()
	day := truncateToDay(now)

	// Bounded scan; a tenant calendar that yields nothing within a year is
	// a configuration error.
	for i := 0; i < 366; i++ {
		day = day.AddDate(0, 0, 1)
		if !workingSet[day.Weekday()] || s.IsPublicHoliday(ctx, cfg.HolidayRegion, day) {
			continue
		}
		if s.countWorkingDaysBetween(ctx, cfg, now, day) >= cfg.GlobalBufferDays {
			return day, nil
		}
	}

	return time.Time{}, apperr.Internal("no bookable date within a year for tenant " + ten.String())
}

// TravelBuffer returns the configured travel buffer with a rationale.
// An unconfigured tenant yields a zero buffer rather than an error.
func (s *Service) TravelBuffer(ctx context.Context, ten tenant.Tenant) (Buffer, error) {
	cfg, err := s.store.GetConfig(ctx, ten)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Buffer{Minutes: 0, Reason: "no calendar config for tenant " + ten.String()}, nil
		}
		return Buffer{}, err
	}

	if cfg.TravelBufferMinutes <= 0 {
		return Buffer{Minutes: 0, Reason: "no travel buffer configured for " + ten.String()}, nil
	}

	return Buffer{
		Minutes: cfg.TravelBufferMinutes,
		Reason:  fmt.Sprintf("configured travel buffer of %d minutes for %s", cfg.TravelBufferMinutes, ten),
	}, nil
}

// StoreTravelBuffer persists a computed buffer for a service order.
// The write is an upsert: repeating it replaces the prior value.
func (s *Service) StoreTravelBuffer(ctx context.Context, serviceOrderID uuid.UUID, buf Buffer) error {
	return s.store.UpsertTravelBuffer(ctx, serviceOrderID, buf.Minutes, buf.Reason)
}

// StoredTravelBuffer reads the buffer previously stored for a service order.
func (s *Service) StoredTravelBuffer(ctx context.Context, serviceOrderID uuid.UUID) (StoredBuffer, error) {
	return s.store.GetTravelBuffer(ctx, serviceOrderID)
}

// IsPublicHoliday reports whether the date is a public holiday for the
// region. Lookup is cache-first; on any provider failure this fails open
// (returns false) so a degraded holiday source never blocks a booking.
func (s *Service) IsPublicHoliday(ctx context.Context, region string, date time.Time) bool {
	holidays, ok := s.holidaysFor(ctx, region, date.Year())
	if !ok {
		return false
	}
	for _, h := range holidays {
		if sameDay(h.Date, date) {
			return true
		}
	}
	return false
}

func (s *Service) holidaysFor(ctx context.Context, region string, year int) ([]Holiday, bool) {
	cached, err := s.store.HolidaysForYear(ctx, region, year)
	if err == nil && len(cached) > 0 {
		return cached, true
	}
	if err != nil {
		s.log.DatabaseError("holidays for year", err)
	}

	if s.provider == nil {
		return nil, false
	}

	fetched, err := s.provider.PublicHolidays(ctx, region, year)
	if err != nil {
		s.log.ExternalFallback("holiday-api", err, "fail-open")
		return nil, false
	}

	if err := s.store.CacheHolidays(ctx, region, fetched); err != nil {
		// Cache failures degrade to an uncached lookup; the fetched data is
		// still usable for this call.
		s.log.DatabaseError("cache holidays", err)
	}

	return fetched, true
}

func (s *Service) countWorkingDaysBetween(ctx context.Context, cfg Config, from, to time.Time) int {
	start := truncateToDay(from)
	end := truncateToDay(to)
	if !end.After(start) {
		return 0
	}

	workingSet := cfg.workingDaySet()
	count := 0
	for day := start.AddDate(0, 0, 1); day.Before(end); day = day.AddDate(0, 0, 1) {
		if !workingSet[day.Weekday()] {
			continue
		}
		if s.IsPublicHoliday(ctx, cfg.HolidayRegion, day) {
			continue
		}
		count++
	}

	return count
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
