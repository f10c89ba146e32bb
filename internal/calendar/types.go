package calendar

import (
	"time"

	"github.com/google/uuid"
)

// Config is the per-tenant calendar and buffer rule set. Created and updated
// by configuration management; read-only here.
type Config struct {
	ID                  uuid.UUID
	CountryCode         string
	BusinessUnit        string
	WorkingDays         []time.Weekday // e.g. Monday..Friday
	ShiftStart          string         // "08:00"
	ShiftEnd            string         // "17:00"
	GlobalBufferDays    int            // working days required between now and the scheduled date
	StaticBufferDays    int            // working days required between scheduled and delivery date
	TravelBufferMinutes int
	HolidayRegion       string // region key for the holiday source, e.g. "NL"
	AutoAcceptEnabled   bool
	OfferTimeoutHours   int
	UpdatedAt           time.Time
}

// workingDaySet returns the weekday membership set for quick lookups.
func (c Config) workingDaySet() map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(c.WorkingDays))
	for _, d := range c.WorkingDays {
		set[d] = true
	}
	return set
}

// Holiday is a public holiday for a region.
type Holiday struct {
	Date   time.Time
	Name   string
	Region string
}

// Buffer is a resolved travel buffer with its rationale.
type Buffer struct {
	Minutes int
	Reason  string
}

// StoredBuffer is a travel buffer persisted against a service order.
type StoredBuffer struct {
	ServiceOrderID uuid.UUID
	Minutes        int
	Reason         string
	UpdatedAt      time.Time
}
