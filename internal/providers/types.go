package providers

import (
	"time"

	"github.com/google/uuid"
)

type Tier string

const (
	TierP1 Tier = "P1"
	TierP2 Tier = "P2"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Provider is a field-service company that can receive assignments.
// ServiceZones holds postal code prefixes the provider covers; Skills
// holds the trade skills of the provider itself, work team skills are
// resolved separately.
type Provider struct {
	ID               uuid.UUID
	Name             string
	CountryCode      string
	BusinessUnit     string
	Latitude         *float64
	Longitude        *float64
	Skills           []string
	ServiceZones     []string
	Tier             Tier
	RiskLevel        RiskLevel
	Suspended        bool
	OnWatch          bool
	Utilization      float64
	UnavailableFrom  *time.Time
	UnavailableUntil *time.Time
}

// HasCoordinates reports whether the provider has a usable home base
// location for distance calculations.
func (p Provider) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// CoversZone reports whether any configured service zone prefixes the
// given postal code. A provider without zones covers nothing.
func (p Provider) CoversZone(postalCode string) bool {
	for _, zone := range p.ServiceZones {
		if zone != "" && len(postalCode) >= len(zone) && postalCode[:len(zone)] == zone {
			return true
		}
	}
	return false
}

// HasSkill reports whether the provider carries the given skill.
func (p Provider) HasSkill(skill string) bool {
	for _, s := range p.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// UnavailableOn reports whether the date falls inside the provider's
// configured unavailability window.
func (p Provider) UnavailableOn(date time.Time) bool {
	if p.UnavailableFrom == nil {
		return false
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	if day.Before(*p.UnavailableFrom) {
		return false
	}
	if p.UnavailableUntil != nil && day.After(*p.UnavailableUntil) {
		return false
	}
	return true
}
