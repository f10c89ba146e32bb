package orders

import (
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/geo"
)

type Status string

const (
	StatusNew       Status = "NEW"
	StatusAssigned  Status = "ASSIGNED"
	StatusAccepted  Status = "ACCEPTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// ServiceOrder is the unit of work being dispatched. DeliveryDate is
// only set for orders that depend on a material delivery and gates the
// static buffer check.
type ServiceOrder struct {
	ID             uuid.UUID
	CountryCode    string
	BusinessUnit   string
	Status         Status
	Priority       Priority
	PostalCode     string
	Location       *geo.Coordinates
	RequiredSkills []string
	ScheduledDate  time.Time
	DeliveryDate   *time.Time
	ProviderID     *uuid.UUID
	WorkTeamID     *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AssignmentUpdate carries the order mutation performed alongside
// assignment creation in a single transaction.
type AssignmentUpdate struct {
	OrderID    uuid.UUID
	Status     Status
	ProviderID *uuid.UUID
	WorkTeamID *uuid.UUID
}
