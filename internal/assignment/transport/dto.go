// Package transport defines the request and response shapes of the
// dispatch operations and their validation rules.
package transport

import (
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/assignment/domain"
	"dispatchcore/internal/funnel"
)

// DispatchRequest asks the orchestrator to assign a service order.
// ProviderIDs narrows the candidate pool; when empty, every active
// provider of the tenant is considered.
type DispatchRequest struct {
	ServiceOrderID uuid.UUID   `json:"serviceOrderId" validate:"required"`
	CountryCode    string      `json:"countryCode" validate:"required,len=2"`
	BusinessUnit   string      `json:"businessUnit" validate:"required"`
	Mode           string      `json:"mode" validate:"required,oneof=DIRECT OFFER BROADCAST AUTO_ACCEPT"`
	ProviderIDs    []uuid.UUID `json:"providerIds,omitempty" validate:"omitempty,dive,required"`
	WorkTeamID     *uuid.UUID  `json:"workTeamId,omitempty"`
	MaxOffers      int         `json:"maxOffers,omitempty" validate:"omitempty,min=1,max=10"`
	CorrelationID  string      `json:"correlationId,omitempty"`
}

// DeclineRequest carries the provider's reason, if any.
type DeclineRequest struct {
	AssignmentID uuid.UUID `json:"assignmentId" validate:"required"`
	Reason       string    `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// CancelRequest withdraws an open assignment.
type CancelRequest struct {
	AssignmentID uuid.UUID `json:"assignmentId" validate:"required"`
	Reason       string    `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ReassignRequest routes a resolved assignment to a new provider.
type ReassignRequest struct {
	AssignmentID uuid.UUID  `json:"assignmentId" validate:"required"`
	ProviderID   uuid.UUID  `json:"providerId" validate:"required"`
	WorkTeamID   *uuid.UUID `json:"workTeamId,omitempty"`
	Mode         string     `json:"mode" validate:"required,oneof=DIRECT OFFER AUTO_ACCEPT"`
}

// AssignmentResponse is the external view of an assignment.
type AssignmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	ServiceOrderID uuid.UUID  `json:"serviceOrderId"`
	ProviderID     uuid.UUID  `json:"providerId"`
	WorkTeamID     *uuid.UUID `json:"workTeamId,omitempty"`
	State          string     `json:"state"`
	Mode           string     `json:"mode"`
	Rank           int        `json:"rank"`
	Score          float64    `json:"score"`
	DeclineReason  *string    `json:"declineReason,omitempty"`
	OfferedAt      *time.Time `json:"offeredAt,omitempty"`
	OfferExpiresAt *time.Time `json:"offerExpiresAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// DispatchResponse is the outcome of a dispatch run: the created
// assignments plus the funnel that produced them.
type DispatchResponse struct {
	Assignments []AssignmentResponse `json:"assignments"`
	Funnel      funnel.Data          `json:"funnel"`
	OrderStatus string               `json:"orderStatus"`
}

// ToAssignmentResponse maps the domain model to its external view.
func ToAssignmentResponse(a domain.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:             a.ID,
		ServiceOrderID: a.ServiceOrderID,
		ProviderID:     a.ProviderID,
		WorkTeamID:     a.WorkTeamID,
		State:          string(a.State),
		Mode:           string(a.Mode),
		Rank:           a.Rank,
		Score:          a.Score,
		DeclineReason:  a.DeclineReason,
		OfferedAt:      a.OfferedAt,
		OfferExpiresAt: a.OfferExpiresAt,
		ResolvedAt:     a.ResolvedAt,
		CreatedAt:      a.CreatedAt,
	}
}
