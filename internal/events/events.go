// Package events defines the domain events emitted by the dispatch
// lifecycle and re-exports the platform bus so modules only import one
// events package.
package events

import (
	"encoding/json"

	"github.com/google/uuid"

	"dispatchcore/platform/events"
)

// Re-exported platform types.
type (
	Event       = events.Event
	BaseEvent   = events.BaseEvent
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	Bus         = events.Bus
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// Event names.
const (
	AssignmentCreatedName    = "dispatch.assignment.created"
	OfferExtendedName        = "dispatch.offer.extended"
	OfferAcceptedName        = "dispatch.offer.accepted"
	OfferDeclinedName        = "dispatch.offer.declined"
	AssignmentTimedOutName   = "dispatch.assignment.timed_out"
	AssignmentCancelledName  = "dispatch.assignment.cancelled"
	AssignmentReassignedName = "dispatch.assignment.reassigned"
	OrderStateChangedName    = "dispatch.order.state_changed"
	WorkflowNotificationName = "dispatch.workflow.notification_due"
)

// AssignmentCreated is emitted for every assignment the orchestrator
// persists, one per offered provider in broadcast mode.
type AssignmentCreated struct {
	BaseEvent
	AssignmentID   uuid.UUID `json:"assignmentId"`
	ServiceOrderID uuid.UUID `json:"serviceOrderId"`
	ProviderID     uuid.UUID `json:"providerId"`
	Tenant         string    `json:"tenant"`
	Mode           string    `json:"mode"`
	State          string    `json:"state"`
	Rank           int       `json:"rank"`
	CorrelationID  string    `json:"correlationId"`
}

func (e AssignmentCreated) EventName() string { return AssignmentCreatedName }

// OfferExtended is emitted when a waiting candidate takes over the
// open offer after the previous one fell through.
type OfferExtended struct {
	BaseEvent
	AssignmentID   uuid.UUID `json:"assignmentId"`
	ServiceOrderID uuid.UUID `json:"serviceOrderId"`
	ProviderID     uuid.UUID `json:"providerId"`
	Tenant         string    `json:"tenant"`
	Rank           int       `json:"rank"`
	CorrelationID  string    `json:"correlationId"`
}

func (e OfferExtended) EventName() string { return OfferExtendedName }

// OfferAccepted is emitted when a provider wins an offered assignment.
type OfferAccepted struct {
	BaseEvent
	AssignmentID   uuid.UUID `json:"assignmentId"`
	ServiceOrderID uuid.UUID `json:"serviceOrderId"`
	ProviderID     uuid.UUID `json:"providerId"`
	Tenant         string    `json:"tenant"`
	CorrelationID  string    `json:"correlationId"`
}

func (e OfferAccepted) EventName() string { return OfferAcceptedName }

// OfferDeclined is emitted when a provider turns an offer down.
type OfferDeclined struct {
	BaseEvent
	AssignmentID   uuid.UUID `json:"assignmentId"`
	ServiceOrderID uuid.UUID `json:"serviceOrderId"`
	ProviderID     uuid.UUID `json:"providerId"`
	Tenant         string    `json:"tenant"`
	Reason         string    `json:"reason,omitempty"`
	CorrelationID  string    `json:"correlationId"`
}

func (e OfferDeclined) EventName() string { return OfferDeclinedName }

// AssignmentTimedOut is emitted when an offer expires unanswered,
// either lazily on read or by the sweep job.
type AssignmentTimedOut struct {
	BaseEvent
	AssignmentID   uuid.UUID `json:"assignmentId"`
	ServiceOrderID uuid.UUID `json:"serviceOrderId"`
	ProviderID     uuid.UUID `json:"providerId"`
	Tenant         string    `json:"tenant"`
	CorrelationID  string    `json:"correlationId"`
}

func (e AssignmentTimedOut) EventName() string { return AssignmentTimedOutName }

// AssignmentCancelled is emitted when dispatch withdraws an open
// assignment.
type AssignmentCancelled struct {
	BaseEvent
	AssignmentID   uuid.UUID `json:"assignmentId"`
	ServiceOrderID uuid.UUID `json:"serviceOrderId"`
	ProviderID     uuid.UUID `json:"providerId"`
	Tenant         string    `json:"tenant"`
	Reason         string    `json:"reason,omitempty"`
	CorrelationID  string    `json:"correlationId"`
}

func (e AssignmentCancelled) EventName() string { return AssignmentCancelledName }

// AssignmentReassigned is emitted when a resolved assignment is routed
// to a new provider.
type AssignmentReassigned struct {
	BaseEvent
	AssignmentID    uuid.UUID `json:"assignmentId"`
	NewAssignmentID uuid.UUID `json:"newAssignmentId"`
	ServiceOrderID  uuid.UUID `json:"serviceOrderId"`
	ProviderID      uuid.UUID `json:"providerId"`
	Tenant          string    `json:"tenant"`
	CorrelationID   string    `json:"correlationId"`
}

func (e AssignmentReassigned) EventName() string { return AssignmentReassignedName }

// OrderStateChanged is emitted whenever dispatch advances the service
// order status.
type OrderStateChanged struct {
	BaseEvent
	ServiceOrderID uuid.UUID `json:"serviceOrderId"`
	Tenant         string    `json:"tenant"`
	OldStatus      string    `json:"oldStatus"`
	NewStatus      string    `json:"newStatus"`
	CorrelationID  string    `json:"correlationId"`
}

func (e OrderStateChanged) EventName() string { return OrderStateChangedName }

// WorkflowNotificationDue is published when the scheduler drains a
// workflow outbox record. Workflow integrations subscribe to it.
type WorkflowNotificationDue struct {
	BaseEvent
	OutboxID       uuid.UUID       `json:"outboxId"`
	Name           string          `json:"name"`
	ServiceOrderID uuid.UUID       `json:"serviceOrderId"`
	ProviderID     *uuid.UUID      `json:"providerId,omitempty"`
	CorrelationID  string          `json:"correlationId"`
	Payload        json.RawMessage `json:"payload"`
}

func (e WorkflowNotificationDue) EventName() string { return WorkflowNotificationName }
