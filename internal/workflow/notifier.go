// Package workflow forwards dispatch lifecycle changes to downstream
// workflow systems through a transactional outbox, so a slow or failing
// consumer never blocks or loses a dispatch decision.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is one workflow notification. Payload is kept loose on
// purpose: consumers evolve independently of dispatch.
type Message struct {
	ID             uuid.UUID
	Name           string
	ServiceOrderID uuid.UUID
	ProviderID     *uuid.UUID
	CorrelationID  string
	Payload        map[string]any
	CreatedAt      time.Time
}

// Notifier accepts workflow notifications. Implementations must be
// safe to call after the originating transaction committed.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Notification names emitted by the dispatch lifecycle.
const (
	NotifyAssignmentOffered  = "assignment.offered"
	NotifyAssignmentAccepted = "assignment.accepted"
	NotifyAssignmentDeclined = "assignment.declined"
	NotifyAssignmentTimedOut = "assignment.timed_out"
	NotifyAssignmentCanceled = "assignment.cancelled"
	NotifyOrderAssigned      = "order.assigned"
)
