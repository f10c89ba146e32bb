// Package service implements the assignment lifecycle and the dispatch
// orchestration on top of it.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/assignment/domain"
	"dispatchcore/internal/events"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/tenant"
	"dispatchcore/internal/workflow"
	"dispatchcore/platform/apperr"
	"dispatchcore/platform/logger"
)

// Store is the assignment persistence the lifecycle needs. The pgx
// repository implements it; tests use an in-memory stand-in.
type Store interface {
	CreateBatch(ctx context.Context, ten tenant.Tenant, assignments []domain.Assignment, upd orders.AssignmentUpdate) ([]domain.Assignment, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	Accept(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	Decline(ctx context.Context, id uuid.UUID, reason string) (domain.Assignment, error)
	MarkTimeout(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Assignment, error)
	MarkReassigned(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	CancelSiblings(ctx context.Context, serviceOrderID, winnerID uuid.UUID) ([]domain.Assignment, error)
	PromoteNextCreated(ctx context.Context, serviceOrderID uuid.UUID, offeredAt, expiresAt time.Time) (domain.Assignment, bool, error)
	HasOpen(ctx context.Context, serviceOrderID uuid.UUID) (bool, error)
	SweepExpired(ctx context.Context, limit int) ([]domain.Assignment, error)
}

// OrderStore is the service-order persistence the lifecycle needs.
type OrderStore interface {
	GetByID(ctx context.Context, ten tenant.Tenant, id uuid.UUID) (orders.ServiceOrder, error)
	LinkProvider(ctx context.Context, ten tenant.Tenant, id uuid.UUID, providerID uuid.UUID, workTeamID *uuid.UUID) error
	ClearAssignment(ctx context.Context, ten tenant.Tenant, id uuid.UUID) error
}

// Lifecycle resolves offers. Every resolution goes through the store's
// conditional updates, so two concurrent responses to the same offer
// produce exactly one winner.
type Lifecycle struct {
	store        Store
	orders       OrderStore
	notifier     workflow.Notifier
	bus          events.Bus
	log          *logger.Logger
	offerTimeout time.Duration
	now          func() time.Time
}

func NewLifecycle(store Store, orderStore OrderStore, notifier workflow.Notifier, bus events.Bus, log *logger.Logger, offerTimeout time.Duration) *Lifecycle {
	if offerTimeout <= 0 {
		offerTimeout = 24 * time.Hour
	}
	return &Lifecycle{
		store:        store,
		orders:       orderStore,
		notifier:     notifier,
		bus:          bus,
		log:          log,
		offerTimeout: offerTimeout,
		now:          time.Now,
	}
}

// Get loads an assignment, expiring an overdue offer on the way out.
// Reads never observe an offer that should already have timed out.
func (s *Lifecycle) Get(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	if a.OfferExpired(s.now()) {
		return s.expire(ctx, a)
	}
	return a, nil
}

// Accept resolves an offer in the provider's favor. A response that
// arrives after the offer expired loses to the timeout.
func (s *Lifecycle) Accept(ctx context.Context, id uuid.UUID) (domain.Assignment, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	if current.OfferExpired(s.now()) {
		expired, expireErr := s.expire(ctx, current)
		if expireErr != nil {
			return domain.Assignment{}, expireErr
		}
		return expired, apperr.Conflict("offer expired before the response arrived").
			WithCode(apperr.CodeAlreadyResolved)
	}

	a, err := s.store.Accept(ctx, id)
	if err != nil {
		return a, err
	}

	ten := tenant.Tenant{CountryCode: a.CountryCode, BusinessUnit: a.BusinessUnit}

	cancelled, err := s.store.CancelSiblings(ctx, a.ServiceOrderID, a.ID)
	if err != nil {
		return domain.Assignment{}, err
	}
	for _, sibling := range cancelled {
		s.publishCancelled(ctx, sibling, "another provider accepted first")
	}

	if err := s.orders.LinkProvider(ctx, ten, a.ServiceOrderID, a.ProviderID, a.WorkTeamID); err != nil {
		return domain.Assignment{}, err
	}

	s.log.DispatchEvent("offer_accepted", a.ServiceOrderID.String(), a.ProviderID.String(), string(a.State))
	s.bus.Publish(ctx, events.OfferAccepted{
		BaseEvent:      events.NewBaseEvent(),
		AssignmentID:   a.ID,
		ServiceOrderID: a.ServiceOrderID,
		ProviderID:     a.ProviderID,
		Tenant:         ten.String(),
		CorrelationID:  a.CorrelationID,
	})
	s.bus.Publish(ctx, events.OrderStateChanged{
		BaseEvent:      events.NewBaseEvent(),
		ServiceOrderID: a.ServiceOrderID,
		Tenant:         ten.String(),
		OldStatus:      string(orders.StatusAssigned),
		NewStatus:      string(orders.StatusAccepted),
		CorrelationID:  a.CorrelationID,
	})
	s.notify(ctx, workflow.NotifyAssignmentAccepted, a, nil)

	return a, nil
}

// Decline resolves an offer against the provider. The next waiting
// candidate takes over the offer; with nobody left the order is
// released for another dispatch run.
func (s *Lifecycle) Decline(ctx context.Context, id uuid.UUID, reason string) (domain.Assignment, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	if current.OfferExpired(s.now()) {
		expired, expireErr := s.expire(ctx, current)
		if expireErr != nil {
			return domain.Assignment{}, expireErr
		}
		return expired, apperr.Conflict("offer expired before the response arrived").
			WithCode(apperr.CodeAlreadyResolved)
	}

	a, err := s.store.Decline(ctx, id, reason)
	if err != nil {
		return a, err
	}

	if err := s.advanceQueue(ctx, a); err != nil {
		return domain.Assignment{}, err
	}

	ten := tenant.Tenant{CountryCode: a.CountryCode, BusinessUnit: a.BusinessUnit}
	s.log.DispatchEvent("offer_declined", a.ServiceOrderID.String(), a.ProviderID.String(), string(a.State))
	s.bus.Publish(ctx, events.OfferDeclined{
		BaseEvent:      events.NewBaseEvent(),
		AssignmentID:   a.ID,
		ServiceOrderID: a.ServiceOrderID,
		ProviderID:     a.ProviderID,
		Tenant:         ten.String(),
		Reason:         reason,
		CorrelationID:  a.CorrelationID,
	})
	s.notify(ctx, workflow.NotifyAssignmentDeclined, a, map[string]any{"reason": reason})

	return a, nil
}

// Cancel withdraws an unresolved assignment.
func (s *Lifecycle) Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Assignment, error) {
	a, err := s.store.Cancel(ctx, id, reason)
	if err != nil {
		return a, err
	}

	// Only the open offer passes its slot on; cancelling a waiting
	// candidate must not open a second offer next to the live one.
	if a.OfferedAt != nil {
		err = s.advanceQueue(ctx, a)
	} else {
		err = s.releaseOrderIfIdle(ctx, a)
	}
	if err != nil {
		return domain.Assignment{}, err
	}

	s.publishCancelled(ctx, a, reason)
	return a, nil
}

// SweepExpired times out every overdue offer. The scheduler calls this
// periodically; reads that hit an expired offer first do the same work
// lazily, the conditional update keeps both paths idempotent.
func (s *Lifecycle) SweepExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.store.SweepExpired(ctx, limit)
	if err != nil {
		return 0, err
	}

	for _, a := range expired {
		if err := s.advanceQueue(ctx, a); err != nil {
			s.log.DatabaseError("release order after timeout", err)
			continue
		}
		s.publishTimedOut(ctx, a)
	}

	s.log.SweepResult("offer_timeout_sweep", len(expired))
	return len(expired), nil
}

// expire applies lazy timeout to an overdue offer. The conditional
// update means a concurrent sweep or response may win; the resulting
// state is returned either way.
func (s *Lifecycle) expire(ctx context.Context, a domain.Assignment) (domain.Assignment, error) {
	updated, err := s.store.MarkTimeout(ctx, a.ID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if updated.State == domain.StateTimeout && a.State == domain.StateOffered {
		if err := s.advanceQueue(ctx, updated); err != nil {
			return domain.Assignment{}, err
		}
		s.publishTimedOut(ctx, updated)
	}
	return updated, nil
}

// advanceQueue hands the offer to the next waiting candidate of the
// order. When nobody is waiting and no sibling offer remains open, the
// order goes back to the dispatchable state.
func (s *Lifecycle) advanceQueue(ctx context.Context, a domain.Assignment) error {
	offeredAt := s.now().UTC()
	expiresAt := offeredAt.Add(s.offerTimeout)

	next, promoted, err := s.store.PromoteNextCreated(ctx, a.ServiceOrderID, offeredAt, expiresAt)
	if err != nil {
		return err
	}
	if promoted {
		s.publishExtended(ctx, next)
		return nil
	}
	return s.releaseOrderIfIdle(ctx, a)
}

// releaseOrderIfIdle puts the order back in the dispatchable state once
// no open assignment remains, so broadcasts with live siblings keep the
// order reserved.
func (s *Lifecycle) releaseOrderIfIdle(ctx context.Context, a domain.Assignment) error {
	open, err := s.store.HasOpen(ctx, a.ServiceOrderID)
	if err != nil {
		return err
	}
	if open {
		return nil
	}
	ten := tenant.Tenant{CountryCode: a.CountryCode, BusinessUnit: a.BusinessUnit}
	return s.orders.ClearAssignment(ctx, ten, a.ServiceOrderID)
}

func (s *Lifecycle) publishExtended(ctx context.Context, a domain.Assignment) {
	ten := tenant.Tenant{CountryCode: a.CountryCode, BusinessUnit: a.BusinessUnit}
	s.log.DispatchEvent("offer_extended", a.ServiceOrderID.String(), a.ProviderID.String(), string(a.State))
	s.bus.Publish(ctx, events.OfferExtended{
		BaseEvent:      events.NewBaseEvent(),
		AssignmentID:   a.ID,
		ServiceOrderID: a.ServiceOrderID,
		ProviderID:     a.ProviderID,
		Tenant:         ten.String(),
		Rank:           a.Rank,
		CorrelationID:  a.CorrelationID,
	})
	s.notify(ctx, workflow.NotifyAssignmentOffered, a, nil)
}

func (s *Lifecycle) publishTimedOut(ctx context.Context, a domain.Assignment) {
	ten := tenant.Tenant{CountryCode: a.CountryCode, BusinessUnit: a.BusinessUnit}
	s.log.DispatchEvent("offer_timed_out", a.ServiceOrderID.String(), a.ProviderID.String(), string(a.State))
	s.bus.Publish(ctx, events.AssignmentTimedOut{
		BaseEvent:      events.NewBaseEvent(),
		AssignmentID:   a.ID,
		ServiceOrderID: a.ServiceOrderID,
		ProviderID:     a.ProviderID,
		Tenant:         ten.String(),
		CorrelationID:  a.CorrelationID,
	})
	s.notify(ctx, workflow.NotifyAssignmentTimedOut, a, nil)
}

func (s *Lifecycle) publishCancelled(ctx context.Context, a domain.Assignment, reason string) {
	ten := tenant.Tenant{CountryCode: a.CountryCode, BusinessUnit: a.BusinessUnit}
	s.log.DispatchEvent("assignment_cancelled", a.ServiceOrderID.String(), a.ProviderID.String(), string(a.State))
	s.bus.Publish(ctx, events.AssignmentCancelled{
		BaseEvent:      events.NewBaseEvent(),
		AssignmentID:   a.ID,
		ServiceOrderID: a.ServiceOrderID,
		ProviderID:     a.ProviderID,
		Tenant:         ten.String(),
		Reason:         reason,
		CorrelationID:  a.CorrelationID,
	})
	s.notify(ctx, workflow.NotifyAssignmentCanceled, a, map[string]any{"reason": reason})
}

func (s *Lifecycle) notify(ctx context.Context, name string, a domain.Assignment, extra map[string]any) {
	payload := map[string]any{
		"assignmentId": a.ID.String(),
		"state":        string(a.State),
		"mode":         string(a.Mode),
	}
	for k, v := range extra {
		payload[k] = v
	}

	providerID := a.ProviderID
	msg := workflow.Message{
		ID:             uuid.New(),
		Name:           name,
		ServiceOrderID: a.ServiceOrderID,
		ProviderID:     &providerID,
		CorrelationID:  a.CorrelationID,
		Payload:        payload,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Warn("workflow notification failed", "name", name, "error", err)
	}
}
