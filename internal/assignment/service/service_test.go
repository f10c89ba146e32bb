package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/assignment/domain"
	"dispatchcore/internal/calendar"
	"dispatchcore/internal/events"
	"dispatchcore/internal/funnel"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/providers"
	"dispatchcore/internal/scoring"
	"dispatchcore/internal/tenant"
	"dispatchcore/internal/workflow"
	"dispatchcore/platform/apperr"
)

// memOrders is an in-memory OrderStore.
type memOrders struct {
	mu    sync.Mutex
	items map[uuid.UUID]orders.ServiceOrder
}

func newMemOrders() *memOrders {
	return &memOrders{items: map[uuid.UUID]orders.ServiceOrder{}}
}

func (m *memOrders) put(o orders.ServiceOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[o.ID] = o
}

func (m *memOrders) get(id uuid.UUID) orders.ServiceOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *memOrders) GetByID(_ context.Context, _ tenant.Tenant, id uuid.UUID) (orders.ServiceOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return orders.ServiceOrder{}, apperr.NotFound("service order not found").
			WithCode(apperr.CodeServiceOrderNotFound)
	}
	return o, nil
}

func (m *memOrders) LinkProvider(_ context.Context, _ tenant.Tenant, id uuid.UUID, providerID uuid.UUID, workTeamID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return apperr.NotFound("service order not found").WithCode(apperr.CodeServiceOrderNotFound)
	}
	o.Status = orders.StatusAccepted
	o.ProviderID = &providerID
	o.WorkTeamID = workTeamID
	m.items[id] = o
	return nil
}

func (m *memOrders) ClearAssignment(_ context.Context, _ tenant.Tenant, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.items[id]
	if !ok {
		return apperr.NotFound("service order not found").WithCode(apperr.CodeServiceOrderNotFound)
	}
	o.Status = orders.StatusNew
	o.ProviderID = nil
	o.WorkTeamID = nil
	m.items[id] = o
	return nil
}

// memStore is an in-memory Store mirroring the repository's conditional
// update semantics, including the races they are meant to decide.
type memStore struct {
	mu     sync.Mutex
	items  map[uuid.UUID]domain.Assignment
	orders *memOrders
	now    func() time.Time
}

func newMemStore(orderStore *memOrders, now func() time.Time) *memStore {
	return &memStore{
		items:  map[uuid.UUID]domain.Assignment{},
		orders: orderStore,
		now:    now,
	}
}

func (m *memStore) put(a domain.Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[a.ID] = a
}

func (m *memStore) CreateBatch(ctx context.Context, ten tenant.Tenant, assignments []domain.Assignment, upd orders.AssignmentUpdate) ([]domain.Assignment, error) {
	m.mu.Lock()
	now := m.now()
	created := make([]domain.Assignment, 0, len(assignments))
	for _, a := range assignments {
		a.CreatedAt = now
		a.UpdatedAt = now
		m.items[a.ID] = a
		created = append(created, a)
	}
	m.mu.Unlock()

	if m.orders != nil {
		m.orders.mu.Lock()
		o, ok := m.orders.items[upd.OrderID]
		if !ok {
			m.orders.mu.Unlock()
			return nil, apperr.NotFound("service order not found").WithCode(apperr.CodeServiceOrderNotFound)
		}
		o.Status = upd.Status
		o.ProviderID = upd.ProviderID
		o.WorkTeamID = upd.WorkTeamID
		m.orders.items[upd.OrderID] = o
		m.orders.mu.Unlock()
	}
	return created, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return domain.Assignment{}, apperr.NotFound("assignment not found").
			WithCode(apperr.CodeAssignmentNotFound)
	}
	return a, nil
}

func (m *memStore) resolve(id uuid.UUID, to domain.State, mutate func(*domain.Assignment), allowed func(domain.Assignment) bool) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return domain.Assignment{}, apperr.NotFound("assignment not found").
			WithCode(apperr.CodeAssignmentNotFound)
	}
	if !allowed(a) {
		if a.OfferExpired(m.now()) {
			return a, apperr.Conflict("offer already expired").
				WithCode(apperr.CodeAlreadyResolved)
		}
		if err := domain.ValidateTransition(a.State, to); err != nil {
			return a, err
		}
		return a, apperr.Conflict(
			fmt.Sprintf("assignment is %s, the offer is no longer open", a.State)).
			WithCode(apperr.CodeAlreadyResolved)
	}
	now := m.now()
	a.State = to
	a.ResolvedAt = &now
	a.UpdatedAt = now
	if mutate != nil {
		mutate(&a)
	}
	m.items[id] = a
	return a, nil
}

func (m *memStore) offerOpen(a domain.Assignment) bool {
	return a.State == domain.StateOffered && !a.OfferExpired(m.now())
}

func (m *memStore) Accept(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	return m.resolve(id, domain.StateAccepted, nil, m.offerOpen)
}

func (m *memStore) Decline(_ context.Context, id uuid.UUID, reason string) (domain.Assignment, error) {
	return m.resolve(id, domain.StateDeclined, func(a *domain.Assignment) {
		if reason != "" {
			a.DeclineReason = &reason
		}
	}, m.offerOpen)
}

func (m *memStore) MarkTimeout(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return domain.Assignment{}, apperr.NotFound("assignment not found").
			WithCode(apperr.CodeAssignmentNotFound)
	}
	if a.OfferExpired(m.now()) {
		now := m.now()
		a.State = domain.StateTimeout
		a.ResolvedAt = &now
		a.UpdatedAt = now
		m.items[id] = a
	}
	return a, nil
}

func (m *memStore) Cancel(_ context.Context, id uuid.UUID, reason string) (domain.Assignment, error) {
	return m.resolve(id, domain.StateCancelled, func(a *domain.Assignment) {
		if reason != "" {
			a.DeclineReason = &reason
		}
	}, func(a domain.Assignment) bool {
		return a.State == domain.StateCreated || a.State == domain.StateOffered
	})
}

func (m *memStore) MarkReassigned(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	return m.resolve(id, domain.StateReassigned, nil, func(a domain.Assignment) bool {
		return a.State == domain.StateDeclined || a.State == domain.StateTimeout || a.State == domain.StateCancelled
	})
}

func (m *memStore) PromoteNextCreated(_ context.Context, serviceOrderID uuid.UUID, offeredAt, expiresAt time.Time) (domain.Assignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *domain.Assignment
	for _, a := range m.items {
		if a.ServiceOrderID != serviceOrderID || a.State != domain.StateCreated {
			continue
		}
		if next == nil || a.Rank < next.Rank {
			candidate := a
			next = &candidate
		}
	}
	if next == nil {
		return domain.Assignment{}, false, nil
	}
	a := *next
	a.State = domain.StateOffered
	a.OfferedAt = &offeredAt
	a.OfferExpiresAt = &expiresAt
	a.UpdatedAt = m.now()
	m.items[a.ID] = a
	return a, true, nil
}

func (m *memStore) CancelSiblings(_ context.Context, serviceOrderID, winnerID uuid.UUID) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cancelled []domain.Assignment
	now := m.now()
	for id, a := range m.items {
		if a.ServiceOrderID != serviceOrderID || id == winnerID {
			continue
		}
		if a.State != domain.StateCreated && a.State != domain.StateOffered {
			continue
		}
		a.State = domain.StateCancelled
		a.ResolvedAt = &now
		a.UpdatedAt = now
		m.items[id] = a
		cancelled = append(cancelled, a)
	}
	return cancelled, nil
}

func (m *memStore) HasOpen(_ context.Context, serviceOrderID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.items {
		if a.ServiceOrderID == serviceOrderID && (a.State == domain.StateCreated || a.State == domain.StateOffered) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) SweepExpired(_ context.Context, limit int) ([]domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []domain.Assignment
	now := m.now()
	for id, a := range m.items {
		if len(expired) >= limit {
			break
		}
		if !a.OfferExpired(now) {
			continue
		}
		a.State = domain.StateTimeout
		a.ResolvedAt = &now
		a.UpdatedAt = now
		m.items[id] = a
		expired = append(expired, a)
	}
	return expired, nil
}

// captureBus records published events synchronously.
type captureBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

func (b *captureBus) has(name string) bool {
	for _, n := range b.names() {
		if n == name {
			return true
		}
	}
	return false
}

// captureNotifier records workflow notifications.
type captureNotifier struct {
	mu   sync.Mutex
	msgs []workflow.Message
}

func (n *captureNotifier) Notify(_ context.Context, msg workflow.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *captureNotifier) named(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.msgs {
		if m.Name == name {
			count++
		}
	}
	return count
}

// stubProviders is an in-memory ProviderStore.
type stubProviders struct {
	pool       []providers.Provider
	teamSkills map[uuid.UUID][]string
}

func (s *stubProviders) ListActive(_ context.Context, _ tenant.Tenant) ([]providers.Provider, error) {
	return s.pool, nil
}

func (s *stubProviders) GetByIDs(_ context.Context, _ tenant.Tenant, ids []uuid.UUID) ([]providers.Provider, error) {
	var out []providers.Provider
	for _, p := range s.pool {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (s *stubProviders) WorkTeamSkills(_ context.Context, _ tenant.Tenant, id uuid.UUID) ([]string, error) {
	skills, ok := s.teamSkills[id]
	if !ok {
		return nil, apperr.NotFound("work team not found")
	}
	return skills, nil
}

// stubFunnel turns the pool into ranked candidates without elimination.
type stubFunnel struct{}

func (stubFunnel) Run(_ context.Context, _ tenant.Tenant, _ orders.ServiceOrder, pool []providers.Provider, _ []string) (funnel.Data, error) {
	data := funnel.Data{TotalProviders: len(pool)}
	for i, p := range pool {
		data.Candidates = append(data.Candidates, scoring.Result{
			ProviderID:   p.ID.String(),
			ProviderName: p.Name,
			TotalScore:   float64(90 - i*10),
		})
	}
	return data, nil
}

// stubSettings returns a fixed tenant config.
type stubSettings struct {
	cfg calendar.Config
	err error
}

func (s stubSettings) GetConfig(context.Context, tenant.Tenant) (calendar.Config, error) {
	if s.err != nil {
		return calendar.Config{}, s.err
	}
	return s.cfg, nil
}
