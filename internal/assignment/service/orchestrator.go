package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatchcore/internal/assignment/domain"
	"dispatchcore/internal/assignment/transport"
	"dispatchcore/internal/calendar"
	"dispatchcore/internal/events"
	"dispatchcore/internal/funnel"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/providers"
	"dispatchcore/internal/scoring"
	"dispatchcore/internal/tenant"
	"dispatchcore/internal/workflow"
	"dispatchcore/platform/apperr"
	"dispatchcore/platform/logger"
	"dispatchcore/platform/validator"
)

const defaultBroadcastOffers = 3

// ProviderStore is the provider lookup the orchestrator needs.
type ProviderStore interface {
	ListActive(ctx context.Context, ten tenant.Tenant) ([]providers.Provider, error)
	GetByIDs(ctx context.Context, ten tenant.Tenant, ids []uuid.UUID) ([]providers.Provider, error)
	WorkTeamSkills(ctx context.Context, ten tenant.Tenant, workTeamID uuid.UUID) ([]string, error)
}

// FunnelRunner narrows and ranks the candidate pool.
type FunnelRunner interface {
	Run(ctx context.Context, ten tenant.Tenant, order orders.ServiceOrder, pool []providers.Provider, extraSkills []string) (funnel.Data, error)
}

// TenantSettings exposes the per-tenant dispatch configuration.
type TenantSettings interface {
	GetConfig(ctx context.Context, ten tenant.Tenant) (calendar.Config, error)
}

// Orchestrator runs the dispatch pipeline: load the order, narrow the
// pool, rank candidates and persist the resulting assignments in one
// transaction.
type Orchestrator struct {
	store        Store
	orders       OrderStore
	providers    ProviderStore
	funnel       FunnelRunner
	settings     TenantSettings
	notifier     workflow.Notifier
	bus          events.Bus
	validate     *validator.Validator
	log          *logger.Logger
	offerTimeout time.Duration
	now          func() time.Time
}

func NewOrchestrator(
	store Store,
	orderStore OrderStore,
	providerStore ProviderStore,
	funnelRunner FunnelRunner,
	settings TenantSettings,
	notifier workflow.Notifier,
	bus events.Bus,
	validate *validator.Validator,
	log *logger.Logger,
	offerTimeout time.Duration,
) *Orchestrator {
	if offerTimeout <= 0 {
		offerTimeout = 24 * time.Hour
	}
	return &Orchestrator{
		store:        store,
		orders:       orderStore,
		providers:    providerStore,
		funnel:       funnelRunner,
		settings:     settings,
		notifier:     notifier,
		bus:          bus,
		validate:     validate,
		log:          log,
		offerTimeout: offerTimeout,
		now:          time.Now,
	}
}

// Dispatch assigns a service order to one or more providers according
// to the requested mode. The created assignments, the order linkage
// and the funnel audit trail are persisted atomically.
func (o *Orchestrator) Dispatch(ctx context.Context, req transport.DispatchRequest) (transport.DispatchResponse, error) {
	if err := o.validate.Struct(req); err != nil {
		return transport.DispatchResponse{}, apperr.Validation(err.Error())
	}

	ten := tenant.New(req.CountryCode, req.BusinessUnit)
	log := o.log.WithTenant(ten.String())

	order, err := o.orders.GetByID(ctx, ten, req.ServiceOrderID)
	if err != nil {
		return transport.DispatchResponse{}, err
	}

	open, err := o.store.HasOpen(ctx, order.ID)
	if err != nil {
		return transport.DispatchResponse{}, err
	}
	if open {
		return transport.DispatchResponse{}, apperr.Conflict("service order already has an open assignment")
	}
	if order.Status == orders.StatusAccepted || order.Status == orders.StatusCompleted {
		return transport.DispatchResponse{}, apperr.Conflict(
			fmt.Sprintf("service order is %s and cannot be dispatched", order.Status))
	}

	pool, err := o.loadPool(ctx, ten, req.ProviderIDs)
	if err != nil {
		return transport.DispatchResponse{}, err
	}

	var extraSkills []string
	if req.WorkTeamID != nil {
		extraSkills, err = o.providers.WorkTeamSkills(ctx, ten, *req.WorkTeamID)
		if err != nil {
			return transport.DispatchResponse{}, err
		}
	}

	data, err := o.funnel.Run(ctx, ten, order, pool, extraSkills)
	if err != nil {
		return transport.DispatchResponse{}, err
	}
	if len(data.Candidates) == 0 {
		return transport.DispatchResponse{}, apperr.Validation("no eligible providers survived the candidate funnel")
	}

	mode, cfg := o.effectiveMode(ctx, ten, domain.Mode(req.Mode))
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	assignments, upd, err := o.buildAssignments(req, ten, order, data, mode, cfg, correlationID)
	if err != nil {
		return transport.DispatchResponse{}, err
	}

	created, err := o.store.CreateBatch(ctx, ten, assignments, upd)
	if err != nil {
		return transport.DispatchResponse{}, err
	}

	o.publishCreated(ctx, ten, created, order, upd, correlationID)
	log.Info("dispatch_completed",
		"service_order_id", order.ID.String(),
		"mode", string(mode),
		"assignments", len(created),
		"correlation_id", correlationID,
	)

	resp := transport.DispatchResponse{
		Funnel:      data,
		OrderStatus: string(upd.Status),
	}
	for _, a := range created {
		resp.Assignments = append(resp.Assignments, transport.ToAssignmentResponse(a))
	}
	return resp, nil
}

// Reassign routes a resolved assignment to a new provider. The new
// provider passes through the funnel like any other dispatch, so
// eligibility rules still apply.
func (o *Orchestrator) Reassign(ctx context.Context, req transport.ReassignRequest) (transport.DispatchResponse, error) {
	if err := o.validate.Struct(req); err != nil {
		return transport.DispatchResponse{}, apperr.Validation(err.Error())
	}

	previous, err := o.store.GetByID(ctx, req.AssignmentID)
	if err != nil {
		return transport.DispatchResponse{}, err
	}
	if err := domain.ValidateTransition(previous.State, domain.StateReassigned); err != nil {
		return transport.DispatchResponse{}, err
	}

	resp, err := o.Dispatch(ctx, transport.DispatchRequest{
		ServiceOrderID: previous.ServiceOrderID,
		CountryCode:    previous.CountryCode,
		BusinessUnit:   previous.BusinessUnit,
		Mode:           req.Mode,
		ProviderIDs:    []uuid.UUID{req.ProviderID},
		WorkTeamID:     req.WorkTeamID,
		CorrelationID:  previous.CorrelationID,
	})
	if err != nil {
		return transport.DispatchResponse{}, err
	}

	closed, err := o.store.MarkReassigned(ctx, previous.ID)
	if err != nil {
		return transport.DispatchResponse{}, err
	}

	ten := tenant.Tenant{CountryCode: closed.CountryCode, BusinessUnit: closed.BusinessUnit}
	o.bus.Publish(ctx, events.AssignmentReassigned{
		BaseEvent:       events.NewBaseEvent(),
		AssignmentID:    closed.ID,
		NewAssignmentID: resp.Assignments[0].ID,
		ServiceOrderID:  closed.ServiceOrderID,
		ProviderID:      req.ProviderID,
		Tenant:          ten.String(),
		CorrelationID:   closed.CorrelationID,
	})
	return resp, nil
}

func (o *Orchestrator) loadPool(ctx context.Context, ten tenant.Tenant, ids []uuid.UUID) ([]providers.Provider, error) {
	if len(ids) > 0 {
		return o.providers.GetByIDs(ctx, ten, ids)
	}
	return o.providers.ListActive(ctx, ten)
}

// effectiveMode upgrades an OFFER to AUTO_ACCEPT when the tenant has
// auto-accept enabled. A missing config never blocks dispatch, the
// requested mode simply stands.
func (o *Orchestrator) effectiveMode(ctx context.Context, ten tenant.Tenant, requested domain.Mode) (domain.Mode, calendar.Config) {
	cfg, err := o.settings.GetConfig(ctx, ten)
	if err != nil {
		return requested, calendar.Config{}
	}
	if requested == domain.ModeOffer && cfg.AutoAcceptEnabled {
		return domain.ModeAutoAccept, cfg
	}
	return requested, cfg
}

func (o *Orchestrator) buildAssignments(
	req transport.DispatchRequest,
	ten tenant.Tenant,
	order orders.ServiceOrder,
	data funnel.Data,
	mode domain.Mode,
	cfg calendar.Config,
	correlationID string,
) ([]domain.Assignment, orders.AssignmentUpdate, error) {
	funnelJSON, err := json.Marshal(data)
	if err != nil {
		return nil, orders.AssignmentUpdate{}, fmt.Errorf("marshal funnel data: %w", err)
	}

	now := o.now().UTC()
	timeout := o.offerTimeout
	if cfg.OfferTimeoutHours > 0 {
		timeout = time.Duration(cfg.OfferTimeoutHours) * time.Hour
	}
	expiresAt := now.Add(timeout)

	// An explicit provider list carries the caller's ranking; the
	// funnel only filters it. Without one the funnel ranking stands.
	candidates := data.Candidates
	if len(req.ProviderIDs) > 0 {
		candidates = orderedByRequest(req.ProviderIDs, candidates)
	}

	count := len(candidates)
	switch mode {
	case domain.ModeDirect, domain.ModeAutoAccept:
		count = 1
	case domain.ModeBroadcast:
		count = req.MaxOffers
		if count <= 0 {
			count = defaultBroadcastOffers
		}
	case domain.ModeOffer:
		if req.MaxOffers > 0 {
			count = req.MaxOffers
		}
	}
	if count > len(candidates) {
		count = len(candidates)
	}

	var assignments []domain.Assignment
	for i := 0; i < count; i++ {
		providerID, err := uuid.Parse(candidates[i].ProviderID)
		if err != nil {
			return nil, orders.AssignmentUpdate{}, fmt.Errorf("parse candidate provider id: %w", err)
		}

		a := domain.Assignment{
			ID:             uuid.New(),
			ServiceOrderID: order.ID,
			ProviderID:     providerID,
			WorkTeamID:     req.WorkTeamID,
			CountryCode:    ten.CountryCode,
			BusinessUnit:   ten.BusinessUnit,
			Mode:           mode,
			Rank:           i + 1,
			Score:          candidates[i].TotalScore,
			CorrelationID:  correlationID,
			FunnelData:     funnelJSON,
		}

		switch {
		case mode == domain.ModeDirect || mode == domain.ModeAutoAccept:
			a.State = domain.StateAccepted
			a.ResolvedAt = &now
		case mode == domain.ModeOffer && i > 0:
			// Waiting in line; promoted when the open offer falls
			// through.
			a.State = domain.StateCreated
		default:
			a.State = domain.StateOffered
			a.OfferedAt = &now
			a.OfferExpiresAt = &expiresAt
		}
		assignments = append(assignments, a)
	}

	upd := orders.AssignmentUpdate{OrderID: order.ID}
	switch mode {
	case domain.ModeDirect, domain.ModeAutoAccept:
		upd.Status = orders.StatusAccepted
		upd.ProviderID = &assignments[0].ProviderID
		upd.WorkTeamID = req.WorkTeamID
	default:
		// Pending offers reserve the order; the provider linkage is
		// written when one accepts.
		upd.Status = orders.StatusAssigned
	}
	return assignments, upd, nil
}

// orderedByRequest reorders the surviving candidates to the caller's
// provider order. Candidates the funnel rejected simply drop out.
func orderedByRequest(ids []uuid.UUID, candidates []scoring.Result) []scoring.Result {
	byID := make(map[string]scoring.Result, len(candidates))
	for _, c := range candidates {
		byID[c.ProviderID] = c
	}

	out := make([]scoring.Result, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id.String()]
		if !ok {
			continue
		}
		out = append(out, c)
		delete(byID, id.String())
	}
	return out
}

func (o *Orchestrator) publishCreated(ctx context.Context, ten tenant.Tenant, created []domain.Assignment, order orders.ServiceOrder, upd orders.AssignmentUpdate, correlationID string) {
	for _, a := range created {
		o.bus.Publish(ctx, events.AssignmentCreated{
			BaseEvent:      events.NewBaseEvent(),
			AssignmentID:   a.ID,
			ServiceOrderID: a.ServiceOrderID,
			ProviderID:     a.ProviderID,
			Tenant:         ten.String(),
			Mode:           string(a.Mode),
			State:          string(a.State),
			Rank:           a.Rank,
			CorrelationID:  correlationID,
		})

		if a.State == domain.StateCreated {
			// Waiting candidates are notified when their turn comes.
			continue
		}

		name := workflow.NotifyAssignmentOffered
		if a.State == domain.StateAccepted {
			name = workflow.NotifyOrderAssigned
		}
		providerID := a.ProviderID
		msg := workflow.Message{
			ID:             uuid.New(),
			Name:           name,
			ServiceOrderID: a.ServiceOrderID,
			ProviderID:     &providerID,
			CorrelationID:  correlationID,
			Payload: map[string]any{
				"assignmentId": a.ID.String(),
				"mode":         string(a.Mode),
				"state":        string(a.State),
				"rank":         a.Rank,
			},
			CreatedAt: o.now().UTC(),
		}
		if err := o.notifier.Notify(ctx, msg); err != nil {
			o.log.Warn("workflow notification failed", "name", name, "error", err)
		}
	}

	o.bus.Publish(ctx, events.OrderStateChanged{
		BaseEvent:      events.NewBaseEvent(),
		ServiceOrderID: order.ID,
		Tenant:         ten.String(),
		OldStatus:      string(order.Status),
		NewStatus:      string(upd.Status),
		CorrelationID:  correlationID,
	})
}
