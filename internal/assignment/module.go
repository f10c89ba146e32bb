// Package assignment wires the dispatch pipeline: geo scoring, the
// candidate funnel, the assignment lifecycle and the orchestrator.
package assignment

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchcore/internal/assignment/repository"
	"dispatchcore/internal/assignment/service"
	"dispatchcore/internal/calendar"
	"dispatchcore/internal/config"
	"dispatchcore/internal/events"
	"dispatchcore/internal/funnel"
	"dispatchcore/internal/geo"
	"dispatchcore/internal/orders"
	"dispatchcore/internal/providers"
	"dispatchcore/internal/scoring"
	"dispatchcore/internal/workflow"
	"dispatchcore/platform/logger"
	"dispatchcore/platform/validator"
)

type Module struct {
	Lifecycle    *service.Lifecycle
	Orchestrator *service.Orchestrator
	Calendar     *calendar.Service
	Geo          *geo.Service
	Outbox       *workflow.OutboxRepository
}

func NewModule(pool *pgxpool.Pool, cfg *config.Config, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	var driving geo.DrivingDistanceProvider
	if cfg.DistanceAPIBaseURL != "" {
		driving = geo.NewHTTPDrivingProvider(cfg.DistanceAPIBaseURL, cfg.ExternalAPITimeout, log)
	}
	geoSvc := geo.NewService(driving, log)

	calendarRepo := calendar.NewRepository(pool)
	holidays := calendar.NewHTTPHolidayProvider(cfg.HolidayAPIBaseURL, cfg.ExternalAPITimeout, log)
	calendarSvc := calendar.NewService(calendarRepo, holidays, log)

	engine := scoring.NewEngine(geoSvc, log)
	candidateFunnel := funnel.New(calendarSvc, engine, log)

	outboxRepo := workflow.NewOutboxRepository(pool)
	notifier := workflow.NewOutboxNotifier(outboxRepo)

	assignmentRepo := repository.NewAssignmentRepository(pool)
	orderRepo := orders.NewRepository(pool)
	providerRepo := providers.NewRepository(pool)

	offerTimeout := time.Duration(cfg.OfferTimeoutHours) * time.Hour
	lifecycle := service.NewLifecycle(assignmentRepo, orderRepo, notifier, bus, log, offerTimeout)
	orchestrator := service.NewOrchestrator(
		assignmentRepo,
		orderRepo,
		providerRepo,
		candidateFunnel,
		calendarRepo,
		notifier,
		bus,
		val,
		log,
		offerTimeout,
	)

	return &Module{
		Lifecycle:    lifecycle,
		Orchestrator: orchestrator,
		Calendar:     calendarSvc,
		Geo:          geoSvc,
		Outbox:       outboxRepo,
	}
}
