package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"dispatchcore/internal/events"
	"dispatchcore/internal/workflow"
	"dispatchcore/platform/logger"
)

const (
	defaultSweepBatchSize = 200
	defaultDrainBatchSize = 50
)

// Sweeper times out overdue offers. The assignment lifecycle service
// implements it.
type Sweeper interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Outbox claims and settles stored workflow notifications.
type Outbox interface {
	ClaimPending(ctx context.Context, limit int) ([]workflow.OutboxRecord, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper Sweeper
	outbox  Outbox
	bus     events.Bus
	log     *logger.Logger
}

func NewWorker(cfg Config, sweeper Sweeper, outbox Outbox, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		sweeper: sweeper,
		outbox:  outbox,
		bus:     bus,
		log:     log,
	}

	mux.HandleFunc(TaskOfferTimeoutSweep, w.handleOfferTimeoutSweep)
	mux.HandleFunc(TaskWorkflowOutboxDrain, w.handleWorkflowOutboxDrain)

	return w, nil
}

func (w *Worker) handleOfferTimeoutSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOfferTimeoutSweepPayload(task)
	if err != nil {
		return err
	}

	batch := payload.BatchSize
	if batch < 1 {
		batch = defaultSweepBatchSize
	}

	_, err = w.sweeper.SweepExpired(ctx, batch)
	return err
}

func (w *Worker) handleWorkflowOutboxDrain(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil || w.outbox == nil {
		return nil
	}

	payload, err := ParseWorkflowOutboxDrainPayload(task)
	if err != nil {
		return err
	}

	batch := payload.BatchSize
	if batch < 1 {
		batch = defaultDrainBatchSize
	}

	records, err := w.outbox.ClaimPending(ctx, batch)
	if err != nil {
		return err
	}

	for _, rec := range records {
		err := w.bus.PublishSync(ctx, events.WorkflowNotificationDue{
			BaseEvent:      events.NewBaseEvent(),
			OutboxID:       rec.ID,
			Name:           rec.Name,
			ServiceOrderID: rec.ServiceOrderID,
			ProviderID:     rec.ProviderID,
			CorrelationID:  rec.CorrelationID,
			Payload:        rec.Payload,
		})
		if err != nil {
			w.log.Warn("workflow notification delivery failed",
				"outbox_id", rec.ID.String(), "name", rec.Name, "error", err)
			if markErr := w.outbox.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
				w.log.DatabaseError("mark outbox record failed", markErr)
			}
			continue
		}
		if err := w.outbox.MarkDispatched(ctx, rec.ID); err != nil {
			w.log.DatabaseError("mark outbox record dispatched", err)
		}
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
