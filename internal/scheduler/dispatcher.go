package scheduler

import (
	"context"
	"time"

	"dispatchcore/platform/logger"
)

// Dispatcher periodically enqueues the sweep and drain tasks. The
// worker does the actual work; the dispatcher only keeps the queue fed.
type Dispatcher struct {
	client        *Client
	sweepInterval time.Duration
	drainInterval time.Duration
	log           *logger.Logger
}

func NewDispatcher(client *Client, sweepInterval, drainInterval time.Duration, log *logger.Logger) *Dispatcher {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	if drainInterval <= 0 {
		drainInterval = 15 * time.Second
	}
	return &Dispatcher{
		client:        client,
		sweepInterval: sweepInterval,
		drainInterval: drainInterval,
		log:           log,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	sweep := time.NewTicker(d.sweepInterval)
	defer sweep.Stop()
	drain := time.NewTicker(d.drainInterval)
	defer drain.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if err := d.client.EnqueueOfferTimeoutSweep(ctx, OfferTimeoutSweepPayload{}); err != nil {
				d.log.Warn("failed to enqueue offer timeout sweep", "error", err)
			}
		case <-drain.C:
			if err := d.client.EnqueueWorkflowOutboxDrain(ctx, WorkflowOutboxDrainPayload{}); err != nil {
				d.log.Warn("failed to enqueue workflow outbox drain", "error", err)
			}
		}
	}
}
