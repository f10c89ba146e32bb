package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskOfferTimeoutSweep = "dispatch.offers.sweep"

const TaskWorkflowOutboxDrain = "dispatch.outbox.drain"

type OfferTimeoutSweepPayload struct {
	BatchSize int `json:"batchSize"`
}

type WorkflowOutboxDrainPayload struct {
	BatchSize int `json:"batchSize"`
}

func NewOfferTimeoutSweepTask(payload OfferTimeoutSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOfferTimeoutSweep, data), nil
}

func ParseOfferTimeoutSweepPayload(task *asynq.Task) (OfferTimeoutSweepPayload, error) {
	var payload OfferTimeoutSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OfferTimeoutSweepPayload{}, err
	}
	return payload, nil
}

func NewWorkflowOutboxDrainTask(payload WorkflowOutboxDrainPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowOutboxDrain, data), nil
}

func ParseWorkflowOutboxDrainPayload(task *asynq.Task) (WorkflowOutboxDrainPayload, error) {
	var payload WorkflowOutboxDrainPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WorkflowOutboxDrainPayload{}, err
	}
	return payload, nil
}
