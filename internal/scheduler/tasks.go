package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDeliveryRetry = "delivery.retry"

type DeliveryRetryPayload struct {
	DeliveryID string `json:"deliveryId"`
	Attempt    int    `json:"attempt"`
}

func NewDeliveryRetryTask(payload DeliveryRetryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliveryRetry, data), nil
}

func ParseDeliveryRetryPayload(task *asynq.Task) (DeliveryRetryPayload, error) {
	var payload DeliveryRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DeliveryRetryPayload{}, err
	}
	return payload, nil
}
