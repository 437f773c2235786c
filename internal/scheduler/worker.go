package scheduler

import (
	"context"
	"fmt"

	deliverysvc "leadflow_backend/internal/delivery/service"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	delivery *deliverysvc.Service
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, delivery *deliverysvc.Service, log *logger.Logger) (*Worker, error) {
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
		server:   server,
		mux:      mux,
		delivery: delivery,
		log:      log,
	}

	mux.HandleFunc(TaskDeliveryRetry, w.handleDeliveryRetry)

	return w, nil
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

func (w *Worker) handleDeliveryRetry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseDeliveryRetryPayload(task)
	if err != nil {
		return err
	}

	deliveryID, err := uuid.Parse(payload.DeliveryID)
	if err != nil {
		return err
	}

	return w.delivery.Retry(ctx, deliveryID)
}
