package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rcss-tournament/team-builder/internal/dispatch"
	"github.com/rcss-tournament/team-builder/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Dispatcher    *dispatch.Dispatcher
	Concurrency   int
	PrefetchCount int
}

// Worker consumes command envelopes from the build queue and feeds them to a
// pool of dispatch goroutines. Build pipelines spawn their own goroutines, so
// a pool slot is only held for the synchronous part of a command.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	dispatcher    *dispatch.Dispatcher
	concurrency   int
	prefetchCount int
	workerID      string
	msgChan       chan amqp.Delivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		dispatcher:    cfg.Dispatcher,
		concurrency:   concurrency,
		prefetchCount: cfg.PrefetchCount,
		workerID:      fmt.Sprintf("builder-%s", uuid.New().String()[:8]),
		msgChan:       make(chan amqp.Delivery, concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming commands. It blocks until the context is canceled
// or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnPool(ctx)
	w.runDeliveryLoop(ctx, deliveries)
	return nil
}

// Stop gracefully stops the worker pool
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
