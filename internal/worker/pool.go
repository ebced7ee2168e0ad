package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rcss-tournament/team-builder/internal/dispatch"
)

// spawnPool spawns N dispatch goroutines based on the concurrency setting
func (w *Worker) spawnPool(ctx context.Context) {
	w.logger.Info("Spawning dispatch pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.poolLoop(ctx, i)
	}
}

// poolLoop is the processing loop for one pool goroutine
func (w *Worker) poolLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Pool goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Pool goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Pool goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case delivery, ok := <-w.msgChan:
			if !ok {
				return
			}
			w.handleDelivery(ctx, delivery, workerName)
		}
	}
}

// handleDelivery dispatches one envelope and acknowledges it. The dispatcher
// guards handler panics, so every delivery reaches an ack.
func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery, workerName string) {
	w.logger.Debug("Dispatching delivery",
		slog.String("worker_name", workerName),
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
	)

	w.dispatcher.Dispatch(ctx, delivery.Body, w.replyFunc(delivery.ReplyTo))

	if err := delivery.Ack(false); err != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.Uint64("delivery_tag", delivery.DeliveryTag),
			slog.String("error", err.Error()),
		)
	}
}

// replyFunc binds a reply callback to the request's reply_to queue. Strings
// go out as plain text, everything else as JSON. Requests without a reply
// queue get a discarding callback.
func (w *Worker) replyFunc(replyTo string) dispatch.ReplyFunc {
	return func(ctx context.Context, v any) error {
		if replyTo == "" {
			return nil
		}

		var body []byte
		contentType := "text/plain"
		switch msg := v.(type) {
		case string:
			body = []byte(msg)
		case []byte:
			body = msg
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode reply: %w", err)
			}
			body = encoded
			contentType = "application/json"
		}

		return w.rabbitClient.PublishReply(ctx, replyTo, body, contentType)
	}
}
