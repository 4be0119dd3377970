// ABOUTME: In-memory queue implementation with at-least-once redelivery
// ABOUTME: Used by tests and single-process deployments without a broker

package queue

import (
	"context"
	"errors"
	"log/slog"
)

// MemoryQueue is a channel-backed Publisher/Consumer pair with the same
// redelivery contract as the AMQP queue: a failed handler puts the message
// back at the end of the queue.
type MemoryQueue struct {
	messages chan []byte
	logger   *slog.Logger
}

// NewMemoryQueue creates an in-memory queue with the given buffer capacity.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		messages: make(chan []byte, capacity),
		logger:   slog.Default().With("component", "queue"),
	}
}

// Enqueue places a message on the queue. Fails when the buffer is full so
// callers see durable-channel failure rather than silently blocking.
func (q *MemoryQueue) Enqueue(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.messages <- body:
		return nil
	default:
		return errors.New("queue full")
	}
}

// Consume invokes the handler for each queued message. Handler errors requeue
// the message. Blocks until ctx is cancelled.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case body := <-q.messages:
			if err := handler(ctx, body); err != nil {
				q.logger.Warn("handler failed, requeueing message", "error", err)
				select {
				case q.messages <- body:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Len returns the number of queued messages.
func (q *MemoryQueue) Len() int {
	return len(q.messages)
}
