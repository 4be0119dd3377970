// ABOUTME: Durable queue contracts for command delivery fallback
// ABOUTME: Defines the Publisher and Consumer interfaces implemented by AMQP and memory queues

package queue

import "context"

// Handler processes one dequeued message body. Returning an error causes the
// message to be redelivered by the queue; the queue, not the handler, owns
// retry. Delivery is at-least-once.
type Handler func(ctx context.Context, body []byte) error

// Publisher enqueues messages onto the durable channel.
type Publisher interface {
	Enqueue(ctx context.Context, body []byte) error
}

// Consumer drives a handler with dequeued messages until the context is
// cancelled or the underlying delivery stream closes.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}
