// ABOUTME: AMQP implementation of the durable command queue using RabbitMQ
// ABOUTME: Durable exchange/queue with persistent messages and manual ack/nack redelivery

package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
)

// AMQPQueue implements Publisher and Consumer over a RabbitMQ connection.
// The exchange and queue are durable and messages are published persistent,
// so enqueued commands survive a broker restart.
type AMQPQueue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	logger   *slog.Logger
}

// NewAMQPQueue connects to RabbitMQ and declares the durable exchange, queue,
// and binding used for command delivery.
func NewAMQPQueue(url, exchange, queueName string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, q.Name, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("binding queue: %w", err)
	}

	logger := slog.Default().With("component", "queue")
	logger.Info("AMQP queue initialized", "exchange", exchange, "queue", queueName)

	return &AMQPQueue{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		queue:    queueName,
		logger:   logger,
	}, nil
}

// Enqueue publishes a persistent message to the command exchange.
func (q *AMQPQueue) Enqueue(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := q.channel.Publish(
		q.exchange,
		q.queue, // routing key matches the bound queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}
	return nil
}

// Consume reads deliveries and invokes the handler for each. Handler errors
// nack the delivery with requeue so the broker redelivers it; successes ack.
// Blocks until ctx is cancelled or the delivery stream closes.
func (q *AMQPQueue) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := q.channel.Consume(
		q.queue,
		"",    // consumer tag
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("starting consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := handler(ctx, d.Body); err != nil {
				q.logger.Warn("handler failed, requeueing delivery", "error", err)
				if nackErr := d.Nack(false, true); nackErr != nil {
					q.logger.Error("nack failed", "error", nackErr)
				}
				continue
			}

			if ackErr := d.Ack(false); ackErr != nil {
				q.logger.Error("ack failed", "error", ackErr)
			}
		}
	}
}

// Close closes the AMQP channel and connection.
func (q *AMQPQueue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
