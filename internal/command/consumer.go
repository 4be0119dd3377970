// ABOUTME: Durable-queue worker: persist each dequeued command, then attempt delivery
// ABOUTME: Handler errors propagate so the queue's own redelivery retries them

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/softcialdev/pso-orchestrator/internal/metrics"
	"github.com/softcialdev/pso-orchestrator/internal/queue"
	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// Consumer turns dequeued command messages into pending rows and attempts
// immediate delivery. The queue delivers at-least-once and the message
// carries no idempotency key, so a redelivered command can create a second
// pending row; reads tolerate this because the active-command lookup returns
// only the newest active row.
type Consumer struct {
	store     store.Store
	deliverer *Deliverer
	ttl       time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewConsumer creates a consumer persisting commands with the given TTL.
// Pass nil logger for default.
func NewConsumer(s store.Store, d *Deliverer, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		store:     s,
		deliverer: d,
		ttl:       ttl,
		metrics:   m,
		logger:    logger.With("component", "consumer"),
	}
}

// Run consumes from the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, q queue.Consumer) error {
	c.logger.Info("command consumer started", "ttl", c.ttl)
	return q.Consume(ctx, c.Handle)
}

// Handle processes one queue message: decode, persist as a pending command,
// then one best-effort delivery attempt. A persistence failure is returned so
// the queue redelivers; a failed delivery attempt is not, the row is already
// durable.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		// A malformed message will never decode; requeueing it would loop forever.
		c.logger.Error("dropping undecodable command message", "error", err)
		return nil
	}
	if cmd.TargetIdentity == "" || !cmd.Type.Valid() {
		c.logger.Error("dropping invalid command message",
			"target", cmd.TargetIdentity, "type", cmd.Type)
		return nil
	}

	c.metrics.CommandsConsumed.Inc()

	pending := &store.PendingCommand{
		ID:        uuid.New().String(),
		TargetID:  cmd.TargetIdentity,
		Type:      cmd.Type,
		Reason:    cmd.Reason,
		IssuedAt:  cmd.IssuedAt,
		ExpiresAt: cmd.IssuedAt.Add(c.ttl),
	}

	if err := c.store.CreatePendingCommand(ctx, pending); err != nil {
		return fmt.Errorf("persisting command: %w", err)
	}

	if _, err := c.deliverer.TryDeliver(ctx, pending); err != nil {
		// Context cancellation mid-delivery; the row is persisted, don't requeue.
		c.logger.Warn("delivery attempt aborted", "command_id", pending.ID, "error", err)
	}
	return nil
}
