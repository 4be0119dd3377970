// ABOUTME: Best-effort delivery of persisted pending commands to connected clients
// ABOUTME: "Not connected" is an expected outcome, reported as a flag rather than an error

package command

import (
	"context"
	"log/slog"

	"github.com/softcialdev/pso-orchestrator/internal/metrics"
	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// Presence reports whether an identity currently holds a live connection.
type Presence interface {
	IsConnected(identity string) bool
}

// Deliverer pushes persisted pending commands to their targets when the
// target is connected. The pending row remains the durable source of truth
// either way; a disconnected target simply picks the command up later via
// the active-command lookup.
type Deliverer struct {
	presence    Presence
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewDeliverer creates a deliverer. Pass nil logger for default.
func NewDeliverer(p Presence, b Broadcaster, m *metrics.Metrics, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		presence:    p,
		broadcaster: b,
		metrics:     m,
		logger:      logger.With("component", "deliverer"),
	}
}

// TryDeliver attempts one push of the pending command to its target. Returns
// whether delivery happened. A disconnected target or a failed push returns
// (false, nil): the command stays pending and is not an error condition.
func (d *Deliverer) TryDeliver(ctx context.Context, pending *store.PendingCommand) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if !d.presence.IsConnected(pending.TargetID) {
		d.logger.Debug("target offline, command stays pending",
			"command_id", pending.ID, "target_id", pending.TargetID)
		return false, nil
	}

	cmd := &Command{
		TargetIdentity: pending.TargetID,
		Type:           pending.Type,
		Reason:         pending.Reason,
		IssuedAt:       pending.IssuedAt,
	}
	payload, err := cmd.envelope(pending.ID)
	if err != nil {
		return false, err
	}

	if err := d.broadcaster.Broadcast(pending.TargetID, payload); err != nil {
		// The client dropped between the presence check and the push.
		d.logger.Warn("push to connected target failed, command stays pending",
			"command_id", pending.ID, "target_id", pending.TargetID, "error", err)
		return false, nil
	}

	d.metrics.CommandsDelivered.Inc()
	d.logger.Info("pending command delivered",
		"command_id", pending.ID, "target_id", pending.TargetID, "type", pending.Type)
	return true, nil
}
