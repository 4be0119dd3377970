// ABOUTME: Command dispatcher: one realtime attempt, then durable enqueue
// ABOUTME: Realtime failure is recovered by the fallback; enqueue failure is fatal

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/softcialdev/pso-orchestrator/internal/metrics"
	"github.com/softcialdev/pso-orchestrator/internal/queue"
	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// Delivery channel names reported in dispatch receipts.
const (
	DeliveredRealtime = "realtime"
	DeliveredDurable  = "durable"
)

// Broadcaster pushes a payload to a connected identity over the low-latency
// channel. It fails when the identity is unreachable.
type Broadcaster interface {
	Broadcast(identity string, payload []byte) error
}

// Authorizer decides whether an identity is an eligible command recipient.
// Implementations return ErrTargetNotEligible for identities outside the
// permitted role.
type Authorizer interface {
	CanReceiveCommands(ctx context.Context, identity string) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, identity string) error

func (f AuthorizerFunc) CanReceiveCommands(ctx context.Context, identity string) error {
	return f(ctx, identity)
}

// Receipt reports how a command left the dispatcher.
type Receipt struct {
	DeliveredVia string
}

// Dispatcher sends administrative commands with a low-latency first attempt
// and a durable fallback. There is no retry loop: each channel is attempted
// at most once, and the durable channel is the retry strategy.
type Dispatcher struct {
	broadcaster Broadcaster
	publisher   queue.Publisher
	authorizer  Authorizer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass nil logger for default.
func NewDispatcher(b Broadcaster, p queue.Publisher, a Authorizer, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		broadcaster: b,
		publisher:   p,
		authorizer:  a,
		metrics:     m,
		logger:      logger.With("component", "dispatcher"),
	}
}

// Send validates and dispatches a command to the target identity. A realtime
// broadcast failure is non-fatal and falls back to the durable queue; a
// durable enqueue failure is a PersistenceError surfaced to the caller.
func (d *Dispatcher) Send(ctx context.Context, target string, cmdType store.CommandType, reason string) (*Receipt, error) {
	if !cmdType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommandType, cmdType)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: empty target", ErrTargetNotEligible)
	}

	if err := d.authorizer.CanReceiveCommands(ctx, target); err != nil {
		return nil, err
	}

	cmd := &Command{
		TargetIdentity: target,
		Type:           cmdType,
		Reason:         reason,
		IssuedAt:       time.Now().UTC(),
	}

	payload, err := cmd.envelope("")
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	if err := d.broadcaster.Broadcast(target, payload); err == nil {
		d.logger.Info("command delivered realtime", "target", target, "type", cmdType)
		d.metrics.CommandsSent.WithLabelValues(DeliveredRealtime, string(cmdType)).Inc()
		return &Receipt{DeliveredVia: DeliveredRealtime}, nil
	} else {
		d.logger.Warn("realtime delivery failed, falling back to durable queue",
			"target", target, "type", cmdType, "error", err)
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	if err := d.publisher.Enqueue(ctx, body); err != nil {
		return nil, &PersistenceError{Op: "enqueue", Err: err}
	}

	d.logger.Info("command enqueued durable", "target", target, "type", cmdType)
	d.metrics.CommandsSent.WithLabelValues(DeliveredDurable, string(cmdType)).Inc()
	return &Receipt{DeliveredVia: DeliveredDurable}, nil
}
