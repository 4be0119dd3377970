// ABOUTME: Push-to-talk state machine: countdown-gated start, idempotent stop
// ABOUTME: Teardown order is load-bearing: recording, then session, then transport

package talk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// State is the talk controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateCountdownPending
	StateTalking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountdownPending:
		return "countdown_pending"
	case StateTalking:
		return "talking"
	default:
		return "unknown"
	}
}

// DefaultCountdown is how long the supervisor has to abort before the
// microphone goes live.
const DefaultCountdown = 3 * time.Second

// Controller coordinates one supervisor's push-to-talk channel to a PSO:
// a registered server session, a cancellable countdown, and the microphone
// publish state on the media transport.
//
// Methods are guarded by a mutex and are idempotent where the state machine
// requires it: Start outside Idle, Stop outside Talking, and a second Stop
// are all no-ops.
type Controller struct {
	mu        sync.Mutex
	state     State
	sessionID string
	countdown *Countdown

	target    string
	transport Transport
	registry  Registry
	beacon    Beacon
	delay     time.Duration
	logger    *slog.Logger
}

// NewController creates an idle controller for one target PSO.
// Pass nil logger for default.
func NewController(target string, transport Transport, registry Registry, beacon Beacon, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		state:     StateIdle,
		target:    target,
		transport: transport,
		registry:  registry,
		beacon:    beacon,
		delay:     DefaultCountdown,
		logger:    logger.With("component", "talk", "target", target),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the registered server session id, empty when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start registers a talk session, runs the countdown, and publishes the
// local microphone. Calling Start outside Idle is a no-op. A publish failure
// cleans up, closes the server session with CONNECTION_ERROR, and returns
// the error so the UI can surface it; a cancelled countdown returns nil
// (Cancel already notified the server).
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.logger.Debug("start ignored", "state", c.state)
		return nil
	}
	// Claim the state before the registration round-trip so rapid repeated
	// start events cannot register twice.
	c.state = StateCountdownPending
	countdown := newCountdown(c.delay)
	c.countdown = countdown
	c.mu.Unlock()

	sessionID, err := c.registry.RegisterTalkSession(ctx, c.target)
	if err != nil {
		c.reset()
		return fmt.Errorf("registering talk session: %w", err)
	}

	c.mu.Lock()
	if c.state != StateCountdownPending {
		// Torn down while registering; the session just created must not leak.
		c.mu.Unlock()
		c.closeSession(ctx, sessionID, store.TalkStopUser)
		return nil
	}
	c.sessionID = sessionID
	c.mu.Unlock()

	c.logger.Info("countdown started", "session_id", sessionID, "delay", c.delay)

	completed, err := countdown.Wait(ctx)
	if err != nil {
		c.reset()
		c.closeSession(context.WithoutCancel(ctx), sessionID, store.TalkStopConnectionError)
		return err
	}
	if !completed {
		// Cancel owns the USER_STOP notification.
		return nil
	}

	c.mu.Lock()
	if c.state != StateCountdownPending || c.sessionID != sessionID {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.transport.PublishLocalAudio(ctx); err != nil {
		// Unpublish first so a half-published track does not linger, then
		// close the session so the server does not count us as talking.
		if cleanupErr := c.transport.UnpublishLocalAudio(ctx); cleanupErr != nil {
			c.logger.Warn("cleanup unpublish failed", "error", cleanupErr)
		}
		c.closeSession(ctx, sessionID, store.TalkStopConnectionError)
		c.reset()
		return fmt.Errorf("publishing microphone: %w", err)
	}

	c.mu.Lock()
	if c.state != StateCountdownPending || c.sessionID != sessionID {
		// Torn down while the publish was in flight. The teardown path
		// already notified the server; the track just published must come
		// back down so the mic is not left hot.
		c.mu.Unlock()
		if cleanupErr := c.transport.UnpublishLocalAudio(ctx); cleanupErr != nil {
			c.logger.Warn("cleanup unpublish failed", "error", cleanupErr)
		}
		return nil
	}
	c.state = StateTalking
	c.mu.Unlock()

	c.logger.Info("talking", "session_id", sessionID)
	return nil
}

// Cancel aborts a pending countdown and notifies the server with USER_STOP.
// Valid only in CountdownPending; otherwise a no-op.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCountdownPending {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	countdown := c.countdown
	c.state = StateIdle
	c.sessionID = ""
	c.countdown = nil
	c.mu.Unlock()

	if countdown != nil {
		countdown.Cancel()
	}
	if sessionID != "" {
		c.closeSession(ctx, sessionID, store.TalkStopUser)
	}

	c.logger.Info("countdown cancelled", "session_id", sessionID)
	return nil
}

// Stop ends an active talk session with the given reason: unpublish the
// microphone, then close the server session. During a countdown it behaves
// like Cancel. Safe to call twice; the second call is a no-op.
func (c *Controller) Stop(ctx context.Context, reason store.TalkStopReason) error {
	c.mu.Lock()
	switch c.state {
	case StateCountdownPending:
		c.mu.Unlock()
		return c.Cancel(ctx)
	case StateIdle:
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	c.state = StateIdle
	c.sessionID = ""
	c.mu.Unlock()

	// Unpublish before closing the session: once the transport is gone the
	// unpublish fails silently and the server keeps an active session.
	if err := c.transport.UnpublishLocalAudio(ctx); err != nil {
		c.logger.Warn("unpublish failed", "session_id", sessionID, "error", err)
	}
	c.closeSession(ctx, sessionID, reason)

	c.logger.Info("talk session stopped", "session_id", sessionID, "reason", reason)
	return nil
}

// Teardown runs the full shutdown sequence when the hosting stream ends:
// stop recording, stop the talk session, disconnect the transport. The order
// is required, and every step runs even when an earlier one fails.
func (c *Controller) Teardown(ctx context.Context, recorder Recorder, reason store.TalkStopReason) {
	if recorder != nil {
		if err := recorder.StopRecording(ctx); err != nil {
			c.logger.Warn("stop recording failed", "error", err)
		}
	}

	if err := c.Stop(ctx, reason); err != nil {
		c.logger.Warn("stop talk session failed", "error", err)
	}

	if err := c.transport.Disconnect(ctx); err != nil {
		c.logger.Warn("transport disconnect failed", "error", err)
	}
}

// NotifyUnload fires the best-effort BROWSER_REFRESH stop notification and
// drops to Idle without touching the transport: the hosting page is going
// away and cannot await anything.
func (c *Controller) NotifyUnload() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	sessionID := c.sessionID
	countdown := c.countdown
	c.state = StateIdle
	c.sessionID = ""
	c.countdown = nil
	c.mu.Unlock()

	if countdown != nil {
		countdown.Cancel()
	}
	if sessionID != "" {
		c.beacon.NotifyStop(sessionID, store.TalkStopBrowserRefresh)
	}
}

// reset returns the controller to Idle, cancelling any countdown.
func (c *Controller) reset() {
	c.mu.Lock()
	countdown := c.countdown
	c.state = StateIdle
	c.sessionID = ""
	c.countdown = nil
	c.mu.Unlock()

	if countdown != nil {
		countdown.Cancel()
	}
}

// closeSession notifies the registry, logging instead of failing: by the
// time a close is sent the local state is already Idle and there is nothing
// the caller could do differently.
func (c *Controller) closeSession(ctx context.Context, sessionID string, reason store.TalkStopReason) {
	if sessionID == "" {
		return
	}
	if err := c.registry.CloseTalkSession(ctx, sessionID, reason); err != nil {
		c.logger.Warn("closing talk session failed",
			"session_id", sessionID, "reason", reason, "error", err)
	}
}
