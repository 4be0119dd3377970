// ABOUTME: Streaming session lifecycle: start/stop, active listings, latest-per-email
// ABOUTME: Starts are serialized per user so close-then-create cannot interleave

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/softcialdev/pso-orchestrator/internal/cache"
	"github.com/softcialdev/pso-orchestrator/internal/metrics"
	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// SupervisorDirectory resolves which users a supervisor is responsible for.
// It is an external collaborator (the org directory); lookups go through a
// coalescing cache because dashboards poll it aggressively.
type SupervisorDirectory interface {
	SupervisedUserIDs(ctx context.Context, supervisorID string) ([]string, error)
}

// EmailSession pairs an input email with its latest session, nil when the
// email has no session at all.
type EmailSession struct {
	Email   string                  `json:"email"`
	Session *store.StreamingSession `json:"session"`
}

// Controller owns the streaming session lifecycle for all users.
type Controller struct {
	store     store.Store
	directory SupervisorDirectory
	dirCache  *cache.Cache[[]string]
	starts    *keyedMutex
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewController creates a session controller. cacheTTL bounds how stale the
// supervisor directory view may be. Pass nil logger for default.
func NewController(s store.Store, dir SupervisorDirectory, cacheTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     s,
		directory: dir,
		dirCache:  cache.New[[]string](cacheTTL),
		starts:    newKeyedMutex(),
		metrics:   m,
		logger:    logger.With("component", "session"),
	}
}

// Start opens a new streaming session for the user, closing any session still
// open from a previous run. Concurrent starts for the same user are
// serialized on a per-user mutex so close-then-create cannot interleave and
// leave two open rows.
func (c *Controller) Start(ctx context.Context, userID, email string) (*store.StreamingSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	unlock := c.starts.Lock(userID)
	defer unlock()

	session, err := c.store.StartStreamingSession(ctx, userID, email, time.Now())
	if err != nil {
		return nil, fmt.Errorf("starting session for %s: %w", userID, err)
	}

	c.metrics.StreamingSessionsStarted.Inc()
	return session, nil
}

// Stop closes the user's open session with the given reason. No open session
// is a silent success so duplicate stop requests are not punished.
func (c *Controller) Stop(ctx context.Context, userID, reason string) error {
	unlock := c.starts.Lock(userID)
	defer unlock()

	stopped, err := c.store.StopStreamingSession(ctx, userID, reason, time.Now())
	if err != nil {
		return fmt.Errorf("stopping session for %s: %w", userID, err)
	}
	if !stopped {
		c.logger.Debug("stop with no open session", "user_id", userID, "reason", reason)
		return nil
	}

	c.metrics.StreamingSessionsStopped.WithLabelValues(reason).Inc()
	return nil
}

// ActiveSessions returns every open streaming session.
func (c *Controller) ActiveSessions(ctx context.Context) ([]*store.StreamingSession, error) {
	return c.store.ActiveStreamingSessions(ctx)
}

// ActiveSessionsForSupervisor returns open sessions for the users the
// supervisor is responsible for. Directory lookups are cached and coalesced.
func (c *Controller) ActiveSessionsForSupervisor(ctx context.Context, supervisorID string) ([]*store.StreamingSession, error) {
	userIDs, err := c.dirCache.Get(ctx, supervisorID, func(ctx context.Context) ([]string, error) {
		return c.directory.SupervisedUserIDs(ctx, supervisorID)
	})
	if err != nil {
		return nil, fmt.Errorf("resolving supervised users for %s: %w", supervisorID, err)
	}

	return c.store.ActiveStreamingSessionsForUsers(ctx, userIDs)
}

// LatestSessionsForEmails returns exactly one entry per input email: the most
// recently updated session, or nil when the email has none. A missing session
// is not an error.
func (c *Controller) LatestSessionsForEmails(ctx context.Context, emails []string) ([]EmailSession, error) {
	results := make([]EmailSession, 0, len(emails))
	for _, email := range emails {
		session, err := c.store.LatestStreamingSessionByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				results = append(results, EmailSession{Email: email, Session: nil})
				continue
			}
			return nil, fmt.Errorf("looking up latest session for %s: %w", email, err)
		}
		results = append(results, EmailSession{Email: email, Session: session})
	}
	return results, nil
}

// Close releases the controller's cache resources.
func (c *Controller) Close() {
	c.dirCache.Close()
}
