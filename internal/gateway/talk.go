// ABOUTME: Server-side talk session registry and its HTTP handlers
// ABOUTME: Close is idempotent; the unload beacon path always answers 202

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/softcialdev/pso-orchestrator/internal/auth"
	"github.com/softcialdev/pso-orchestrator/internal/metrics"
	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// TalkService owns the server side of push-to-talk sessions: registration
// when a supervisor's countdown starts, and closing with a stop reason.
type TalkService struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTalkService creates a talk service. Pass nil logger for default.
func NewTalkService(s store.Store, m *metrics.Metrics, logger *slog.Logger) *TalkService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TalkService{
		store:   s,
		metrics: m,
		logger:  logger.With("component", "talk-service"),
	}
}

// Register creates a talk session and returns its id.
func (t *TalkService) Register(ctx context.Context, initiatorID, targetEmail string) (string, error) {
	session := &store.TalkSession{
		ID:          uuid.New().String(),
		InitiatorID: initiatorID,
		TargetID:    targetEmail,
		StartedAt:   time.Now().UTC(),
	}
	if err := t.store.CreateTalkSession(ctx, session); err != nil {
		return "", err
	}

	t.metrics.TalkSessionsStarted.Inc()
	t.logger.Info("talk session registered",
		"session_id", session.ID, "initiator", initiatorID, "target", targetEmail)
	return session.ID, nil
}

// Close stops a talk session. A session that is already closed is a success:
// the client retries stops freely and must not be punished for it.
func (t *TalkService) Close(ctx context.Context, id string, reason store.TalkStopReason) error {
	closed, err := t.store.CloseTalkSession(ctx, id, reason, time.Now())
	if err != nil {
		return err
	}
	if !closed {
		t.logger.Debug("talk session already closed", "session_id", id)
		return nil
	}

	t.metrics.TalkSessionsClosed.WithLabelValues(string(reason)).Inc()
	t.logger.Info("talk session closed", "session_id", id, "reason", reason)
	return nil
}

func (s *Server) handleCreateTalkSession(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		TargetEmail string `json:"targetEmail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetEmail == "" {
		s.writeError(w, http.StatusBadRequest, "targetEmail is required")
		return
	}

	sessionID, err := s.talk.Register(r.Context(), id.ID, req.TargetEmail)
	if err != nil {
		s.logger.Error("registering talk session failed", "target", req.TargetEmail, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"talkSessionId": sessionID})
}

func (s *Server) handleStopTalkSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reason := store.TalkStopReason(req.Reason)
	if !reason.Valid() {
		s.writeError(w, http.StatusBadRequest, "unknown stop reason")
		return
	}

	if err := s.talk.Close(r.Context(), sessionID, reason); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "talk session not found")
			return
		}
		s.logger.Error("closing talk session failed", "session_id", sessionID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleUnloadTalkSession is the sendBeacon target. The page firing it is
// already gone, so the response is 202 no matter what happened: there is no
// caller left to act on a failure.
func (s *Server) handleUnloadTalkSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if err := s.talk.Close(r.Context(), sessionID, store.TalkStopBrowserRefresh); err != nil {
		s.logger.Warn("unload close failed", "session_id", sessionID, "error", err)
	}

	w.WriteHeader(http.StatusAccepted)
}
