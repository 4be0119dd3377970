// ABOUTME: HTTP API surface: command dispatch/ack, streaming and talk sessions
// ABOUTME: Handlers translate the orchestration core's errors into status codes

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/softcialdev/pso-orchestrator/internal/auth"
	"github.com/softcialdev/pso-orchestrator/internal/command"
	"github.com/softcialdev/pso-orchestrator/internal/metrics"
	"github.com/softcialdev/pso-orchestrator/internal/realtime"
	"github.com/softcialdev/pso-orchestrator/internal/session"
	"github.com/softcialdev/pso-orchestrator/internal/store"
	"github.com/softcialdev/pso-orchestrator/internal/timer"
)

// Server hosts the orchestrator's HTTP API.
type Server struct {
	store      store.Store
	dispatcher *command.Dispatcher
	sessions   *session.Controller
	talk       *TalkService
	hub        *realtime.Hub
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewServer creates the API server. Pass nil logger for default.
func NewServer(s store.Store, d *command.Dispatcher, sc *session.Controller, ts *TalkService, hub *realtime.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:      s,
		dispatcher: d,
		sessions:   sc,
		talk:       ts,
		hub:        hub,
		metrics:    m,
		logger:     logger.With("component", "gateway"),
	}
}

// Routes builds the full handler tree. Authenticated routes sit behind the
// bearer token middleware; the unload beacon and health/metrics endpoints do
// not, because their callers cannot present credentials.
func (s *Server) Routes(verifier auth.TokenVerifier, service *auth.ServiceTokens) http.Handler {
	authed := auth.Middleware(verifier, service)
	supervisors := auth.RequireRole(auth.RoleSupervisor)
	psos := auth.RequireRole(auth.RolePSO)

	mux := http.NewServeMux()

	mux.Handle("POST /api/commands", authed(supervisors(http.HandlerFunc(s.handleSendCommand))))
	mux.Handle("GET /api/commands/active", authed(psos(http.HandlerFunc(s.handleActiveCommand))))
	mux.Handle("POST /api/commands/ack", authed(psos(http.HandlerFunc(s.handleAcknowledge))))

	mux.Handle("POST /api/talk-sessions", authed(supervisors(http.HandlerFunc(s.handleCreateTalkSession))))
	mux.Handle("POST /api/talk-sessions/{id}/stop", authed(http.HandlerFunc(s.handleStopTalkSession)))
	// sendBeacon cannot set headers, so the unload path takes no credentials.
	mux.Handle("POST /api/talk-sessions/{id}/unload", http.HandlerFunc(s.handleUnloadTalkSession))

	mux.Handle("POST /api/streaming-sessions", authed(psos(http.HandlerFunc(s.handleStreamingStatus))))
	mux.Handle("GET /api/streaming-sessions/active", authed(supervisors(http.HandlerFunc(s.handleActiveSessions))))
	mux.Handle("POST /api/streaming-sessions/latest", authed(supervisors(http.HandlerFunc(s.handleLatestSessions))))

	mux.Handle("GET /api/events", authed(http.HandlerFunc(s.handleEvents)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type sendCommandRequest struct {
	Target string `json:"target"`
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := s.dispatcher.Send(r.Context(), req.Target, store.CommandType(req.Type), req.Reason)
	if err != nil {
		var perr *command.PersistenceError
		switch {
		case errors.Is(err, command.ErrInvalidCommandType):
			s.writeError(w, http.StatusBadRequest, "invalid command type")
		case errors.Is(err, command.ErrTargetNotEligible):
			s.writeError(w, http.StatusUnprocessableEntity, "target not eligible for commands")
		case errors.As(err, &perr):
			s.logger.Error("command dispatch failed", "target", req.Target, "error", err)
			s.writeError(w, http.StatusInternalServerError, "command could not be persisted")
		default:
			s.logger.Error("command dispatch failed", "target", req.Target, "error", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"deliveredVia": receipt.DeliveredVia})
}

type pendingCommandResponse struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	IssuedAt time.Time `json:"issuedAt"`
}

func (s *Server) handleActiveCommand(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	pending, err := s.store.FetchActiveCommand(r.Context(), id.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.logger.Error("fetching active command failed", "target", id.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, pendingCommandResponse{
		ID:       pending.ID,
		Type:     string(pending.Type),
		Reason:   pending.Reason,
		IssuedAt: pending.IssuedAt,
	})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.store.AcknowledgeCommands(r.Context(), req.IDs, id.ID)
	if err != nil {
		s.logger.Error("acknowledging commands failed", "acker", id.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.metrics.CommandsAcknowledged.Add(float64(updated))
	s.writeJSON(w, http.StatusOK, map[string]int{"updatedCount": updated})
}

type streamingStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleStreamingStatus(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req streamingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Status {
	case "started":
		if _, err := s.sessions.Start(r.Context(), id.ID, id.Email); err != nil {
			s.logger.Error("starting streaming session failed", "user_id", id.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	case "stopped":
		if err := s.sessions.Stop(r.Context(), id.ID, req.Reason); err != nil {
			s.logger.Error("stopping streaming session failed", "user_id", id.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	default:
		s.writeError(w, http.StatusBadRequest, "status must be started or stopped")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sessionResponse is the wire shape of a streaming session. Timer is derived
// from the stop reason for closed sessions so dashboards can render break
// countdowns without re-implementing the rules.
type sessionResponse struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	Email      string           `json:"email"`
	StartedAt  time.Time        `json:"startedAt"`
	StoppedAt  *time.Time       `json:"stoppedAt,omitempty"`
	StopReason string           `json:"stopReason,omitempty"`
	Timer      *timer.TimerInfo `json:"timer,omitempty"`
}

func toSessionResponse(sess *store.StreamingSession, now time.Time) sessionResponse {
	resp := sessionResponse{
		ID:         sess.ID,
		UserID:     sess.UserID,
		Email:      sess.Email,
		StartedAt:  sess.StartedAt,
		StoppedAt:  sess.StoppedAt,
		StopReason: sess.StopReason,
	}
	if sess.StoppedAt != nil {
		resp.Timer = timer.Derive(sess.StopReason, *sess.StoppedAt, now)
	}
	return resp
}

func (s *Server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var (
		sessions []*store.StreamingSession
		err      error
	)
	if r.URL.Query().Get("supervisor") == "me" {
		sessions, err = s.sessions.ActiveSessionsForSupervisor(r.Context(), id.ID)
	} else {
		sessions, err = s.sessions.ActiveSessions(r.Context())
	}
	if err != nil {
		s.logger.Error("listing active sessions failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	resp := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, toSessionResponse(sess, now))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type latestSessionsResponse struct {
	Email   string           `json:"email"`
	Session *sessionResponse `json:"session"`
}

func (s *Server) handleLatestSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails []string `json:"emails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.sessions.LatestSessionsForEmails(r.Context(), req.Emails)
	if err != nil {
		s.logger.Error("latest session lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	resp := make([]latestSessionsResponse, 0, len(results))
	for _, result := range results {
		entry := latestSessionsResponse{Email: result.Email}
		if result.Session != nil {
			sr := toSessionResponse(result.Session, now)
			entry.Session = &sr
		}
		resp = append(resp, entry)
	}
	s.writeJSON(w, http.StatusOK, resp)
}
