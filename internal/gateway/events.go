// ABOUTME: SSE event stream carrying realtime command payloads to clients
// ABOUTME: An open stream is what makes an identity "connected" for presence

package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/softcialdev/pso-orchestrator/internal/auth"
)

// heartbeatInterval keeps idle streams alive through proxies.
const heartbeatInterval = 30 * time.Second

// handleEvents streams command payloads to the authenticated identity. The
// subscription itself is the presence signal: while the stream is open the
// dispatcher's realtime path can reach this client.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	identity := auth.MustFromContext(r.Context())

	ch, subID := s.hub.Subscribe(r.Context(), identity.ID)
	s.metrics.ConnectedClients.Inc()
	defer func() {
		s.hub.Unsubscribe(identity.ID, subID)
		s.metrics.ConnectedClients.Dec()
	}()

	// Send initial connection event
	fmt.Fprintf(w, "event: connected\ndata: {\"identity\": %q}\n\n", identity.ID)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case payload, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: command\ndata: %s\n\n", payload)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
