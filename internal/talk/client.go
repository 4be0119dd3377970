// ABOUTME: HTTP implementations of the talk Registry and the unload Beacon
// ABOUTME: The beacon posts without reading the response; the registry is request/response

package talk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/softcialdev/pso-orchestrator/internal/store"
)

// HTTPRegistry talks to the orchestrator's talk-session endpoints.
type HTTPRegistry struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRegistry creates a registry client against the orchestrator at
// baseURL, authenticating with the given bearer token.
func NewHTTPRegistry(baseURL, token string) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// RegisterTalkSession creates a talk session for the target and returns its id.
func (r *HTTPRegistry) RegisterTalkSession(ctx context.Context, targetEmail string) (string, error) {
	body, err := json.Marshal(map[string]string{"targetEmail": targetEmail})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/talk-sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("registering talk session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("registering talk session: unexpected status %d", resp.StatusCode)
	}

	var result struct {
		TalkSessionID string `json:"talkSessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return result.TalkSessionID, nil
}

// CloseTalkSession stops a talk session with the given reason.
func (r *HTTPRegistry) CloseTalkSession(ctx context.Context, sessionID string, reason store.TalkStopReason) error {
	body, err := json.Marshal(map[string]string{"reason": string(reason)})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/api/talk-sessions/%s/stop", r.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("closing talk session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("closing talk session: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// HTTPBeacon posts the unload notification and walks away. There is no
// delivery confirmation: the request runs in its own goroutine with a short
// timeout, and failures are only logged. This is the one accepted
// "at most once, unconfirmed" path in the system.
type HTTPBeacon struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPBeacon creates a beacon against the orchestrator at baseURL.
// Pass nil logger for default.
func NewHTTPBeacon(baseURL string, logger *slog.Logger) *HTTPBeacon {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPBeacon{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Second},
		logger:  logger.With("component", "beacon"),
	}
}

// NotifyStop fires the stop notification without waiting for it.
func (b *HTTPBeacon) NotifyStop(sessionID string, reason store.TalkStopReason) {
	url := fmt.Sprintf("%s/api/talk-sessions/%s/unload", b.baseURL, sessionID)
	body, _ := json.Marshal(map[string]string{"reason": string(reason)})

	go func() {
		resp, err := b.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			b.logger.Debug("unload beacon failed", "session_id", sessionID, "error", err)
			return
		}
		resp.Body.Close()
	}()
}
