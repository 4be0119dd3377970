// ABOUTME: Tests for the HTTP API and the SSE event stream
// ABOUTME: Exercises the full stack: auth, dispatch, sessions, talk, presence

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softcialdev/pso-orchestrator/internal/auth"
	"github.com/softcialdev/pso-orchestrator/internal/command"
	"github.com/softcialdev/pso-orchestrator/internal/metrics"
	"github.com/softcialdev/pso-orchestrator/internal/queue"
	"github.com/softcialdev/pso-orchestrator/internal/realtime"
	"github.com/softcialdev/pso-orchestrator/internal/session"
	"github.com/softcialdev/pso-orchestrator/internal/store"
)

type testDirectory struct {
	users map[string][]string
}

func (d *testDirectory) SupervisedUserIDs(_ context.Context, supervisorID string) ([]string, error) {
	return d.users[supervisorID], nil
}

type testEnv struct {
	ts       *httptest.Server
	store    store.Store
	hub      *realtime.Hub
	queue    *queue.MemoryQueue
	verifier *auth.JWTVerifier
	dir      *testDirectory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)
	q := queue.NewMemoryQueue(16)

	allowAll := command.AuthorizerFunc(func(context.Context, string) error { return nil })
	dispatcher := command.NewDispatcher(hub, q, allowAll, m, nil)

	dir := &testDirectory{users: make(map[string][]string)}
	sessions := session.NewController(s, dir, time.Minute, m, nil)
	t.Cleanup(sessions.Close)

	talkSvc := NewTalkService(s, m, nil)
	verifier := auth.NewJWTVerifier([]byte("test-secret"))

	server := NewServer(s, dispatcher, sessions, talkSvc, hub, m, nil)
	ts := httptest.NewServer(server.Routes(verifier, nil))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: s, hub: hub, queue: q, verifier: verifier, dir: dir}
}

func (e *testEnv) token(t *testing.T, id, email string, role auth.Role) string {
	t.Helper()
	token, err := e.verifier.Generate(&auth.Identity{ID: id, Email: email, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSendCommand_FallsBackToDurable(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/commands", sup,
		map[string]string{"target": "pso-1", "type": "START"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, command.DeliveredDurable, body["deliveredVia"])
	assert.Equal(t, 1, env.queue.Len())
}

func TestSendCommand_RealtimeWhenConnected(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := env.hub.Subscribe(ctx, "pso-1")

	resp := env.do(t, http.MethodPost, "/api/commands", sup,
		map[string]string{"target": "pso-1", "type": "STOP"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	assert.Equal(t, command.DeliveredRealtime, body["deliveredVia"])

	select {
	case payload := <-ch:
		assert.Contains(t, string(payload), `"STOP"`)
	case <-time.After(time.Second):
		t.Fatal("no payload reached the subscriber")
	}
}

func TestSendCommand_InvalidType(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/commands", sup,
		map[string]string{"target": "pso-1", "type": "RESTART"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendCommand_RequiresSupervisorRole(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)

	resp := env.do(t, http.MethodPost, "/api/commands", pso,
		map[string]string{"target": "pso-2", "type": "START"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSendCommand_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/commands", "",
		map[string]string{"target": "pso-1", "type": "START"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func insertPending(t *testing.T, s store.Store, targetID string, cmdType store.CommandType) *store.PendingCommand {
	t.Helper()
	now := time.Now().UTC()
	pending := &store.PendingCommand{
		ID:        uuid.New().String(),
		TargetID:  targetID,
		Type:      cmdType,
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	require.NoError(t, s.CreatePendingCommand(context.Background(), pending))
	return pending
}

func TestActiveCommand(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)

	pending := insertPending(t, env.store, "pso-1", store.CommandStart)

	resp := env.do(t, http.MethodGet, "/api/commands/active", pso, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[pendingCommandResponse](t, resp)
	assert.Equal(t, pending.ID, body.ID)
	assert.Equal(t, "START", body.Type)
}

func TestActiveCommand_NoneIs204(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)

	resp := env.do(t, http.MethodGet, "/api/commands/active", pso, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAcknowledge_SecondCallCountsZero(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)

	pending := insertPending(t, env.store, "pso-1", store.CommandStart)
	ack := map[string][]string{"ids": {pending.ID}}

	resp := env.do(t, http.MethodPost, "/api/commands/ack", pso, ack)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[map[string]int](t, resp)["updatedCount"])

	resp = env.do(t, http.MethodPost, "/api/commands/ack", pso, ack)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[map[string]int](t, resp)["updatedCount"])
}

func TestTalkSession_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/talk-sessions", sup,
		map[string]string{"targetEmail": "pso@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := decode[map[string]string](t, resp)["talkSessionId"]
	require.NotEmpty(t, sessionID)

	stop := map[string]string{"reason": "USER_STOP"}
	resp = env.do(t, http.MethodPost, "/api/talk-sessions/"+sessionID+"/stop", sup, stop)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Stopping again is idempotent
	resp = env.do(t, http.MethodPost, "/api/talk-sessions/"+sessionID+"/stop", sup, stop)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTalkSession_StopUnknownID(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/talk-sessions/nope/stop", sup,
		map[string]string{"reason": "USER_STOP"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTalkSession_StopUnknownReason(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/talk-sessions/nope/stop", sup,
		map[string]string{"reason": "RAGE_QUIT"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTalkSession_UnloadAlways202(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/talk-sessions", sup,
		map[string]string{"targetEmail": "pso@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := decode[map[string]string](t, resp)["talkSessionId"]

	// No auth header: sendBeacon cannot set one
	resp = env.do(t, http.MethodPost, "/api/talk-sessions/"+sessionID+"/unload", "", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	closed, err := env.store.GetTalkSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, closed.StopReason)
	assert.Equal(t, store.TalkStopBrowserRefresh, *closed.StopReason)

	// Unknown ids still answer 202; the page is gone either way
	resp = env.do(t, http.MethodPost, "/api/talk-sessions/nope/unload", "", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestStreamingSessions_StatusAndListing(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/streaming-sessions", pso,
		map[string]string{"status": "started"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/streaming-sessions/active", sup, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	active := decode[[]sessionResponse](t, resp)
	require.Len(t, active, 1)
	assert.Equal(t, "pso-1", active[0].UserID)
	assert.Nil(t, active[0].Timer, "open sessions carry no timer")

	resp = env.do(t, http.MethodPost, "/api/streaming-sessions", pso,
		map[string]string{"status": "stopped", "reason": "SHORT_BREAK"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/streaming-sessions/active", sup, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]sessionResponse](t, resp))
}

func TestStreamingSessions_SupervisorScoped(t *testing.T) {
	env := newTestEnv(t)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)
	env.dir.users["sup-1"] = []string{"pso-1"}

	for _, id := range []string{"pso-1", "pso-2"} {
		pso := env.token(t, id, id+"@example.com", auth.RolePSO)
		resp := env.do(t, http.MethodPost, "/api/streaming-sessions", pso,
			map[string]string{"status": "started"})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	resp := env.do(t, http.MethodGet, "/api/streaming-sessions/active?supervisor=me", sup, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	scoped := decode[[]sessionResponse](t, resp)
	require.Len(t, scoped, 1)
	assert.Equal(t, "pso-1", scoped[0].UserID)
}

func TestStreamingSessions_BadStatus(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)

	resp := env.do(t, http.MethodPost, "/api/streaming-sessions", pso,
		map[string]string{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLatestSessions_TimerForBreaks(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)
	sup := env.token(t, "sup-1", "sup@example.com", auth.RoleSupervisor)

	resp := env.do(t, http.MethodPost, "/api/streaming-sessions", pso,
		map[string]string{"status": "started"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/api/streaming-sessions", pso,
		map[string]string{"status": "stopped", "reason": "LUNCH_BREAK"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/streaming-sessions/latest", sup,
		map[string][]string{"emails": {"pso@example.com", "ghost@example.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	results := decode[[]latestSessionsResponse](t, resp)
	require.Len(t, results, 2)

	require.NotNil(t, results[0].Session)
	require.NotNil(t, results[0].Session.Timer, "a break stop derives a countdown")
	assert.Equal(t, "green", string(results[0].Session.Timer.Color))

	assert.Equal(t, "ghost@example.com", results[1].Email)
	assert.Nil(t, results[1].Session)
}

func TestEvents_StreamDeliversAndMarksPresence(t *testing.T) {
	env := newTestEnv(t)
	pso := env.token(t, "pso-1", "pso@example.com", auth.RolePSO)

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pso)

	resp, err := env.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected", strings.TrimSpace(line))

	require.Eventually(t, func() bool {
		return env.hub.IsConnected("pso-1")
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, env.hub.Broadcast("pso-1", []byte(`{"kind":"command"}`)))

	found := false
	deadline := time.After(time.Second)
	for !found {
		select {
		case <-deadline:
			t.Fatal("command event never arrived")
		default:
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.TrimSpace(line) == fmt.Sprintf("data: %s", `{"kind":"command"}`) {
				found = true
			}
		}
	}
}

func TestEvents_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
