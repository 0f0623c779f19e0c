package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstday-app/firstday/internal/config"
	"github.com/firstday-app/firstday/internal/gateway"
	"github.com/firstday-app/firstday/internal/prompt"
	"github.com/firstday-app/firstday/internal/roles"
	"github.com/firstday-app/firstday/internal/session"
	"github.com/firstday-app/firstday/internal/storage"
	"github.com/firstday-app/firstday/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, gw gateway.Gateway) *httptest.Server {
	t.Helper()

	logger := testLogger()
	cfg, err := config.LoadDefault()
	require.NoError(t, err)

	store, err := storage.NewSQLiteStore(logger, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })

	catalog, err := roles.NewCatalog()
	require.NoError(t, err)
	builder, err := prompt.NewBuilder()
	require.NoError(t, err)

	hub := NewHub(logger, store, store)
	controller := session.NewController(logger, catalog, builder, gw)
	srv := NewServer(logger, cfg, hub, controller, catalog, builder)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// client wraps http.Client with the session cookie jar and JSON helpers.
type client struct {
	t  *testing.T
	ts *httptest.Server
	c  *http.Client
}

func newClient(t *testing.T, ts *httptest.Server) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, ts: ts, c: &http.Client{Jar: jar}}
}

func (c *client) post(path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := c.c.Post(c.ts.URL+path, "application/json", &buf)
	require.NoError(c.t, err)
	return resp, decodeBody(c.t, resp)
}

func (c *client) get(path string) (*http.Response, map[string]any) {
	c.t.Helper()
	resp, err := c.c.Get(c.ts.URL + path)
	require.NoError(c.t, err)
	return resp, decodeBody(c.t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var m map[string]any
	if json.Unmarshal(data, &m) != nil {
		return nil
	}
	return m
}

// activeClient walks a client through credential and role selection.
func activeClient(t *testing.T, ts *httptest.Server) *client {
	t.Helper()
	c := newClient(t, ts)

	resp, _ := c.post("/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = c.post("/api/sessions/credential", map[string]string{"credential": "test-key"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.post("/api/sessions/role", map[string]string{"role": "Support Engineer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return c
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := newClient(t, ts)

	resp, body := c.post("/api/sessions", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "awaiting_credential", body["phase"])
	assert.NotEmpty(t, body["session_id"])

	// Cookie carries the session to the next request
	resp, body = c.get("/api/sessions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_credential", body["phase"])
}

func TestGetSessionWithoutCookie(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := newClient(t, ts)

	resp, _ := c.get("/api/sessions")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCredentialFlow(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := newClient(t, ts)

	resp, _ := c.post("/api/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := c.post("/api/sessions/credential", map[string]string{"credential": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "credential")

	resp, body = c.post("/api/sessions/credential", map[string]string{"credential": "test-key"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_role_selection", body["phase"])
	// Credential never appears in responses
	assert.NotContains(t, body, "credential")

	// Second submission conflicts
	resp, _ = c.post("/api/sessions/credential", map[string]string{"credential": "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListRoles(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := newClient(t, ts)

	resp, err := c.c.Get(c.ts.URL + "/api/roles")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.NotEmpty(t, list)
	assert.Equal(t, "Support Engineer", list[0]["name"])
	assert.NotContains(t, list[0], "instructions")
}

func TestSelectRole(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("Welcome aboard! Ticket #1 awaits."))
	c := newClient(t, ts)

	c.post("/api/sessions", nil)
	c.post("/api/sessions/credential", map[string]string{"credential": "test-key"})

	resp, body := c.post("/api/sessions/role", map[string]string{"role": "Support Engineer"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", body["phase"])
	assert.Equal(t, "Support Engineer", body["role"])
	assert.Equal(t, float64(1), body["turn_counter"])

	transcript := body["transcript"].([]any)
	require.Len(t, transcript, 1)
	opening := transcript[0].(map[string]any)
	assert.Equal(t, "assistant", opening["speaker"])
	assert.Contains(t, opening["text"], "Welcome aboard")
}

func TestSelectRoleUnknown(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := newClient(t, ts)

	c.post("/api/sessions", nil)
	c.post("/api/sessions/credential", map[string]string{"credential": "test-key"})

	resp, _ := c.post("/api/sessions/role", map[string]string{"role": "Astronaut"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelectRoleBeforeCredential(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := newClient(t, ts)

	c.post("/api/sessions", nil)

	resp, _ := c.post("/api/sessions/role", map[string]string{"role": "Support Engineer"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMessageExchange(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("Looks good, keep going."))
	c := activeClient(t, ts)

	resp, body := c.post("/api/sessions/messages", map[string]string{"message": "I checked the logs first."})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["turn_counter"])

	transcript := body["transcript"].([]any)
	require.Len(t, transcript, 3)
	assert.Equal(t, "user", transcript[1].(map[string]any)["speaker"])
	assert.Equal(t, "assistant", transcript[2].(map[string]any)["speaker"])
}

func TestMessageEmpty(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := activeClient(t, ts)

	resp, _ := c.post("/api/sessions/messages", map[string]string{"message": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessageGatewayFailureStillOK(t *testing.T) {
	// Generation failures surface as a visible transcript turn, not an HTTP error.
	bootstrapped := false
	gw := testutil.GatewayFunc(func(ctx context.Context, req gateway.GenerateRequest) (gateway.GenerateResult, error) {
		if !bootstrapped {
			bootstrapped = true
			return gateway.GenerateResult{Text: "Welcome.", Model: "test-model"}, nil
		}
		return gateway.GenerateResult{}, gateway.WrapError("model unavailable", nil)
	})
	ts := newTestServer(t, gw)
	c := activeClient(t, ts)

	resp, body := c.post("/api/sessions/messages", map[string]string{"message": "hello?"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	transcript := body["transcript"].([]any)
	last := transcript[len(transcript)-1].(map[string]any)
	assert.Contains(t, last["text"], "Error generating response: model unavailable")
}

func TestReset(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("Welcome."))
	c := activeClient(t, ts)

	c.post("/api/sessions/messages", map[string]string{"message": "first answer"})

	resp, body := c.post("/api/sessions/reset", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_role_selection", body["phase"])
	assert.Equal(t, float64(1), body["turn_counter"])
	assert.Empty(t, body["transcript"])

	// Credential survives reset: role selection works without resubmitting
	resp, body = c.post("/api/sessions/role", map[string]string{"role": "Data Analyst"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Data Analyst", body["role"])
}

func TestHelpShortcuts(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))
	c := newClient(t, ts)

	resp, body := c.get("/api/help-shortcuts")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["hint"], "[HINT]")
	assert.Contains(t, body["dont_know"], "I'm new to this role")
	assert.Contains(t, body["best_practices"], "best practices")
}

func TestCredentialNeverLogged(t *testing.T) {
	lc := testutil.NewLogCapture()
	logger := lc.Logger()

	cfg, err := config.LoadDefault()
	require.NoError(t, err)
	store, err := storage.NewSQLiteStore(logger, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })
	catalog, err := roles.NewCatalog()
	require.NoError(t, err)
	builder, err := prompt.NewBuilder()
	require.NoError(t, err)

	hub := NewHub(logger, store, store)
	controller := session.NewController(logger, catalog, builder, testutil.StaticGateway("Welcome."))
	srv := NewServer(logger, cfg, hub, controller, catalog, builder)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := newClient(t, ts)
	c.post("/api/sessions", nil)
	c.post("/api/sessions/credential", map[string]string{"credential": "sk-super-secret-key"})
	c.post("/api/sessions/role", map[string]string{"role": "Support Engineer"})
	c.post("/api/sessions/messages", map[string]string{"message": "I checked the runbook."})

	assert.True(t, lc.Contains("session created"))
	assert.False(t, lc.Contains("sk-super-secret-key"))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testutil.StaticGateway("hello"))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "firstday_http_requests_total")
}
