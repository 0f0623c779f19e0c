package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstday-app/firstday/internal/config"
	"github.com/firstday-app/firstday/internal/prompt"
	"github.com/firstday-app/firstday/internal/roles"
	"github.com/firstday-app/firstday/internal/session"
	"github.com/firstday-app/firstday/internal/storage"
	"github.com/firstday-app/firstday/internal/testutil"
)

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := testLogger()
	cfg, err := config.LoadDefault()
	require.NoError(t, err)
	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.Username = "admin"
	cfg.Server.Auth.Password = "secret"

	store, err := storage.NewSQLiteStore(logger, ":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })

	catalog, err := roles.NewCatalog()
	require.NoError(t, err)
	builder, err := prompt.NewBuilder()
	require.NoError(t, err)

	hub := NewHub(logger, store, store)
	controller := session.NewController(logger, catalog, builder, testutil.StaticGateway("hello"))
	srv := NewServer(logger, cfg, hub, controller, catalog, builder)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestAuthRequired(t *testing.T) {
	ts := newAuthServer(t)

	resp, err := http.Get(ts.URL + "/api/roles")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Basic realm="Restricted"`, resp.Header.Get("WWW-Authenticate"))
}

func TestAuthWrongPassword(t *testing.T) {
	ts := newAuthServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/roles", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthCorrectCredentials(t *testing.T) {
	ts := newAuthServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/roles", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthDoesNotCoverHealthz(t *testing.T) {
	ts := newAuthServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
