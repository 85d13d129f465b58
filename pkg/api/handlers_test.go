package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boa-dev/conformoor/pkg/api/snapshotstore"
	"github.com/boa-dev/conformoor/pkg/api/store"
	"github.com/boa-dev/conformoor/pkg/config"
	"github.com/boa-dev/conformoor/pkg/dashboard"
	"github.com/boa-dev/conformoor/pkg/report"
)

// newTestServer builds a server with in-memory stores and a router, but
// without the HTTP listener or the background collector.
func newTestServer(t *testing.T) (*server, http.Handler) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := &config.Config{
		Reports: config.ReportsConfig{
			BaseURL:    "https://boajs.dev/boa/test262",
			GitHubRepo: "boa-dev/boa",
			Branches:   []string{"master"},
		},
		API: &config.APIConfig{
			Server: config.APIServerConfig{Listen: "127.0.0.1:0"},
			Auth: config.APIAuthConfig{
				SessionTTL:    "1h",
				AnonymousRead: true,
				Basic: config.BasicAuthConfig{
					Enabled: true,
					Users: []config.BasicAuthUser{
						{Username: "admin", Password: "secret", Role: "admin"},
					},
				},
			},
			Database: config.APIDatabaseConfig{
				Driver: "sqlite",
				SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
			},
		},
	}

	ctx := context.Background()

	s := &server{
		log:   log,
		cfg:   cfg,
		state: dashboard.NewState(),
		done:  make(chan struct{}),
	}

	s.store = store.NewStore(log, &cfg.API.Database)
	require.NoError(t, s.store.Start(ctx))
	t.Cleanup(func() { _ = s.store.Stop() })

	require.NoError(t, s.store.SeedUsers(ctx, cfg.API.Auth.Basic.Users))

	s.snapStore = snapshotstore.NewStore(log, &cfg.API.Database)
	require.NoError(t, s.snapStore.Start(ctx))
	t.Cleanup(func() { _ = s.snapStore.Stop() })

	return s, s.buildRouter()
}

func populateState(s *server) {
	s.state.SetLatest("heads/master", &report.Latest{
		Commit:  "abc123",
		Total:   200,
		Passed:  150,
		Ignored: 10,
		Results: &report.SuiteGroup{
			Suites: []report.SuiteResult{
				{Name: "language", Total: 200, Passed: 150, Ignored: 10},
			},
		},
	})
}

func TestHandleDashboard(t *testing.T) {
	s, router := newTestServer(t)
	populateState(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<!DOCTYPE html>"))
	assert.Contains(t, body, `id="master-latest"`)
	assert.Contains(t, body, "Latest results (heads/master)")
	assert.Contains(t, body, "Conformance: 75.00%")
	assert.Contains(t, body, `href="/info/heads/master"`)
}

func TestHandleDashboard_EmptyState(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	// An empty state renders the page skeleton without panicking.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="master-latest"`)
	assert.NotContains(t, rec.Body.String(), "Latest results")
}

func TestHandleInfoPage(t *testing.T) {
	s, router := newTestServer(t)
	populateState(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/info/heads/master", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "<b>language</b>")
	assert.Contains(t, body, "150 / 10 / 40 / 200")
}

func TestHandleInfoPage_UnknownRef(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/info/heads/nothere", nil))

	// Unknown refs render the empty containers, never an error.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<li>")
}

func TestHandleLatest(t *testing.T) {
	s, router := newTestServer(t)
	populateState(s)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/latest/heads/master", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var latest report.Latest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, "abc123", latest.Commit)
	assert.Equal(t, 150, latest.Passed)
}

func TestHandleLatest_FallsBackToDatabase(t *testing.T) {
	s, router := newTestServer(t)

	require.NoError(t, s.snapStore.UpsertSnapshot(
		context.Background(),
		&snapshotstore.Snapshot{
			Ref: "tags/v0.20", Commit: "ddd",
			Total: 100, Passed: 90,
			FetchedAt: time.Now().UTC(),
		},
	))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/latest/tags/v0.20", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var latest report.Latest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, "ddd", latest.Commit)
}

func TestHandleLatest_UnknownRef(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/latest/heads/none", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAdminEndpointsRequireAuth(t *testing.T) {
	_, router := newTestServer(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/v1/admin/collect", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	_, router := newTestServer(t)

	body := strings.NewReader(`{"username":"admin","password":"secret"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body))

	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookies[0])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var user userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, "admin", user.Role)
}

func TestLogin_BadCredentials(t *testing.T) {
	_, router := newTestServer(t)

	body := strings.NewReader(`{"username":"admin","password":"wrong"}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
