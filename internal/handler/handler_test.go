package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"email-monitor-go/internal/apiclient"
	"email-monitor-go/internal/config"
	"email-monitor-go/internal/logbrowser"
	"email-monitor-go/internal/metrics"
	"email-monitor-go/internal/models"
	"email-monitor-go/internal/session"
	"email-monitor-go/internal/web"
)

const validToken = "tok-1"

// backend fakes the monitoring REST API
type backend struct {
	mu         sync.Mutex
	logQueries []url.Values
	deleted    []string
	registered []string
}

func (b *backend) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+validToken {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Could not validate credentials"}`))
		return false
	}
	return true
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Incorrect email or password"}`))
			return
		}
		w.Write([]byte(`{"access_token":"` + validToken + `","token_type":"bearer"}`))
	})
	mux.HandleFunc("/api/servers", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		w.Write([]byte(`[{"id":1,"name":"mail01","api_key":"k1","created_at":"2026-10-01T08:00:00"},{"id":2,"name":"mail02","api_key":"k2","created_at":"2026-10-02T08:00:00"}]`))
	})
	mux.HandleFunc("/api/servers/register", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		var req models.ServerRegisterRequest
		json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.registered = append(b.registered, req.Name)
		b.mu.Unlock()
		if req.Name == "mail01" {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"detail":"Server already exists"}`))
			return
		}
		w.Write([]byte(`{"id":3,"name":"` + req.Name + `","api_key":"key-abc","created_at":"2026-10-17T09:00:00"}`))
	})
	mux.HandleFunc("/api/servers/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		b.mu.Lock()
		b.deleted = append(b.deleted, strings.TrimPrefix(r.URL.Path, "/api/servers/"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/maillog", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		b.mu.Lock()
		b.logQueries = append(b.logQueries, r.URL.Query())
		b.mu.Unlock()
		w.Write([]byte(`[{"id":11,"server_id":1,"kind":"mainlog","sender":"a@example.com","recipient":"b@example.com","status":"` +
			r.URL.Query().Get("status") + `","message":"delivered","timestamp":"2026-10-17T10:00:00"},` +
			`{"id":12,"server_id":1,"kind":"rejectlog","timestamp":"2026-10-17T10:01:00"}]`))
	})
	mux.HandleFunc("/api/maillog/kpi/summary", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		w.Write([]byte(`{"total":{"all":12345,"mainlog":12000,"rejectlog":300,"paniclog":45},"last_hours":24,"since":"2026-10-16T10:00:00","last":{"all":120,"mainlog":100,"rejectlog":15,"paniclog":5}}`))
	})
	mux.HandleFunc("/api/maillog/kpi/timeseries", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		w.Write([]byte(`{"last_hours":24,"since":"2026-10-16T10:00:00","series":[{"bucket":"2026-10-17T08:00:00","mainlog":3,"rejectlog":1,"paniclog":0,"total":4},{"bucket":"2026-10-17T09:00:00","mainlog":7,"rejectlog":2,"paniclog":1,"total":10}]}`))
	})
	return mux
}

func (b *backend) registrations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.registered...)
}

func (b *backend) deletions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

func (b *backend) queries() []url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]url.Values(nil), b.logQueries...)
}

type testEnv struct {
	router   *gin.Engine
	backend  *backend
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	be := &backend{}
	api := httptest.NewServer(be.handler())
	t.Cleanup(api.Close)

	cfg := &config.Config{
		API:       config.APIConfig{BaseURL: api.URL, Timeout: 2 * time.Second},
		Session:   config.SessionConfig{Secret: "test-secret", Expiry: time.Hour, CookieName: "sess"},
		Browser:   config.BrowserConfig{Debounce: 20 * time.Millisecond, PollInterval: time.Hour, DefaultLimit: 50, PageSizes: []int{10, 25, 50, 100}},
		Dashboard: config.DashboardConfig{Hours: 24, RefreshInterval: 30 * time.Second},
	}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	client, err := apiclient.New(cfg.API, m)
	require.NoError(t, err)
	sessions := session.NewManager(cfg.Session)

	h := NewHandlers(cfg, client, sessions, nil, nil, m)
	tmpl, err := web.Templates()
	require.NoError(t, err)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	h.SetupRoutes(r, func(c *gin.Context) { c.Next() })

	return &testEnv{router: r, backend: be, sessions: sessions}
}

func (e *testEnv) cookie(t *testing.T, token string) *http.Cookie {
	t.Helper()
	value, err := e.sessions.Issue(session.Session{Email: "admin@example.com", Token: token, Theme: session.ThemeLight})
	require.NoError(t, err)
	return &http.Cookie{Name: "sess", Value: value}
}

func (e *testEnv) do(req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginRedirectsToRequestedPage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(postForm("/login", url.Values{
		"email":    {"admin@example.com"},
		"password": {"secret"},
		"redirect": {"/logs?server=mail01"},
	}), nil)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/logs?server=mail01", w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	s, err := env.sessions.Parse(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, validToken, s.Token)
	assert.Equal(t, "admin@example.com", s.Email)
}

func TestLoginIgnoresOffsiteRedirect(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(postForm("/login", url.Values{
		"email":    {"admin@example.com"},
		"password": {"secret"},
		"redirect": {"//evil.example.com/"},
	}), nil)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(postForm("/login", url.Values{"email": {"admin@example.com"}, "password": {"wrong"}}), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Incorrect email or password")
	assert.Empty(t, w.Result().Cookies())

	w = env.do(postForm("/login", url.Values{"email": {"not-an-email"}, "password": {"x"}}), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPagesRequireLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/servers", nil), nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fservers", w.Header().Get("Location"))
}

func TestDashboardRenders(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil), env.cookie(t, validToken))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "12,345")
	assert.Contains(t, body, "Rejectlog")
	assert.Contains(t, body, `class="line"`)
}

func TestDashboardExpiredTokenGoesToLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/", nil), env.cookie(t, "stale"))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login"))
}

func TestKPI(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/ui/kpi?hours=24", nil), env.cookie(t, validToken))
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		Hours int `json:"hours"`
		Cards []struct {
			Title string `json:"title"`
			Total int64  `json:"total"`
		} `json:"cards"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Cards, 4)
	assert.Equal(t, int64(12345), snap.Cards[0].Total)

	w = env.do(httptest.NewRequest(http.MethodGet, "/ui/kpi?hours=0", nil), env.cookie(t, validToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKPIExpiredTokenClearsSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/ui/kpi", nil), env.cookie(t, "stale"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestRegisterServerShowsKeyOnce(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(postForm("/servers", url.Values{"name": {"mail03"}}), env.cookie(t, validToken))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "key-abc")
	assert.Equal(t, []string{"mail03"}, env.backend.registrations())

	w = env.do(httptest.NewRequest(http.MethodGet, "/servers", nil), env.cookie(t, validToken))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "key-abc")
	assert.Contains(t, w.Body.String(), "mail02")
}

func TestRegisterServerValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(postForm("/servers", url.Values{"name": {"bad name!"}}), env.cookie(t, validToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Server name may only contain")

	w = env.do(postForm("/servers", url.Values{"name": {""}}), env.cookie(t, validToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Server name is required")

	assert.Empty(t, env.backend.registrations())
}

func TestRegisterServerPassesBackendConflict(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(postForm("/servers", url.Values{"name": {"mail01"}}), env.cookie(t, validToken))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Server already exists")
}

func TestDeleteServer(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/servers/3/delete", nil), env.cookie(t, validToken))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/servers", w.Header().Get("Location"))
	assert.Equal(t, []string{"3"}, env.backend.deletions())

	w = env.do(httptest.NewRequest(http.MethodPost, "/servers/abc/delete", nil), env.cookie(t, validToken))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Backend)
	assert.Equal(t, "disabled", resp.Database)
}

func TestLogsPageEmbedsNormalizedFilter(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/logs?server=mail01&limit=7&page=-2", nil), env.cookie(t, validToken))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"server":"mail01"`)
	assert.Contains(t, body, `"limit":50`)
	assert.Contains(t, body, `"page":1`)
	// the page is only a shell, records come over the live connection
	assert.Empty(t, env.backend.queries())
}

// live helpers

func dialLive(t *testing.T, env *testEnv, rawQuery string, cookie *http.Cookie) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/logs/live"
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.String())
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

// readUntil reads messages until match returns true
func readUntil(t *testing.T, conn *websocket.Conn, match func(LiveMessage) bool) LiveMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg LiveMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func populated(msg LiveMessage) bool {
	return msg.Type == "view" && msg.View != nil && msg.View.Phase == logbrowser.PhasePopulated
}

func TestLiveLogsRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := dialLive(t, env, "", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLiveLogsStreamsViews(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := dialLive(t, env, "server=mail01&page=2&limit=25", env.cookie(t, validToken))
	require.NoError(t, err)

	msg := readUntil(t, conn, populated)
	require.Len(t, msg.View.Records, 2)
	assert.Equal(t, "mail01", msg.View.Filter.Server)
	assert.Equal(t, 2, msg.View.Filter.Page)
	assert.True(t, msg.View.HasPrev)
	assert.False(t, msg.View.HasNext)

	queries := env.backend.queries()
	require.NotEmpty(t, queries)
	assert.Equal(t, "25", queries[0].Get("offset"))
	assert.Equal(t, "25", queries[0].Get("limit"))

	require.NoError(t, conn.WriteJSON(LiveCommand{Type: "set", Field: "status", Value: "failed"}))
	replaced := readUntil(t, conn, func(m LiveMessage) bool { return m.Type == "replace_url" && strings.Contains(m.Query, "status=failed") })
	assert.Contains(t, replaced.Query, "page=1")

	// the fake backend echoes the status filter into the first record
	msg = readUntil(t, conn, func(m LiveMessage) bool {
		return populated(m) && m.View.Records[0].Status == models.StatusFailed
	})
	assert.Equal(t, 1, msg.View.Filter.Page)
	queries = env.backend.queries()
	assert.Equal(t, "failed", queries[len(queries)-1].Get("status"))
	assert.Equal(t, "0", queries[len(queries)-1].Get("offset"))

	require.NoError(t, conn.WriteJSON(LiveCommand{Type: "select", ID: 12}))
	msg = readUntil(t, conn, func(m LiveMessage) bool { return m.Type == "view" && m.View.Detail != nil })
	assert.Equal(t, int64(12), msg.View.Detail.ID)

	require.NoError(t, conn.WriteJSON(LiveCommand{Type: "bogus"}))
	msg = readUntil(t, conn, func(m LiveMessage) bool { return m.Type == "error" })
	assert.Contains(t, msg.Message, "unknown command")
}

func TestLiveLogsExpiredTokenSendsUnauthorized(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := dialLive(t, env, "", env.cookie(t, "stale"))
	require.NoError(t, err)

	msg := readUntil(t, conn, func(m LiveMessage) bool { return m.Type == "unauthorized" })
	assert.Equal(t, "Session expired", msg.Message)
}

func TestUnknownRouteRendersErrorPage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil), env.cookie(t, validToken))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Page not found: /nope")
	assert.Contains(t, w.Body.String(), "Sign out")
}
