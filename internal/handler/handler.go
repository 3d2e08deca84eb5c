package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"email-monitor-go/internal/apiclient"
	"email-monitor-go/internal/audit"
	"email-monitor-go/internal/config"
	"email-monitor-go/internal/db"
	"email-monitor-go/internal/logbrowser"
	metricsPkg "email-monitor-go/internal/metrics"
	"email-monitor-go/internal/models"
	"email-monitor-go/internal/session"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	cfg      *config.Config
	api      *apiclient.Client
	sessions *session.Manager
	audit    audit.Recorder
	db       *gorm.DB
	metrics  *metricsPkg.Metrics
	upgrader websocket.Upgrader
	// overridable in tests
	newPoller logbrowser.PollerFactory
}

// NewHandlers creates new HTTP handlers. gormDB may be nil when the audit
// database is disabled.
func NewHandlers(cfg *config.Config, api *apiclient.Client, sessions *session.Manager, recorder audit.Recorder, gormDB *gorm.DB, metrics *metricsPkg.Metrics) *Handlers {
	RegisterValidators()
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Handlers{
		cfg:      cfg,
		api:      api,
		sessions: sessions,
		audit:    recorder,
		db:       gormDB,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}
}

// SetupRoutes sets up all HTTP routes. loginLimit guards the login form.
func (h *Handlers) SetupRoutes(router *gin.Engine, loginLimit gin.HandlerFunc) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/login", h.LoginPage)
	router.POST("/login", loginLimit, h.Login)
	router.POST("/logout", h.Logout)

	pages := router.Group("/", h.sessions.RequireAuth())
	{
		pages.GET("/", h.Dashboard)
		pages.GET("/logs", h.LogsPage)
		pages.GET("/servers", h.ServersPage)
		pages.POST("/servers", h.RegisterServer)
		pages.POST("/servers/:id/delete", h.DeleteServer)
		pages.POST("/theme", h.ToggleTheme)
	}

	api := router.Group("/", h.sessions.RequireAPIAuth())
	{
		api.GET("/ui/kpi", h.KPI)
		api.GET("/logs/live", h.LiveLogs)
	}

	router.NoRoute(h.NotFound)
}

// NotFound renders the error page for unknown routes
func (h *Handlers) NotFound(c *gin.Context) {
	data := PageData{Title: "Not found", Theme: session.ThemeLight, Error: "Page not found: " + c.Request.URL.Path}
	if s, err := h.sessions.Load(c); err == nil {
		data.Email = s.Email
		data.Theme = s.Theme
		data.Path = c.Request.URL.RequestURI()
	}
	c.HTML(http.StatusNotFound, "error.html", data)
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Backend:   "ok",
		Database:  "disabled",
		Metrics:   make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.api.Health(ctx); err != nil {
		response.Status = "error"
		response.Backend = "error"
		logrus.Errorf("Backend health check failed: %v", err)
	}

	if h.db != nil {
		response.Database = "ok"
		if err := db.Ping(ctx, h.db); err != nil {
			response.Status = "error"
			response.Database = "error"
			logrus.Errorf("Database health check failed: %v", err)
		}
	}

	response.Metrics["api_base_url"] = h.cfg.API.BaseURL
	response.Metrics["poll_interval"] = h.cfg.Browser.PollInterval.String()

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// client returns a backend client authenticated as the current operator
func (h *Handlers) client(c *gin.Context) *apiclient.Client {
	s, _ := session.FromContext(c)
	return h.api.WithToken(s.Token)
}

func (h *Handlers) page(c *gin.Context, title, active string) PageData {
	s, _ := session.FromContext(c)
	theme := s.Theme
	if theme == "" {
		theme = session.ThemeLight
	}
	return PageData{
		Title:  title,
		Active: active,
		Email:  s.Email,
		Theme:  theme,
		Path:   c.Request.URL.RequestURI(),
	}
}

// expired handles a backend 401 on a page request by dropping the session
// and sending the operator to the login page.
func (h *Handlers) expired(c *gin.Context, err error) bool {
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		return false
	}
	h.sessions.Clear(c)
	c.Redirect(http.StatusFound, session.LoginURL(c.Request.URL.RequestURI()))
	c.Abort()
	return true
}

// expiredJSON is expired for JSON endpoints
func (h *Handlers) expiredJSON(c *gin.Context, err error) bool {
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		return false
	}
	h.sessions.Clear(c)
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "Unauthorized",
		Message: "Session expired",
		Code:    http.StatusUnauthorized,
	})
	return true
}

func (h *Handlers) record(c *gin.Context, actor, action, target, detail string) {
	err := h.audit.Record(c.Request.Context(), audit.Entry{
		Actor:  actor,
		Action: action,
		Target: target,
		Detail: detail,
	})
	if err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to record audit entry")
	}
}

func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
