package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"email-monitor-go/internal/apiclient"
	"email-monitor-go/internal/audit"
	"email-monitor-go/internal/config"
	"email-monitor-go/internal/db"
	"email-monitor-go/internal/handler"
	"email-monitor-go/internal/metrics"
	"email-monitor-go/internal/server"
	"email-monitor-go/internal/session"
)

// Version is set at build time
var Version = "dev"

// SetupLogging applies the configured level and format to the standard logger
func SetupLogging(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return nil
}

// Run initializes and starts the dashboard server
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := SetupLogging(cfg.Log); err != nil {
		return err
	}

	logrus.WithField("version", Version).Info("Starting Email Monitor dashboard")

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	api, err := apiclient.New(cfg.API, m)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	var (
		dbConn   *gorm.DB
		recorder audit.Recorder = audit.Nop{}
	)
	if cfg.Database.Enabled {
		dbConn, err = db.Init(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		recorder = audit.NewRepository(dbConn)
		logrus.Info("Audit trail enabled")
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandlers(cfg, api, session.NewManager(cfg.Session), recorder, dbConn, m)
	router, err := server.SetupRouter(h, cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up router: %w", err)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// hijacked live connections are not tracked by Shutdown; they end with
	// the process
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	if dbConn != nil {
		if err := db.Close(dbConn); err != nil {
			logrus.Errorf("Failed to close database: %v", err)
		}
	}

	logrus.Info("Server stopped gracefully")
	return nil
}
