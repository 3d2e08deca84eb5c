package handler

import (
	"email-monitor-go/internal/audit"
	"email-monitor-go/internal/dashboard"
	"email-monitor-go/internal/logbrowser"
	"email-monitor-go/internal/models"
)

// PageData is shared by every rendered page
type PageData struct {
	Title  string
	Active string
	Email  string
	Theme  string
	Path   string
	Error  string
	Flash  string
}

// LoginPageData represents the login page
type LoginPageData struct {
	PageData
	Redirect   string
	EmailValue string
}

// DashboardPageData represents the KPI dashboard page
type DashboardPageData struct {
	PageData
	Hours       int
	RefreshMs   int64
	ChartWidth  int
	ChartHeight int
	Snapshot    *dashboard.Snapshot
}

// LogsPageData represents the log browser page
type LogsPageData struct {
	PageData
	View     logbrowser.View
	Kinds    []models.LogKind
	Statuses []models.LogStatus
}

// ServersPageData represents the server registry page
type ServersPageData struct {
	PageData
	Servers   []models.Server
	Created   *models.Server
	NameValue string
	Audit     []audit.Entry
}

// LiveCommand is a message from the log page to its live session
type LiveCommand struct {
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
	ID      int64  `json:"id,omitempty"`
}

// LiveMessage is a message from a live session to the log page
type LiveMessage struct {
	Type    string           `json:"type"`
	View    *logbrowser.View `json:"view,omitempty"`
	Query   string           `json:"query,omitempty"`
	Message string           `json:"message,omitempty"`
}
