package models

import "time"

// Server is a monitored mail server registered with the backend
type Server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	CreatedAt Timestamp `json:"created_at"`
}

// ServerRegisterRequest is the body of POST /api/servers/register
type ServerRegisterRequest struct {
	Name string `json:"name" form:"name" binding:"required,servername"`
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}

// LoginResponse is the backend's answer to a successful login
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// KindCounts holds log entry counts per kind
type KindCounts struct {
	All       int64 `json:"all"`
	Mainlog   int64 `json:"mainlog"`
	Rejectlog int64 `json:"rejectlog"`
	Paniclog  int64 `json:"paniclog"`
}

// KPISummary is returned by GET /api/maillog/kpi/summary
type KPISummary struct {
	Total     KindCounts `json:"total"`
	LastHours int        `json:"last_hours"`
	Since     Timestamp  `json:"since"`
	Last      KindCounts `json:"last"`
}

// SeriesPoint is one hourly bucket of the volume timeseries
type SeriesPoint struct {
	Bucket    Timestamp `json:"bucket"`
	Mainlog   int64     `json:"mainlog"`
	Rejectlog int64     `json:"rejectlog"`
	Paniclog  int64     `json:"paniclog"`
	Total     int64     `json:"total"`
}

// Timeseries is returned by GET /api/maillog/kpi/timeseries
type Timeseries struct {
	LastHours int           `json:"last_hours"`
	Since     Timestamp     `json:"since"`
	Series    []SeriesPoint `json:"series"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Backend   string            `json:"backend"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
