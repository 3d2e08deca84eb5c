package logbrowser

import "email-monitor-go/internal/models"

// Phase is the state of the record set
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhasePopulated Phase = "populated"
	PhaseEmpty     Phase = "empty"
	PhaseFailed    Phase = "failed"
)

// View is an immutable snapshot of a Browser. While a fetch is loading or
// after it failed, Records still holds the last successful page.
type View struct {
	Filter      Filter             `json:"filter"`
	Query       string             `json:"query"`
	AutoRefresh bool               `json:"auto_refresh"`
	Loading     bool               `json:"loading"`
	Phase       Phase              `json:"phase"`
	Records     []models.LogRecord `json:"records"`
	Error       string             `json:"error,omitempty"`
	Servers     []string           `json:"servers"`
	PageSizes   []int              `json:"page_sizes"`
	Detail      *models.LogRecord  `json:"detail,omitempty"`
	HasPrev     bool               `json:"has_prev"`
	HasNext     bool               `json:"has_next"`
}
