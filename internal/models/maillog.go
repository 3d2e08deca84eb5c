package models

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// LogKind is the category of a mail server log entry
type LogKind string

const (
	KindMainlog   LogKind = "mainlog"
	KindRejectlog LogKind = "rejectlog"
	KindPaniclog  LogKind = "paniclog"
)

// LogKinds lists every known kind in display order
var LogKinds = []LogKind{KindMainlog, KindRejectlog, KindPaniclog}

// Valid reports whether k is a known kind
func (k LogKind) Valid() bool {
	for _, known := range LogKinds {
		if k == known {
			return true
		}
	}
	return false
}

// LogStatus is the delivery outcome recorded for a log entry
type LogStatus string

const (
	StatusAccepted LogStatus = "accepted"
	StatusRejected LogStatus = "rejected"
	StatusDeferred LogStatus = "deferred"
	StatusFailed   LogStatus = "failed"
)

// LogStatuses lists every known status in display order
var LogStatuses = []LogStatus{StatusAccepted, StatusRejected, StatusDeferred, StatusFailed}

// Valid reports whether s is a known status
func (s LogStatus) Valid() bool {
	for _, known := range LogStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// LogRecord is a single mail log entry as returned by the backend.
// Optional fields are empty strings when the backend sends null.
type LogRecord struct {
	ID        int64     `json:"id"`
	ServerID  int64     `json:"server_id"`
	Kind      LogKind   `json:"kind"`
	Sender    string    `json:"sender,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Status    LogStatus `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

// MailLogQuery holds the parameters of GET /api/maillog
type MailLogQuery struct {
	Server   string
	Email    string
	Kind     LogKind
	Status   LogStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

// Values encodes the query, omitting empty filters entirely
func (q MailLogQuery) Values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Server != "" {
		v.Set("server", q.Server)
	}
	if q.Email != "" {
		v.Set("email", q.Email)
	}
	if q.Kind != "" {
		v.Set("kind", string(q.Kind))
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.DateFrom != nil {
		v.Set("date_from", q.DateFrom.UTC().Format(time.RFC3339))
	}
	if q.DateTo != nil {
		v.Set("date_to", q.DateTo.UTC().Format(time.RFC3339))
	}
	return v
}

// Timestamp decodes the backend's ISO-8601 instants. Values without a zone
// offset are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}
