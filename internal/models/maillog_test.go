package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRecordDecodesBackendPayload(t *testing.T) {
	payload := `{
		"id": 7,
		"server_id": 2,
		"kind": "rejectlog",
		"sender": "a@example.com",
		"recipient": null,
		"status": "rejected",
		"message": "550 relay not permitted",
		"message_id": null,
		"timestamp": "2024-03-01T10:15:30.123456"
	}`

	var rec LogRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, KindRejectlog, rec.Kind)
	assert.Equal(t, "a@example.com", rec.Sender)
	assert.Empty(t, rec.Recipient)
	assert.Equal(t, StatusRejected, rec.Status)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 30, 123456000, time.UTC), rec.Timestamp.Time)
}

func TestTimestampAcceptsZonedValues(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T10:00:00+02:00"`), &ts))
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), ts.Time)

	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestMailLogQueryOmitsEmptyFilters(t *testing.T) {
	q := MailLogQuery{Server: "mail01", Kind: KindRejectlog, Limit: 25, Offset: 25}
	v := q.Values()

	assert.Equal(t, "25", v.Get("limit"))
	assert.Equal(t, "25", v.Get("offset"))
	assert.Equal(t, "mail01", v.Get("server"))
	assert.Equal(t, "rejectlog", v.Get("kind"))
	_, hasEmail := v["email"]
	_, hasStatus := v["status"]
	assert.False(t, hasEmail)
	assert.False(t, hasStatus)
}

func TestKindAndStatusValidity(t *testing.T) {
	assert.True(t, KindPaniclog.Valid())
	assert.False(t, LogKind("debuglog").Valid())
	assert.True(t, StatusDeferred.Valid())
	assert.False(t, LogStatus("").Valid())
}
