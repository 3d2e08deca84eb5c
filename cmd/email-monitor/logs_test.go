package main

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"email-monitor-go/internal/config"
	"email-monitor-go/internal/models"
)

type stubSource struct {
	mu      sync.Mutex
	queries []models.MailLogQuery
	records []models.LogRecord
	err     error
}

func (s *stubSource) ListServers(context.Context) ([]models.Server, error) {
	return []models.Server{{ID: 1, Name: "mail01"}}, nil
}

func (s *stubSource) ListMailLogs(_ context.Context, q models.MailLogQuery) ([]models.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	return s.records, s.err
}

var testBrowserConfig = config.BrowserConfig{
	Debounce:     10 * time.Millisecond,
	PollInterval: time.Hour,
	DefaultLimit: 50,
	PageSizes:    []int{10, 25, 50, 100},
}

func TestLogsOptionsQuery(t *testing.T) {
	opts := logsOptions{server: "mail01", status: "failed", limit: 25, page: 3}
	assert.Equal(t, "limit=25&page=3&server=mail01&status=failed", opts.query().Encode())
	assert.Equal(t, "page=1", logsOptions{page: 1}.query().Encode())
}

func TestRunLogsPrintsOnePage(t *testing.T) {
	src := &stubSource{records: []models.LogRecord{
		{ID: 7, Kind: models.KindMainlog, Sender: "a@example.com", Status: models.StatusAccepted, Message: "ok",
			Timestamp: models.Timestamp{Time: time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)}},
		{ID: 8, Kind: models.KindRejectlog},
	}}

	var out bytes.Buffer
	err := runLogs(context.Background(), &out, src, testBrowserConfig, logsOptions{server: "mail01", limit: 10, page: 2})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "page 2  limit 10")
	assert.Contains(t, text, "ID")
	assert.Contains(t, text, "2026-10-17 10:00:00")
	assert.Contains(t, text, "a@example.com")
	assert.NotContains(t, text, "more records")

	require.Len(t, src.queries, 1)
	assert.Equal(t, "mail01", src.queries[0].Server)
	assert.Equal(t, 10, src.queries[0].Offset)
}

func TestRunLogsEmptyPage(t *testing.T) {
	var out bytes.Buffer
	err := runLogs(context.Background(), &out, &stubSource{}, testBrowserConfig, logsOptions{page: 1})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "no log records match the filters")
}

func TestRunLogsReportsFailure(t *testing.T) {
	var out bytes.Buffer
	err := runLogs(context.Background(), &out, &stubSource{err: errors.New("backend down")}, testBrowserConfig, logsOptions{page: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestRunLogsFollowStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	err := runLogs(ctx, &out, &stubSource{}, testBrowserConfig, logsOptions{page: 1, follow: true})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "no log records")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
