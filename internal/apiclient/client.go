// Package apiclient talks to the email monitor backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"email-monitor-go/internal/config"
	"email-monitor-go/internal/metrics"
	"email-monitor-go/internal/models"
)

// ErrUnauthorized matches any APIError carrying a 401 status
var ErrUnauthorized = errors.New("backend rejected the credentials")

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client is a backend API client. A Client without a token can only log in
// and check health; use WithToken to obtain an authenticated copy.
type Client struct {
	base    *url.URL
	read    *http.Client
	write   *http.Client
	metrics *metrics.Metrics
}

// New creates a client for the configured backend. Reads are retried on
// connection errors and 5xx responses; writes are sent once.
func New(cfg config.APIConfig, m *metrics.Metrics) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse api base url: %w", err)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	// hand the last response back so its detail can be decoded
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{entry: logrus.WithField("component", "apiclient")}

	return &Client{
		base:    base,
		read:    rc.StandardClient(),
		write:   &http.Client{Timeout: cfg.Timeout},
		metrics: m,
	}, nil
}

// WithToken returns a copy of the client that sends token as a bearer credential
func (c *Client) WithToken(token string) *Client {
	return c.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// WithTokenSource returns a copy of the client authenticated by ts
func (c *Client) WithTokenSource(ts oauth2.TokenSource) *Client {
	cp := *c
	cp.read = &http.Client{Timeout: c.read.Timeout, Transport: &oauth2.Transport{Source: ts, Base: c.read.Transport}}
	cp.write = &http.Client{Timeout: c.write.Timeout, Transport: &oauth2.Transport{Source: ts, Base: c.write.Transport}}
	return &cp
}

// Login exchanges operator credentials for a backend access token
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp models.LoginResponse
	body := models.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, c.write, http.MethodPost, "/api/login", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("backend returned an empty access token")
	}
	return resp.AccessToken, nil
}

// ListServers returns all registered servers, newest first
func (c *Client) ListServers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	if err := c.do(ctx, c.read, http.MethodGet, "/api/servers", nil, nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// RegisterServer registers a mail server and returns it with its new API key
func (c *Client) RegisterServer(ctx context.Context, name string) (models.Server, error) {
	var server models.Server
	err := c.do(ctx, c.write, http.MethodPost, "/api/servers/register", nil, models.ServerRegisterRequest{Name: name}, &server)
	return server, err
}

// DeleteServer removes a server and, on the backend, all of its logs
func (c *Client) DeleteServer(ctx context.Context, id int64) error {
	return c.do(ctx, c.write, http.MethodDelete, "/api/servers/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// ListMailLogs returns one page of log records in backend order
func (c *Client) ListMailLogs(ctx context.Context, q models.MailLogQuery) ([]models.LogRecord, error) {
	var records []models.LogRecord
	if err := c.do(ctx, c.read, http.MethodGet, "/api/maillog", q.Values(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// KPISummary returns log totals overall and for the last hours
func (c *Client) KPISummary(ctx context.Context, hours int) (models.KPISummary, error) {
	var summary models.KPISummary
	q := url.Values{"hours": {strconv.Itoa(hours)}}
	err := c.do(ctx, c.read, http.MethodGet, "/api/maillog/kpi/summary", q, nil, &summary)
	return summary, err
}

// KPITimeseries returns hourly log volume for the last hours
func (c *Client) KPITimeseries(ctx context.Context, hours int) (models.Timeseries, error) {
	var ts models.Timeseries
	q := url.Values{"hours": {strconv.Itoa(hours)}}
	err := c.do(ctx, c.read, http.MethodGet, "/api/maillog/kpi/timeseries", q, nil, &ts)
	return ts, err
}

// Health checks that the backend answers its health endpoint
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, c.read, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, query url.Values, in, out interface{}) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	c.observe(path, start, resp, err)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) observe(path string, start time.Time, resp *http.Response, err error) {
	if c.metrics == nil {
		return
	}
	endpoint := endpointLabel(path)
	c.metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	outcome := "error"
	if err == nil {
		outcome = strconv.Itoa(resp.StatusCode)
	}
	c.metrics.APIRequests.WithLabelValues(endpoint, outcome).Inc()
}

// endpointLabel collapses numeric path segments to keep label cardinality low
func endpointLabel(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && len(payload.Detail) > 0 {
		var detail string
		if json.Unmarshal(payload.Detail, &detail) == nil {
			apiErr.Detail = detail
		} else {
			// validation errors arrive as a list of objects
			apiErr.Detail = string(payload.Detail)
		}
	}
	return apiErr
}
