// Package logbrowser implements the filtered, paginated log view: filter
// state mirrored into the page URL, debounced refetching, auto-refresh
// polling and a record detail overlay.
package logbrowser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"email-monitor-go/internal/metrics"
	"email-monitor-go/internal/models"
	"email-monitor-go/internal/scheduler"
)

var (
	// ErrClosed is returned by operations on a browser after Close
	ErrClosed = errors.New("log browser is closed")
	// ErrNotMounted is returned by operations on a browser before Mount
	ErrNotMounted = errors.New("log browser is not mounted")
	// ErrRecordNotFound is returned by Select for an id outside the current page
	ErrRecordNotFound = errors.New("record is not on the current page")
)

// Source is the backend the browser reads from. Implementations must be
// safe for concurrent use.
type Source interface {
	ListServers(ctx context.Context) ([]models.Server, error)
	ListMailLogs(ctx context.Context, q models.MailLogQuery) ([]models.LogRecord, error)
}

// Navigator replaces the query string of the page URL without adding a
// history entry.
type Navigator interface {
	ReplaceQuery(query string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(query string)

func (f NavigatorFunc) ReplaceQuery(query string) { f(query) }

// Poller drives auto-refresh
type Poller interface {
	Start() error
	Stop() error
}

// PollerFactory creates a stopped poller calling job every interval
type PollerFactory func(interval time.Duration, job func()) Poller

// Options configures a Browser. Zero values select the defaults.
type Options struct {
	Source       Source
	Navigator    Navigator
	Clock        Clock
	NewPoller    PollerFactory
	Debounce     time.Duration
	PollInterval time.Duration
	Paging       Paging
	Metrics      *metrics.Metrics
	// OnChange receives a snapshot after every state change. It is called
	// sequentially and must not call back into the Browser synchronously.
	OnChange func(View)
}

const (
	DefaultDebounce     = 400 * time.Millisecond
	DefaultPollInterval = 30 * time.Second
)

// Browser holds the state of one mounted log view
type Browser struct {
	opts Options
	log  *logrus.Entry

	mu          sync.Mutex
	filter      Filter
	autoRefresh bool
	loading     bool
	fetched     bool
	records     []models.LogRecord
	err         error
	servers     []string
	detail      *models.LogRecord

	seq         uint64
	debounce    Timer
	debounceGen uint64
	poller      Poller
	pollGen     uint64

	mounted bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// serializes OnChange and Navigator calls in state order
	notifyMu sync.Mutex
}

// New creates a browser whose filter is read from the page query.
// Auto-refresh starts enabled.
func New(opts Options, query url.Values) *Browser {
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if len(opts.Paging.Sizes) == 0 {
		opts.Paging = DefaultPaging
	}
	if opts.NewPoller == nil {
		m := opts.Metrics
		opts.NewPoller = func(interval time.Duration, job func()) Poller {
			return scheduler.NewPoller("log-browser", interval, job, m)
		}
	}

	return &Browser{
		opts:        opts,
		log:         logrus.WithField("component", "logbrowser"),
		filter:      ParseFilter(query, opts.Paging),
		autoRefresh: true,
	}
}

// Mount starts the browser: it normalizes the page URL, loads the server
// list, fetches the first page and starts auto-refresh.
func (b *Browser) Mount(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.mounted {
		b.mu.Unlock()
		return fmt.Errorf("log browser is already mounted")
	}
	b.mounted = true
	b.ctx, b.cancel = context.WithCancel(ctx)

	if b.opts.Metrics != nil {
		b.opts.Metrics.ActiveBrowsers.Inc()
	}

	b.wg.Add(1)
	go b.loadServers()

	b.issueFetch("mount")
	if err := b.startPollerLocked(); err != nil {
		b.log.WithError(err).Warn("Failed to start auto-refresh")
	}
	b.commit(true)
	return nil
}

// SetServer filters by server name, empty for all servers
func (b *Browser) SetServer(server string) error {
	return b.change(func(f *Filter) error {
		f.Server = server
		f.Page = 1
		return nil
	})
}

// SetEmail filters by a sender or recipient substring
func (b *Browser) SetEmail(email string) error {
	return b.change(func(f *Filter) error {
		f.Email = email
		f.Page = 1
		return nil
	})
}

// SetKind filters by log kind, empty for all kinds
func (b *Browser) SetKind(kind models.LogKind) error {
	return b.change(func(f *Filter) error {
		if kind != "" && !kind.Valid() {
			return fmt.Errorf("unknown log kind %q", kind)
		}
		f.Kind = kind
		f.Page = 1
		return nil
	})
}

// SetStatus filters by delivery status, empty for all statuses
func (b *Browser) SetStatus(status models.LogStatus) error {
	return b.change(func(f *Filter) error {
		if status != "" && !status.Valid() {
			return fmt.Errorf("unknown log status %q", status)
		}
		f.Status = status
		f.Page = 1
		return nil
	})
}

// SetLimit changes the page size and goes back to the first page
func (b *Browser) SetLimit(limit int) error {
	return b.change(func(f *Filter) error {
		if !b.opts.Paging.allowed(limit) {
			return fmt.Errorf("page size %d is not allowed", limit)
		}
		f.Limit = limit
		f.Page = 1
		return nil
	})
}

// SetPage jumps to a 1-based page
func (b *Browser) SetPage(page int) error {
	return b.change(func(f *Filter) error {
		if page < 1 {
			return fmt.Errorf("page must be at least 1, got %d", page)
		}
		f.Page = page
		return nil
	})
}

// Set changes one filter field from its string form
func (b *Browser) Set(field, value string) error {
	switch field {
	case "server":
		return b.SetServer(value)
	case "email":
		return b.SetEmail(value)
	case "kind":
		return b.SetKind(models.LogKind(value))
	case "status":
		return b.SetStatus(models.LogStatus(value))
	case "limit", "page":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", field, value, err)
		}
		if field == "limit" {
			return b.SetLimit(n)
		}
		return b.SetPage(n)
	default:
		return fmt.Errorf("unknown filter field %q", field)
	}
}

// Next moves to the following page. It does nothing when the last fetch
// returned a short page.
func (b *Browser) Next() error {
	return b.change(func(f *Filter) error {
		if b.hasNextLocked() {
			f.Page++
		}
		return nil
	})
}

// Prev moves to the preceding page. It does nothing on the first page.
func (b *Browser) Prev() error {
	return b.change(func(f *Filter) error {
		if f.Page > 1 {
			f.Page--
		}
		return nil
	})
}

// Submit applies the current filters from the first page and fetches
// immediately.
func (b *Browser) Submit() error {
	b.mu.Lock()
	if err := b.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	urlChanged := b.filter.Page != 1
	b.filter.Page = 1
	b.cancelDebounceLocked()
	b.issueFetch("submit")
	old := b.rearmPollerLocked()
	b.commit(urlChanged)
	stopPoller(old)
	return nil
}

// Refresh fetches the current page immediately, cancelling a pending
// debounced fetch.
func (b *Browser) Refresh() error {
	b.mu.Lock()
	if err := b.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.cancelDebounceLocked()
	b.issueFetch("refresh")
	b.commit(false)
	return nil
}

// SetAutoRefresh turns polling on or off. Enabling does not fetch
// immediately; the first poll happens one interval later.
func (b *Browser) SetAutoRefresh(enabled bool) error {
	b.mu.Lock()
	if err := b.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	if b.autoRefresh == enabled {
		b.mu.Unlock()
		return nil
	}
	b.autoRefresh = enabled
	old := b.rearmPollerLocked()
	b.commit(false)
	stopPoller(old)
	return nil
}

// Select opens the detail overlay for a record of the current page
func (b *Browser) Select(id int64) error {
	b.mu.Lock()
	if err := b.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	for i := range b.records {
		if b.records[i].ID == id {
			rec := b.records[i]
			b.detail = &rec
			b.commit(false)
			return nil
		}
	}
	b.mu.Unlock()
	return ErrRecordNotFound
}

// CloseDetail discards the detail overlay
func (b *Browser) CloseDetail() error {
	b.mu.Lock()
	if err := b.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	if b.detail == nil {
		b.mu.Unlock()
		return nil
	}
	b.detail = nil
	b.commit(false)
	return nil
}

// Snapshot returns the current view
func (b *Browser) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked()
}

// Wait blocks until all in-flight requests have finished
func (b *Browser) Wait() {
	b.wg.Wait()
}

// Close tears the browser down: it stops the debounce timer and the
// poller, cancels in-flight requests and waits for them. No listener or
// navigator call happens after Close returns.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	b.cancelDebounceLocked()
	old := b.poller
	b.poller = nil
	b.pollGen++
	if b.cancel != nil {
		b.cancel()
	}
	wasMounted := b.mounted
	b.mu.Unlock()

	stopPoller(old)
	// drain a notification already in progress
	b.notifyMu.Lock()
	b.notifyMu.Unlock()
	b.wg.Wait()

	if wasMounted && b.opts.Metrics != nil {
		b.opts.Metrics.ActiveBrowsers.Dec()
	}
	return nil
}

// change applies a filter mutation. When the filter actually changes the
// URL is replaced at once, the debounce is re-armed and the poller is
// restarted.
func (b *Browser) change(mutate func(*Filter) error) error {
	b.mu.Lock()
	if err := b.usableLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	next := b.filter
	if err := mutate(&next); err != nil {
		b.mu.Unlock()
		return err
	}
	if next == b.filter {
		b.mu.Unlock()
		return nil
	}
	b.filter = next
	b.armDebounceLocked()
	old := b.rearmPollerLocked()
	b.commit(true)
	stopPoller(old)
	return nil
}

func (b *Browser) usableLocked() error {
	if b.closed {
		return ErrClosed
	}
	if !b.mounted {
		return ErrNotMounted
	}
	return nil
}

func (b *Browser) armDebounceLocked() {
	b.cancelDebounceLocked()
	gen := b.debounceGen
	b.debounce = b.opts.Clock.AfterFunc(b.opts.Debounce, func() {
		b.mu.Lock()
		if b.closed || gen != b.debounceGen {
			b.mu.Unlock()
			return
		}
		b.debounce = nil
		b.issueFetch("debounce")
		b.commit(false)
	})
}

func (b *Browser) cancelDebounceLocked() {
	b.debounceGen++
	if b.debounce != nil {
		b.debounce.Stop()
		b.debounce = nil
	}
}

// rearmPollerLocked replaces the running poller and returns the old one,
// which the caller must stop after releasing the lock: a tick in progress
// waits for the lock.
func (b *Browser) rearmPollerLocked() Poller {
	old := b.poller
	b.poller = nil
	b.pollGen++
	if err := b.startPollerLocked(); err != nil {
		b.log.WithError(err).Warn("Failed to restart auto-refresh")
	}
	return old
}

func (b *Browser) startPollerLocked() error {
	if !b.autoRefresh {
		return nil
	}
	gen := b.pollGen
	p := b.opts.NewPoller(b.opts.PollInterval, func() {
		b.mu.Lock()
		if b.closed || gen != b.pollGen {
			b.mu.Unlock()
			return
		}
		b.issueFetch("poll")
		b.commit(false)
	})
	if err := p.Start(); err != nil {
		return err
	}
	b.poller = p
	return nil
}

func stopPoller(p Poller) {
	if p == nil {
		return
	}
	if err := p.Stop(); err != nil {
		logrus.WithError(err).Warn("Failed to stop auto-refresh poller")
	}
}

// issueFetch starts a record fetch for the current filter. Only the
// response of the most recently issued fetch is applied.
func (b *Browser) issueFetch(trigger string) {
	b.seq++
	seq := b.seq
	q := b.filter.Query()
	ctx := b.ctx
	b.loading = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		records, err := b.opts.Source.ListMailLogs(ctx, q)
		b.finishFetch(seq, trigger, records, err)
	}()
}

func (b *Browser) finishFetch(seq uint64, trigger string, records []models.LogRecord, err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if seq != b.seq {
		b.mu.Unlock()
		b.count(trigger, "stale")
		if b.opts.Metrics != nil {
			b.opts.Metrics.StaleResponses.Inc()
		}
		return
	}

	b.loading = false
	if err != nil {
		b.err = err
		b.log.WithFields(logrus.Fields{"trigger": trigger, "query": b.filter.Values().Encode()}).
			WithError(err).Warn("Failed to fetch mail logs")
		b.count(trigger, "error")
	} else {
		b.err = nil
		b.fetched = true
		b.records = records
		b.count(trigger, "ok")
	}
	b.commit(false)
}

func (b *Browser) count(trigger, result string) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.LogFetches.WithLabelValues(trigger, result).Inc()
	}
}

func (b *Browser) loadServers() {
	defer b.wg.Done()

	servers, err := b.opts.Source.ListServers(b.ctx)
	if err != nil {
		b.log.WithError(err).Warn("Failed to load servers, server filter limited to all servers")
		return
	}
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		names = append(names, s.Name)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.servers = names
	b.commit(false)
}

// commit must be called with b.mu held and releases it. It publishes the
// new state to the navigator and the listener in the order states were
// produced.
func (b *Browser) commit(urlChanged bool) {
	view := b.viewLocked()
	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()

	if urlChanged && b.opts.Navigator != nil {
		b.opts.Navigator.ReplaceQuery(view.Query)
	}
	if b.opts.OnChange != nil {
		b.opts.OnChange(view)
	}
}

func (b *Browser) hasNextLocked() bool {
	return b.fetched && len(b.records) >= b.filter.Limit
}

func (b *Browser) viewLocked() View {
	v := View{
		Filter:      b.filter,
		Query:       b.filter.Values().Encode(),
		AutoRefresh: b.autoRefresh,
		Loading:     b.loading,
		Records:     append([]models.LogRecord(nil), b.records...),
		Servers:     append([]string(nil), b.servers...),
		PageSizes:   b.opts.Paging.Sizes,
		HasPrev:     b.filter.Page > 1,
		HasNext:     b.hasNextLocked(),
	}
	if b.detail != nil {
		rec := *b.detail
		v.Detail = &rec
	}
	if b.err != nil {
		v.Error = b.err.Error()
	}

	switch {
	case b.loading:
		v.Phase = PhaseLoading
	case b.err != nil:
		v.Phase = PhaseFailed
	case !b.fetched:
		v.Phase = PhaseIdle
	case len(b.records) == 0:
		v.Phase = PhaseEmpty
	default:
		v.Phase = PhasePopulated
	}
	return v
}
