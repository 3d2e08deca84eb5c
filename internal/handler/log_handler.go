package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"email-monitor-go/internal/apiclient"
	"email-monitor-go/internal/logbrowser"
	"email-monitor-go/internal/models"
	"email-monitor-go/internal/session"
)

// LogsPage renders the log browser shell. Records arrive over the live
// connection opened by the page.
func (h *Handlers) LogsPage(c *gin.Context) {
	paging := h.paging()
	filter := logbrowser.ParseFilter(c.Request.URL.Query(), paging)
	c.HTML(http.StatusOK, "logs.html", LogsPageData{
		PageData: h.page(c, "Logs", "logs"),
		View: logbrowser.View{
			Filter:      filter,
			Query:       filter.Values().Encode(),
			AutoRefresh: true,
			Loading:     true,
			Phase:       logbrowser.PhaseLoading,
			PageSizes:   paging.Sizes,
			HasPrev:     filter.Page > 1,
		},
		Kinds:    models.LogKinds,
		Statuses: models.LogStatuses,
	})
}

// LiveLogs upgrades to a websocket and runs one log browser for the
// lifetime of the connection.
func (h *Handlers) LiveLogs(c *gin.Context) {
	s, _ := session.FromContext(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("Failed to upgrade live log connection")
		return
	}

	live := newLiveSession(conn, s.Email)
	browser := logbrowser.New(logbrowser.Options{
		Source:       watchedSource{Source: h.client(c), onUnauthorized: live.unauthorized},
		Navigator:    logbrowser.NavigatorFunc(live.replaceURL),
		NewPoller:    h.newPoller,
		Debounce:     h.cfg.Browser.Debounce,
		PollInterval: h.cfg.Browser.PollInterval,
		Paging:       h.paging(),
		Metrics:      h.metrics,
		OnChange:     live.view,
	}, c.Request.URL.Query())

	live.run(c.Request.Context(), browser)
}

func (h *Handlers) paging() logbrowser.Paging {
	if len(h.cfg.Browser.PageSizes) == 0 {
		return logbrowser.DefaultPaging
	}
	return logbrowser.Paging{Sizes: h.cfg.Browser.PageSizes, DefaultLimit: h.cfg.Browser.DefaultLimit}
}

// watchedSource reports backend 401s so the live session can send the
// page back to the login form.
type watchedSource struct {
	logbrowser.Source
	onUnauthorized func()
}

func (w watchedSource) ListServers(ctx context.Context) ([]models.Server, error) {
	servers, err := w.Source.ListServers(ctx)
	w.check(err)
	return servers, err
}

func (w watchedSource) ListMailLogs(ctx context.Context, q models.MailLogQuery) ([]models.LogRecord, error) {
	records, err := w.Source.ListMailLogs(ctx, q)
	w.check(err)
	return records, err
}

func (w watchedSource) check(err error) {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		w.onUnauthorized()
	}
}
