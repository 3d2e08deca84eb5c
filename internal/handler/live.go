package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"email-monitor-go/internal/logbrowser"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxCommandSize = 4096
)

// liveSession bridges one websocket connection and one log browser.
// Outgoing state is coalesced: only the latest view and URL are sent.
type liveSession struct {
	conn *websocket.Conn
	log  *logrus.Entry

	mu       sync.Mutex
	pending  *logbrowser.View
	query    string
	hasQuery bool
	notices  []LiveMessage
	wake     chan struct{}
}

func newLiveSession(conn *websocket.Conn, operator string) *liveSession {
	return &liveSession{
		conn: conn,
		log:  logrus.WithFields(logrus.Fields{"component": "live_logs", "operator": operator, "live_id": uuid.NewString()}),
		wake: make(chan struct{}, 1),
	}
}

func (l *liveSession) push(update func()) {
	l.mu.Lock()
	update()
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *liveSession) view(v logbrowser.View) {
	l.push(func() { l.pending = &v })
}

func (l *liveSession) replaceURL(query string) {
	l.push(func() {
		l.query = query
		l.hasQuery = true
	})
}

func (l *liveSession) notice(kind, message string) {
	l.push(func() { l.notices = append(l.notices, LiveMessage{Type: kind, Message: message}) })
}

func (l *liveSession) unauthorized() {
	l.notice("unauthorized", "Session expired")
}

// run serves the connection until the client goes away
func (l *liveSession) run(ctx context.Context, b *logbrowser.Browser) {
	l.log.Debug("Live log session opened")
	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		l.writeLoop(ctx)
	}()

	if err := b.Mount(ctx); err != nil {
		l.log.WithError(err).Error("Failed to mount log browser")
	} else {
		l.readLoop(b)
	}

	b.Close()
	cancel()
	<-writerDone
	l.conn.Close()
	l.log.Debug("Live log session closed")
}

func (l *liveSession) readLoop(b *logbrowser.Browser) {
	l.conn.SetReadLimit(maxCommandSize)
	l.conn.SetReadDeadline(time.Now().Add(pongWait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.log.WithError(err).Warn("Live log connection dropped")
			}
			return
		}
		l.conn.SetReadDeadline(time.Now().Add(pongWait))

		var cmd LiveCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			l.notice("error", "malformed command")
			continue
		}
		if err := dispatch(b, cmd); err != nil {
			l.notice("error", err.Error())
		}
	}
}

func dispatch(b *logbrowser.Browser, cmd LiveCommand) error {
	switch cmd.Type {
	case "set":
		return b.Set(cmd.Field, cmd.Value)
	case "next":
		return b.Next()
	case "prev":
		return b.Prev()
	case "refresh":
		return b.Refresh()
	case "submit":
		return b.Submit()
	case "auto_refresh":
		return b.SetAutoRefresh(cmd.Enabled)
	case "select":
		return b.Select(cmd.ID)
	case "close_detail":
		return b.CloseDetail()
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
}

func (l *liveSession) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.conn.Close()
				return
			}
		case <-l.wake:
			closing, err := l.flush()
			if err != nil {
				l.log.WithError(err).Debug("Failed to write live log message")
				l.conn.Close()
				return
			}
			if closing {
				l.conn.SetWriteDeadline(time.Now().Add(writeWait))
				l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session expired"))
				l.conn.Close()
				return
			}
		}
	}
}

// flush writes everything pending: the URL first, then notices, then the
// latest view. It reports whether the session must be closed.
func (l *liveSession) flush() (bool, error) {
	l.mu.Lock()
	msgs := make([]LiveMessage, 0, len(l.notices)+2)
	if l.hasQuery {
		msgs = append(msgs, LiveMessage{Type: "replace_url", Query: l.query})
		l.hasQuery = false
	}
	msgs = append(msgs, l.notices...)
	l.notices = nil
	if l.pending != nil {
		msgs = append(msgs, LiveMessage{Type: "view", View: l.pending})
		l.pending = nil
	}
	l.mu.Unlock()

	closing := false
	for _, msg := range msgs {
		l.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := l.conn.WriteJSON(msg); err != nil {
			return false, err
		}
		if msg.Type == "unauthorized" {
			closing = true
			break
		}
	}
	return closing, nil
}
