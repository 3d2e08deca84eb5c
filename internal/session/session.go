// Package session keeps the operator's backend token and preferences in a
// signed cookie.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"email-monitor-go/internal/config"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// ErrNoSession is returned when the request carries no valid session cookie
var ErrNoSession = errors.New("no operator session")

// Session is what the dashboard knows about the logged-in operator
type Session struct {
	Email string
	Token string
	Theme string
}

type claims struct {
	Token string `json:"tok"`
	Theme string `json:"theme,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and reads session cookies
type Manager struct {
	secret []byte
	expiry time.Duration
	cookie string
	secure bool
	now    func() time.Time
}

// NewManager creates a manager from the session configuration
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.Secret),
		expiry: cfg.Expiry,
		cookie: cfg.CookieName,
		secure: cfg.CookieSecure,
		now:    time.Now,
	}
}

// Issue signs a session into a cookie value
func (m *Manager) Issue(s Session) (string, error) {
	if s.Theme != ThemeDark {
		s.Theme = ThemeLight
	}
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Token: s.Token,
		Theme: s.Theme,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies a cookie value and returns its session
func (m *Manager) Parse(value string) (Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(value, &c, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if c.Token == "" {
		return Session{}, fmt.Errorf("%w: missing backend token", ErrNoSession)
	}
	return Session{Email: c.Subject, Token: c.Token, Theme: c.Theme}, nil
}

// Load reads the session of a request
func (m *Manager) Load(c *gin.Context) (Session, error) {
	value, err := c.Cookie(m.cookie)
	if err != nil || value == "" {
		return Session{}, ErrNoSession
	}
	return m.Parse(value)
}

// Save issues the session and sets it as cookie on the response
func (m *Manager) Save(c *gin.Context, s Session) error {
	value, err := m.Issue(s)
	if err != nil {
		return err
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.cookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.expiry.Seconds()),
	})
	return nil
}

// Clear removes the session cookie
func (m *Manager) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.cookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
