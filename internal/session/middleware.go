package session

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"email-monitor-go/internal/models"
)

const contextKey = "session"

// RequireAuth redirects requests without a session to the login page
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Load(c)
		if err != nil {
			c.Redirect(http.StatusFound, LoginURL(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Set(contextKey, s)
		c.Next()
	}
}

// RequireAPIAuth answers 401 JSON to requests without a session
func (m *Manager) RequireAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Load(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Login required",
				Code:    http.StatusUnauthorized,
			})
			return
		}
		c.Set(contextKey, s)
		c.Next()
	}
}

// FromContext returns the session stored by the auth middleware
func FromContext(c *gin.Context) (Session, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}

// LoginURL is the login page that returns to target after login
func LoginURL(target string) string {
	if target == "" || target == "/" {
		return "/login"
	}
	return "/login?redirect=" + url.QueryEscape(target)
}

// SafeRedirect returns target when it is a local path, "/" otherwise
func SafeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	if u, err := url.Parse(target); err != nil || u.Host != "" {
		return "/"
	}
	return target
}
