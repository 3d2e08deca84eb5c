package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"email-monitor-go/internal/apiclient"
	"email-monitor-go/internal/audit"
	"email-monitor-go/internal/models"
	"email-monitor-go/internal/session"
)

// LoginPage renders the login form
func (h *Handlers) LoginPage(c *gin.Context) {
	if _, err := h.sessions.Load(c); err == nil {
		c.Redirect(http.StatusFound, session.SafeRedirect(c.Query("redirect")))
		return
	}
	c.HTML(http.StatusOK, "login.html", LoginPageData{
		PageData: PageData{Title: "Sign in", Theme: session.ThemeLight},
		Redirect: session.SafeRedirect(c.Query("redirect")),
	})
}

// Login exchanges the operator's credentials for a backend token
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	redirect := session.SafeRedirect(c.PostForm("redirect"))
	data := LoginPageData{
		PageData:   PageData{Title: "Sign in", Theme: session.ThemeLight},
		Redirect:   redirect,
		EmailValue: c.PostForm("email"),
	}

	if err := c.ShouldBind(&req); err != nil {
		data.Error = "Enter a valid email address and password"
		c.HTML(http.StatusBadRequest, "login.html", data)
		return
	}

	token, err := h.api.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			h.countLogin("invalid")
			h.record(c, req.Email, audit.ActionLoginFailed, "", "")
			data.Error = err.Error()
			c.HTML(http.StatusUnauthorized, "login.html", data)
			return
		}
		h.countLogin("error")
		logrus.WithError(err).Error("Login request to backend failed")
		data.Error = "The monitoring backend is unavailable, try again later"
		c.HTML(http.StatusBadGateway, "login.html", data)
		return
	}

	theme := session.ThemeLight
	if prev, err := h.sessions.Load(c); err == nil {
		theme = prev.Theme
	}
	if err := h.sessions.Save(c, session.Session{Email: req.Email, Token: token, Theme: theme}); err != nil {
		logrus.WithError(err).Error("Failed to issue session")
		data.Error = "Failed to start the session"
		c.HTML(http.StatusInternalServerError, "login.html", data)
		return
	}

	h.countLogin("ok")
	h.record(c, req.Email, audit.ActionLogin, "", "")
	logrus.WithField("operator", req.Email).Info("Operator logged in")
	c.Redirect(http.StatusSeeOther, redirect)
}

// Logout drops the session
func (h *Handlers) Logout(c *gin.Context) {
	if s, err := h.sessions.Load(c); err == nil {
		h.record(c, s.Email, audit.ActionLogout, "", "")
	}
	h.sessions.Clear(c)
	c.Redirect(http.StatusSeeOther, "/login")
}

// ToggleTheme switches between the light and dark theme
func (h *Handlers) ToggleTheme(c *gin.Context) {
	s, _ := session.FromContext(c)
	if s.Theme == session.ThemeDark {
		s.Theme = session.ThemeLight
	} else {
		s.Theme = session.ThemeDark
	}
	if err := h.sessions.Save(c, s); err != nil {
		logrus.WithError(err).Error("Failed to reissue session")
	}
	c.Redirect(http.StatusSeeOther, session.SafeRedirect(c.PostForm("redirect")))
}

func (h *Handlers) countLogin(result string) {
	if h.metrics != nil {
		h.metrics.Logins.WithLabelValues(result).Inc()
	}
}
