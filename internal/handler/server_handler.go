package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"email-monitor-go/internal/apiclient"
	"email-monitor-go/internal/audit"
	"email-monitor-go/internal/models"
	"email-monitor-go/internal/session"
)

const recentAuditEntries = 10

// ServersPage lists the registered servers
func (h *Handlers) ServersPage(c *gin.Context) {
	data := ServersPageData{PageData: h.page(c, "Servers", "servers")}
	if !h.loadServers(c, &data) {
		return
	}
	c.HTML(http.StatusOK, "servers.html", data)
}

// RegisterServer registers a new server and shows its API key once
func (h *Handlers) RegisterServer(c *gin.Context) {
	s, _ := session.FromContext(c)
	data := ServersPageData{
		PageData:  h.page(c, "Servers", "servers"),
		NameValue: c.PostForm("name"),
	}

	var req models.ServerRegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		data.Error = bindingMessage(err)
		if h.loadServers(c, &data) {
			c.HTML(http.StatusBadRequest, "servers.html", data)
		}
		return
	}

	server, err := h.client(c).RegisterServer(c.Request.Context(), req.Name)
	if err != nil {
		if h.expired(c, err) {
			return
		}
		status := http.StatusBadGateway
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		logrus.WithError(err).WithField("server", req.Name).Warn("Failed to register server")
		data.Error = "Failed to register server: " + err.Error()
		if h.loadServers(c, &data) {
			c.HTML(status, "servers.html", data)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.ServerRegistered.Inc()
	}
	h.record(c, s.Email, audit.ActionServerRegister, server.Name, "id "+strconv.FormatInt(server.ID, 10))
	logrus.WithFields(logrus.Fields{"server": server.Name, "id": server.ID}).Info("Server registered")

	data.Created = &server
	data.NameValue = ""
	if h.loadServers(c, &data) {
		c.HTML(http.StatusCreated, "servers.html", data)
	}
}

// DeleteServer removes a server and its logs
func (h *Handlers) DeleteServer(c *gin.Context) {
	s, _ := session.FromContext(c)
	data := ServersPageData{PageData: h.page(c, "Servers", "servers")}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		data.Error = "Invalid server ID"
		if h.loadServers(c, &data) {
			c.HTML(http.StatusBadRequest, "servers.html", data)
		}
		return
	}

	if err := h.client(c).DeleteServer(c.Request.Context(), id); err != nil {
		if h.expired(c, err) {
			return
		}
		status := http.StatusBadGateway
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
			status = apiErr.StatusCode
		}
		logrus.WithError(err).WithField("id", id).Warn("Failed to remove server")
		data.Error = "Failed to remove server: " + err.Error()
		if h.loadServers(c, &data) {
			c.HTML(status, "servers.html", data)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.ServerRemoved.Inc()
	}
	h.record(c, s.Email, audit.ActionServerRemove, strconv.FormatInt(id, 10), "")
	logrus.WithField("id", id).Info("Server removed")
	c.Redirect(http.StatusSeeOther, "/servers")
}

// loadServers fills the server list and the recent audit trail. It returns
// false when it already answered the request.
func (h *Handlers) loadServers(c *gin.Context, data *ServersPageData) bool {
	servers, err := h.client(c).ListServers(c.Request.Context())
	if err != nil {
		if h.expired(c, err) {
			return false
		}
		logrus.WithError(err).Warn("Failed to list servers")
		if data.Error == "" {
			data.Error = "Failed to load servers: " + err.Error()
		}
	}
	data.Servers = servers
	data.Audit = h.recentAudit(c.Request.Context())
	return true
}

func (h *Handlers) recentAudit(ctx context.Context) []audit.Entry {
	entries, err := h.audit.Recent(ctx, recentAuditEntries)
	if err != nil {
		logrus.WithError(err).Warn("Failed to load audit trail")
		return nil
	}
	return entries
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "required":
			return "Server name is required"
		case "servername":
			return "Server name may only contain letters, digits, dots, dashes and underscores (up to 64 characters)"
		}
	}
	return "Invalid request: " + err.Error()
}
