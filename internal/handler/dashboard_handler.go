package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"email-monitor-go/internal/dashboard"
	"email-monitor-go/internal/models"
)

const maxDashboardHours = 24 * 31

// Dashboard renders the KPI overview
func (h *Handlers) Dashboard(c *gin.Context) {
	hours := h.cfg.Dashboard.Hours
	data := DashboardPageData{
		PageData:    h.page(c, "Dashboard", "dashboard"),
		Hours:       hours,
		RefreshMs:   h.cfg.Dashboard.RefreshInterval.Milliseconds(),
		ChartWidth:  dashboard.DefaultChartWidth,
		ChartHeight: dashboard.DefaultChartHeight,
	}

	snap, err := dashboard.Load(c.Request.Context(), h.client(c), hours)
	if err != nil {
		if h.expired(c, err) {
			return
		}
		logrus.WithError(err).Warn("Failed to load dashboard")
		data.Error = "Failed to load KPIs: " + err.Error()
	} else {
		data.Snapshot = &snap
	}

	c.HTML(http.StatusOK, "dashboard.html", data)
}

// KPI returns the dashboard snapshot as JSON for periodic refresh
func (h *Handlers) KPI(c *gin.Context) {
	hours := h.cfg.Dashboard.Hours
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDashboardHours {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "Invalid hours",
				Message: "hours must be between 1 and " + strconv.Itoa(maxDashboardHours),
				Code:    http.StatusBadRequest,
			})
			return
		}
		hours = n
	}

	snap, err := dashboard.Load(c.Request.Context(), h.client(c), hours)
	if err != nil {
		if h.expiredJSON(c, err) {
			return
		}
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "Backend error",
			Message: err.Error(),
			Code:    http.StatusBadGateway,
		})
		return
	}
	c.JSON(http.StatusOK, snap)
}
