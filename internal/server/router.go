package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"email-monitor-go/internal/config"
	"email-monitor-go/internal/handler"
	"email-monitor-go/internal/web"
)

// SetupRouter configures routes, templates and middleware
func SetupRouter(h *handler.Handlers, cfg config.ServerConfig) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(loggerMiddleware())
	router.SetHTMLTemplate(tmpl)
	router.StaticFS("/static", http.FS(web.Static()))

	limiter := NewRateLimiter(cfg.LoginRatePerMin, time.Minute)
	h.SetupRoutes(router, limiter.Middleware())
	return router, nil
}

func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\" %s\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
			param.Keys[requestIDKey],
		)
	})
}
