package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/krizar/koboldbot/internal/httpapi/handlers"
	"github.com/krizar/koboldbot/internal/httpapi/middleware"
	"github.com/krizar/koboldbot/internal/logging"
)

func NewRouter(h *handlers.Handler, log logging.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	r.GET("/ping", h.Ping)
	r.POST("/webhook", h.Webhook)

	return r
}
