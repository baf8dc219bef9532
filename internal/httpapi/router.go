package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdclabs/chatgate/internal/httpapi/handlers"
	"github.com/sdclabs/chatgate/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "route not found", "data": nil})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": 40500, "message": "method not allowed", "data": nil})
	})

	r.GET("/ping", h.Ping)

	// API-key to JWT exchange
	r.POST("/auth/token", h.IssueToken)

	// admin (exposed for provisioning; front with admin auth at the proxy)
	r.POST("/admin/tenants", h.CreateTenant)
	r.PUT("/admin/persona/:tenant_key", h.SetPersona)

	// tenant endpoints (JWT required)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.POST("/chat", h.Chat)
	authGroup.GET("/chat/:session_id/history", h.History)
	authGroup.POST("/feedback", h.SubmitFeedback)
	authGroup.GET("/usage", h.GetUsage)

	return r
}
