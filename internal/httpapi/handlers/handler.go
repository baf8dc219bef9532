package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdclabs/chatgate/internal/admission"
	"github.com/sdclabs/chatgate/internal/ai"
	"github.com/sdclabs/chatgate/internal/config"
	"github.com/sdclabs/chatgate/internal/feedback"
	"github.com/sdclabs/chatgate/internal/httpapi/middleware"
	"github.com/sdclabs/chatgate/internal/session"
	"github.com/sdclabs/chatgate/internal/tenant"
	"github.com/sdclabs/chatgate/internal/usage"
)

type Handler struct {
	Cfg       config.Config
	Tenants   *tenant.Repo
	Resolver  *tenant.Resolver
	Admission *admission.Controller
	Sessions  *session.Manager
	Ledger    *feedback.Ledger
	Usage     *usage.Tracker
	Providers *ai.Registry
}

func NewHandler(cfg config.Config, tenants *tenant.Repo, resolver *tenant.Resolver,
	ctrl *admission.Controller, sessions *session.Manager, ledger *feedback.Ledger,
	tracker *usage.Tracker, providers *ai.Registry) *Handler {
	return &Handler{
		Cfg:       cfg,
		Tenants:   tenants,
		Resolver:  resolver,
		Admission: ctrl,
		Sessions:  sessions,
		Ledger:    ledger,
		Usage:     tracker,
		Providers: providers,
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

func tenantKeyFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.TenantKeyKey)
	if !exists {
		return "", false
	}
	key, isStr := v.(string)
	return key, isStr && key != ""
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}
