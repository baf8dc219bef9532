package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdclabs/chatgate/internal/auth"
	"github.com/sdclabs/chatgate/internal/tenant"
)

type createTenantReq struct {
	TenantKey string `json:"tenant_key" binding:"required"`
	Name      string `json:"name" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`

	MaxRequests           int    `json:"max_requests"`
	WindowSeconds         int    `json:"window_seconds"`
	MonthlyLimit          int64  `json:"monthly_limit"`
	SessionTimeoutMinutes int    `json:"session_timeout_minutes"`
	Provider              string `json:"provider"`
	Model                 string `json:"model"`
	SystemPrompt          string `json:"system_prompt"`
	MaxChunks             int    `json:"max_chunks"`
	FeedbackEnabled       *bool  `json:"feedback_enabled"`
}

// CreateTenant provisions a tenant row. The raw API key is never stored.
func (h *Handler) CreateTenant(c *gin.Context) {
	var req createTenantReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	hash, err := auth.HashAPIKey(req.APIKey)
	if err != nil {
		fail(c, http.StatusInternalServerError, 20002, "failed to hash api key")
		return
	}

	row := &tenant.Tenant{
		TenantKey:             req.TenantKey,
		Name:                  req.Name,
		APIKeyHash:            hash,
		MaxRequests:           req.MaxRequests,
		WindowSeconds:         req.WindowSeconds,
		MonthlyLimit:          req.MonthlyLimit,
		SessionTimeoutMinutes: req.SessionTimeoutMinutes,
		Provider:              req.Provider,
		Model:                 req.Model,
		SystemPrompt:          req.SystemPrompt,
		MaxChunks:             req.MaxChunks,
		FeedbackEnabled:       true,
	}
	if row.MaxRequests <= 0 {
		row.MaxRequests = 20
	}
	if row.WindowSeconds <= 0 {
		row.WindowSeconds = 60
	}
	if row.MonthlyLimit <= 0 {
		row.MonthlyLimit = 1000
	}
	if row.MaxChunks <= 0 {
		row.MaxChunks = 5
	}
	if req.FeedbackEnabled != nil {
		row.FeedbackEnabled = *req.FeedbackEnabled
	}

	if err := h.Tenants.Create(c.Request.Context(), row); err != nil {
		fail(c, http.StatusBadRequest, 10005, "failed to create tenant (maybe key already exists)")
		return
	}

	ok(c, row)
}

type personaReq struct {
	Prompt    string `json:"prompt" binding:"required"`
	MaxChunks *int   `json:"max_chunks"`
	Append    bool   `json:"append"`
}

// SetPersona replaces or extends a tenant's dynamic prompt override.
func (h *Handler) SetPersona(c *gin.Context) {
	tenantKey := c.Param("tenant_key")

	var req personaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()

	var err error
	if req.Append {
		err = h.Resolver.AppendPersona(ctx, tenantKey, req.Prompt)
	} else {
		err = h.Resolver.SetPersona(ctx, tenantKey, tenant.Persona{
			Prompt:    req.Prompt,
			MaxChunks: req.MaxChunks,
		})
	}
	if err != nil {
		fail(c, http.StatusServiceUnavailable, 50301, "store unavailable, retry later")
		return
	}

	ok(c, gin.H{"tenant_key": tenantKey})
}
