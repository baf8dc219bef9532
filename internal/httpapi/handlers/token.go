package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sdclabs/chatgate/internal/auth"
	"github.com/sdclabs/chatgate/internal/tenant"
)

type tokenReq struct {
	TenantKey string `json:"tenant_key" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
}

// IssueToken exchanges a tenant API key for a short-lived JWT. Failed lookups
// and bad keys get the same reply so the endpoint does not confirm which
// tenant keys exist.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	row, err := h.Tenants.GetByKey(c.Request.Context(), req.TenantKey)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			fail(c, http.StatusUnauthorized, 40110, "invalid credentials")
			return
		}
		fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckAPIKey(row.APIKeyHash, req.APIKey) {
		fail(c, http.StatusUnauthorized, 40110, "invalid credentials")
		return
	}

	token, err := auth.SignJWT(row.TenantKey, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	ok(c, gin.H{"token": token})
}
