package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUsage reports the tenant's own consumption counters.
func (h *Handler) GetUsage(c *gin.Context) {
	tenantKey, okk := tenantKeyFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	rep, err := h.Usage.GetReport(c.Request.Context(), tenantKey)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, 50301, "store unavailable, retry later")
		return
	}
	ok(c, rep)
}
