package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdclabs/chatgate/internal/admission"
	"github.com/sdclabs/chatgate/internal/feedback"
)

type feedbackReq struct {
	MessageID string `json:"message_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	Vote      string `json:"vote" binding:"required"`
}

// SubmitFeedback records an up/down vote on an assistant message. Duplicate
// votes are not an error: the response carries recorded=false so the client
// can tell "already voted" from a failure.
func (h *Handler) SubmitFeedback(c *gin.Context) {
	tenantKey, okk := tenantKeyFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req feedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()

	cfg, err := h.Resolver.Resolve(ctx, tenantKey)
	if err != nil {
		if errors.Is(err, admission.ErrUnknownTenant) {
			fail(c, http.StatusNotFound, 40402, "unknown tenant")
			return
		}
		fail(c, http.StatusInternalServerError, 20001, "config lookup failed")
		return
	}
	if !cfg.FeedbackEnabled {
		fail(c, http.StatusForbidden, 40301, "feedback disabled for this tenant")
		return
	}

	recorded, err := h.Ledger.RecordVote(ctx, tenantKey, req.MessageID, req.UserID, feedback.Vote(req.Vote))
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidVote) {
			fail(c, http.StatusBadRequest, 10003, "vote must be \"up\" or \"down\"")
			return
		}
		fail(c, http.StatusServiceUnavailable, 50301, "store unavailable, retry later")
		return
	}

	ok(c, gin.H{"recorded": recorded})
}
