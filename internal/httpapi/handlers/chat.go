package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/sdclabs/chatgate/internal/admission"
	"github.com/sdclabs/chatgate/internal/ai"
	"github.com/sdclabs/chatgate/internal/session"
	"github.com/sdclabs/chatgate/internal/tenant"
)

type chatReq struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question" binding:"required"`
}

// Chat is the admitted request path: resolve config, run the admission gate,
// call the answer generator, then record the turn. Only an admitted request
// ever reaches the generator.
func (h *Handler) Chat(c *gin.Context) {
	tenantKey, okk := tenantKeyFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chatReq
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
	cfg, err = h.Resolver.ApplyPersona(ctx, cfg)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, 50301, "store unavailable, retry later")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = ulid.Make().String()
	}

	grant, err := h.Admission.Admit(ctx, cfg, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, admission.ErrRateLimited):
			fail(c, http.StatusTooManyRequests, 42901, "rate limit exceeded")
		case errors.Is(err, admission.ErrQuotaExceeded):
			fail(c, http.StatusTooManyRequests, 42902, "monthly quota exceeded")
		case errors.Is(err, admission.ErrStoreUnavailable):
			// fail closed: an unreachable store denies admission
			fail(c, http.StatusServiceUnavailable, 50301, "store unavailable, retry later")
		default:
			fail(c, http.StatusInternalServerError, 50001, "admission failed")
		}
		return
	}

	provider, err := h.Providers.Get(ctx, h.providerName(cfg), cfg.Model)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50002, "no answer provider configured")
		return
	}

	msgs := make([]ai.Message, 0, len(grant.Memory)+2)
	if cfg.SystemPrompt != "" {
		msgs = append(msgs, ai.Message{Role: string(session.RoleSystem), Content: cfg.SystemPrompt})
	}
	for _, m := range grant.Memory {
		msgs = append(msgs, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, ai.Message{Role: string(session.RoleUser), Content: req.Question})

	result, err := provider.Chat(ctx, msgs)
	if err != nil {
		// quota and usage were already consumed for the attempt; that is
		// intentional, attempted work is billed
		log.Printf("answer generation failed tenant=%s session=%s: %v", tenantKey, sessionID, err)
		fail(c, http.StatusBadGateway, 50201, "answer generation failed")
		return
	}

	messageID := uuid.NewString()

	turn := []session.Message{
		{Role: session.RoleUser, Content: req.Question},
		{Role: session.RoleAssistant, Content: result.Answer},
	}
	if err := h.Admission.Complete(ctx, cfg, sessionID, turn, result.TokensUsed, result.Model); err != nil {
		log.Printf("turn record failed tenant=%s session=%s: %v", tenantKey, sessionID, err)
		fail(c, http.StatusServiceUnavailable, 50302, "failed to record turn")
		return
	}

	ok(c, gin.H{
		"answer":      result.Answer,
		"message_id":  messageID,
		"session_id":  sessionID,
		"new_session": grant.IsNewSession,
		"tokens_used": result.TokensUsed,
		"model":       result.Model,
	})
}

func (h *Handler) providerName(cfg *tenant.Config) string {
	if cfg.Provider != "" {
		return cfg.Provider
	}
	if h.Cfg.AIProvider != "" {
		return h.Cfg.AIProvider
	}
	return "ollama"
}

// History returns the stored conversation for one session. Read-only, does
// not count against the rate limit or quota and does not refresh the session.
func (h *Handler) History(c *gin.Context) {
	tenantKey, okk := tenantKeyFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		fail(c, http.StatusBadRequest, 10002, "session_id required")
		return
	}

	msgs, err := h.Sessions.LoadMemory(c.Request.Context(), tenantKey, sessionID)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, 50301, "store unavailable, retry later")
		return
	}
	ok(c, gin.H{
		"session_id": sessionID,
		"messages":   msgs,
	})
}
