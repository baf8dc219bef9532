// Package admission is the single per-request gate in front of answer
// generation: rate limit, monthly quota, session staleness, and usage
// accounting, in that order. The HTTP layer calls nothing below this package
// directly on the chat path.
package admission

import (
	"context"
	"log"
	"time"

	"github.com/sdclabs/chatgate/internal/ratelimit"
	"github.com/sdclabs/chatgate/internal/session"
	"github.com/sdclabs/chatgate/internal/store"
	"github.com/sdclabs/chatgate/internal/tenant"
	"github.com/sdclabs/chatgate/internal/usage"
)

// The admission error taxonomy, re-exported so callers import one package.
// Store failures surface wrapped in ErrStoreUnavailable and mean "deny":
// admission fails closed when the counter store cannot be reached.
var (
	ErrRateLimited      = ratelimit.ErrLimited
	ErrQuotaExceeded    = usage.ErrQuotaExceeded
	ErrUnknownTenant    = tenant.ErrNotFound
	ErrStoreUnavailable = store.ErrUnavailable
)

// Grant is the result of a successful admission: whether the session started
// fresh and the conversation memory loaded for the answer generator.
type Grant struct {
	TenantKey    string
	SessionID    string
	IsNewSession bool
	Memory       []session.Message
	AdmittedAt   time.Time
}

type Controller struct {
	limiter  *ratelimit.Limiter
	usage    *usage.Tracker
	sessions *session.Manager
}

func NewController(limiter *ratelimit.Limiter, tracker *usage.Tracker, sessions *session.Manager) *Controller {
	return &Controller{limiter: limiter, usage: tracker, sessions: sessions}
}

// Admit runs the per-request gate. On failure the request must not reach the
// answer generator. Session resolution runs exactly once here; callers must
// not resolve again for the same request.
func (c *Controller) Admit(ctx context.Context, cfg *tenant.Config, sessionID string) (*Grant, error) {
	if err := c.limiter.Allow(ctx, cfg.TenantKey, cfg.MaxRequests, cfg.Window()); err != nil {
		return nil, err
	}

	if err := c.usage.CheckAndCount(ctx, cfg.TenantKey, cfg.MonthlyLimit); err != nil {
		return nil, err
	}

	isNew, err := c.sessions.Resolve(ctx, cfg.TenantKey, sessionID, cfg.SessionTimeout)
	if err != nil {
		return nil, err
	}

	// accounting only; a failure here must not take down an already
	// admitted request
	if err := c.usage.RecordRequest(ctx, cfg.TenantKey); err != nil {
		log.Printf("request accounting failed tenant=%s: %v", cfg.TenantKey, err)
	}

	memory, err := c.sessions.LoadMemory(ctx, cfg.TenantKey, sessionID)
	if err != nil {
		return nil, err
	}

	return &Grant{
		TenantKey:    cfg.TenantKey,
		SessionID:    sessionID,
		IsNewSession: isNew,
		Memory:       memory,
		AdmittedAt:   time.Now(),
	}, nil
}

// Complete records the outcome of an answered request: the new turn is
// appended to memory, the session's last-seen is refreshed, and token
// consumption is accounted. Token accounting is best-effort; memory and
// last-seen failures are returned because losing them breaks the next turn.
func (c *Controller) Complete(ctx context.Context, cfg *tenant.Config, sessionID string, turn []session.Message, tokensUsed int64, model string) error {
	if err := c.sessions.AppendMemory(ctx, cfg.TenantKey, sessionID, cfg.SessionTimeout, turn...); err != nil {
		return err
	}
	if err := c.sessions.Touch(ctx, cfg.TenantKey, sessionID, cfg.SessionTimeout); err != nil {
		return err
	}
	if err := c.usage.AddTokens(ctx, cfg.TenantKey, model, tokensUsed); err != nil {
		log.Printf("token accounting failed tenant=%s model=%s: %v", cfg.TenantKey, model, err)
	}
	return nil
}
