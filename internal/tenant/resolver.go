package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sdclabs/chatgate/internal/store"
)

// Resolver looks up tenant configuration with a Redis cache in front of the
// database. Cache entries are short-lived JSON copies; the database row is
// the source of truth.
type Resolver struct {
	repo  *Repo
	kv    store.Store
	ttl   time.Duration
	defTO time.Duration
}

func NewResolver(repo *Repo, kv store.Store, cacheTTL, defaultSessionTimeout time.Duration) *Resolver {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if defaultSessionTimeout <= 0 {
		defaultSessionTimeout = 30 * time.Minute
	}
	return &Resolver{repo: repo, kv: kv, ttl: cacheTTL, defTO: defaultSessionTimeout}
}

func configKey(tenantKey string) string { return "tenant_config:" + tenantKey }
func personaKey(tenantKey string) string { return "persona:" + tenantKey }

// Resolve returns a fresh Config for the tenant. Cache misses fall through to
// the database; cache write failures are logged and ignored, a lookup must
// never fail because the cache is cold.
func (r *Resolver) Resolve(ctx context.Context, tenantKey string) (*Config, error) {
	raw, err := r.kv.Get(ctx, configKey(tenantKey))
	if err == nil {
		var cfg Config
		if jsonErr := json.Unmarshal([]byte(raw), &cfg); jsonErr == nil {
			return &cfg, nil
		}
		// corrupt cache entry, fall through to the DB
	} else if errors.Is(err, store.ErrUnavailable) {
		log.Printf("tenant cache read failed for %s: %v", tenantKey, err)
	}

	t, err := r.repo.GetByKey(ctx, tenantKey)
	if err != nil {
		return nil, err
	}
	cfg := r.fromRow(t)

	if buf, err := json.Marshal(cfg); err == nil {
		if err := r.kv.Set(ctx, configKey(tenantKey), string(buf), r.ttl); err != nil {
			log.Printf("tenant cache write failed for %s: %v", tenantKey, err)
		}
	}
	return cfg, nil
}

// Invalidate drops the cached copy after an admin update.
func (r *Resolver) Invalidate(ctx context.Context, tenantKey string) error {
	return r.kv.Del(ctx, configKey(tenantKey))
}

func (r *Resolver) fromRow(t *Tenant) *Config {
	timeout := r.defTO
	if t.SessionTimeoutMinutes > 0 {
		timeout = time.Duration(t.SessionTimeoutMinutes) * time.Minute
	}
	return &Config{
		TenantKey:       t.TenantKey,
		MaxRequests:     t.MaxRequests,
		WindowSeconds:   t.WindowSeconds,
		MonthlyLimit:    t.MonthlyLimit,
		SessionTimeout:  timeout,
		Provider:        t.Provider,
		Model:           t.Model,
		SystemPrompt:    t.SystemPrompt,
		MaxChunks:       t.MaxChunks,
		FeedbackEnabled: t.FeedbackEnabled,
	}
}

// Persona is a dynamic prompt override kept in the counter store so it can be
// updated without a deploy or a tenants-table migration.
type Persona struct {
	Prompt    string `json:"prompt"`
	MaxChunks *int   `json:"max_chunks,omitempty"`
}

// ApplyPersona overlays any stored persona onto a copy of cfg. cfg itself is
// never mutated.
func (r *Resolver) ApplyPersona(ctx context.Context, cfg *Config) (*Config, error) {
	raw, err := r.kv.Get(ctx, personaKey(cfg.TenantKey))
	if errors.Is(err, store.ErrNotFound) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	var p Persona
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// legacy entries stored the bare prompt string
		p = Persona{Prompt: raw}
	}

	out := *cfg
	if prompt := strings.TrimSpace(p.Prompt); prompt != "" {
		out.SystemPrompt = prompt
	}
	if p.MaxChunks != nil && *p.MaxChunks > 0 {
		out.MaxChunks = *p.MaxChunks
	}
	return &out, nil
}

// SetPersona replaces the persona for a tenant.
func (r *Resolver) SetPersona(ctx context.Context, tenantKey string, p Persona) error {
	buf, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.kv.Set(ctx, personaKey(tenantKey), string(buf), 0)
}

// AppendPersona extends the stored prompt, creating the persona if absent.
func (r *Resolver) AppendPersona(ctx context.Context, tenantKey, extra string) error {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return fmt.Errorf("tenant: empty persona addition")
	}

	raw, err := r.kv.Get(ctx, personaKey(tenantKey))
	if errors.Is(err, store.ErrNotFound) {
		return r.SetPersona(ctx, tenantKey, Persona{Prompt: extra})
	}
	if err != nil {
		return err
	}

	var p Persona
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		p = Persona{Prompt: raw}
	}
	if strings.TrimSpace(p.Prompt) == "" {
		p.Prompt = extra
	} else {
		p.Prompt = strings.TrimSpace(p.Prompt) + "\n\n" + extra
	}
	return r.SetPersona(ctx, tenantKey, p)
}
