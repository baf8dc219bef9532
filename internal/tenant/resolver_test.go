package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/sdclabs/chatgate/internal/store/memstore"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Tenant{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedTenant(t *testing.T, repo *Repo, key string) *Tenant {
	t.Helper()
	row := &Tenant{
		TenantKey:     key,
		Name:          "Acme Corp",
		APIKeyHash:    "$2a$10$notchecked",
		MaxRequests:   20,
		WindowSeconds: 60,
		MonthlyLimit:  1000,
		Model:         "gpt-3.5-turbo",
		Provider:      "ollama",
		SystemPrompt:  "You are a helpful assistant.",
		MaxChunks:     3,
	}
	if err := repo.Create(context.Background(), row); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return row
}

func TestRepo_GetByKey(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedTenant(t, repo, "acme-repo")

	got, err := repo.GetByKey(context.Background(), "acme-repo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Acme Corp" || got.MaxRequests != 20 {
		t.Fatalf("unexpected row: %+v", got)
	}

	if _, err := repo.GetByKey(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResolver_ResolveCachesConfig(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedTenant(t, repo, "acme-cache")

	kv := memstore.New()
	r := NewResolver(repo, kv, 5*time.Minute, 30*time.Minute)
	ctx := context.Background()

	cfg, err := r.Resolve(ctx, "acme-cache")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.MonthlyLimit != 1000 || cfg.SessionTimeout != 30*time.Minute {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	// second resolve is served from the cache
	if _, err := kv.Get(ctx, "tenant_config:acme-cache"); err != nil {
		t.Fatalf("expected cached entry: %v", err)
	}
	cfg2, err := r.Resolve(ctx, "acme-cache")
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if *cfg2 != *cfg {
		t.Fatalf("cached config differs: %+v vs %+v", cfg2, cfg)
	}
}

func TestResolver_UnknownTenant(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	r := NewResolver(repo, memstore.New(), time.Minute, 30*time.Minute)

	if _, err := r.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestResolver_SessionTimeoutOverride(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	row := seedTenant(t, repo, "acme-timeout")
	row.SessionTimeoutMinutes = 10
	if err := repo.Update(context.Background(), row); err != nil {
		t.Fatalf("update: %v", err)
	}

	r := NewResolver(repo, memstore.New(), time.Minute, 30*time.Minute)
	cfg, err := r.Resolve(context.Background(), "acme-timeout")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.SessionTimeout != 10*time.Minute {
		t.Fatalf("session timeout: want 10m, got %v", cfg.SessionTimeout)
	}
}

func TestApplyPersona_OverlaysCopy(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedTenant(t, repo, "acme-persona")

	kv := memstore.New()
	r := NewResolver(repo, kv, time.Minute, 30*time.Minute)
	ctx := context.Background()

	cfg, err := r.Resolve(ctx, "acme-persona")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// no persona stored: same config comes back
	same, err := r.ApplyPersona(ctx, cfg)
	if err != nil {
		t.Fatalf("apply persona (none): %v", err)
	}
	if same.SystemPrompt != cfg.SystemPrompt {
		t.Fatalf("persona-less apply changed the prompt")
	}

	chunks := 7
	if err := r.SetPersona(ctx, "acme-persona", Persona{Prompt: "Speak like a pirate.", MaxChunks: &chunks}); err != nil {
		t.Fatalf("set persona: %v", err)
	}

	overlaid, err := r.ApplyPersona(ctx, cfg)
	if err != nil {
		t.Fatalf("apply persona: %v", err)
	}
	if overlaid.SystemPrompt != "Speak like a pirate." || overlaid.MaxChunks != 7 {
		t.Fatalf("override not applied: %+v", overlaid)
	}
	// the original request-scoped config must stay untouched
	if cfg.SystemPrompt != "You are a helpful assistant." || cfg.MaxChunks != 3 {
		t.Fatalf("ApplyPersona mutated its input: %+v", cfg)
	}
}

func TestAppendPersona_ExtendsPrompt(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	seedTenant(t, repo, "acme-append")

	kv := memstore.New()
	r := NewResolver(repo, kv, time.Minute, 30*time.Minute)
	ctx := context.Background()

	if err := r.AppendPersona(ctx, "acme-append", "Rule one."); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := r.AppendPersona(ctx, "acme-append", "Rule two."); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	cfg, err := r.Resolve(ctx, "acme-append")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	out, err := r.ApplyPersona(ctx, cfg)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.SystemPrompt != "Rule one.\n\nRule two." {
		t.Fatalf("unexpected prompt: %q", out.SystemPrompt)
	}
}
