package main

import (
	"context"
	"log"
	"strings"

	"github.com/sdclabs/chatgate/internal/admission"
	"github.com/sdclabs/chatgate/internal/ai"
	"github.com/sdclabs/chatgate/internal/config"
	"github.com/sdclabs/chatgate/internal/db"
	"github.com/sdclabs/chatgate/internal/feedback"
	"github.com/sdclabs/chatgate/internal/httpapi"
	"github.com/sdclabs/chatgate/internal/httpapi/handlers"
	"github.com/sdclabs/chatgate/internal/ratelimit"
	"github.com/sdclabs/chatgate/internal/session"
	"github.com/sdclabs/chatgate/internal/store"
	"github.com/sdclabs/chatgate/internal/store/memstore"
	"github.com/sdclabs/chatgate/internal/store/redisstore"
	"github.com/sdclabs/chatgate/internal/tenant"
	"github.com/sdclabs/chatgate/internal/usage"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	var kv store.Store
	if cfg.UseMemoryStore {
		log.Printf("using in-memory counter store (single replica only)")
		kv = memstore.New()
	} else {
		rds, err := redisstore.New(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis connect: %v", err)
		}
		defer rds.Close()
		kv = rds
	}

	repo := tenant.NewRepo(gdb)
	resolver := tenant.NewResolver(repo, kv, cfg.TenantCacheTTL, cfg.DefaultSessionTimeout)

	limiter := ratelimit.New(kv)
	tracker := usage.New(kv)
	sessions := session.NewManager(kv)
	ctrl := admission.NewController(limiter, tracker, sessions)
	ledger := feedback.NewLedger(kv)

	reg := ai.NewRegistry()
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.AIDefaultModel
		}
		return ai.NewOllamaProvider(cfg.AIBaseURL, m), nil
	})

	h := handlers.NewHandler(cfg, repo, resolver, ctrl, sessions, ledger, tracker, reg)
	r := httpapi.NewRouter(h)

	addr := ":" + cfg.ServerPort
	log.Printf("listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
