package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/sdclabs/chatgate/internal/admission"
	"github.com/sdclabs/chatgate/internal/ai"
	"github.com/sdclabs/chatgate/internal/auth"
	"github.com/sdclabs/chatgate/internal/config"
	"github.com/sdclabs/chatgate/internal/feedback"
	"github.com/sdclabs/chatgate/internal/httpapi/handlers"
	"github.com/sdclabs/chatgate/internal/ratelimit"
	"github.com/sdclabs/chatgate/internal/session"
	"github.com/sdclabs/chatgate/internal/store/memstore"
	"github.com/sdclabs/chatgate/internal/tenant"
	"github.com/sdclabs/chatgate/internal/usage"
)

type fakeProvider struct{}

func (fakeProvider) Chat(_ context.Context, msgs []ai.Message) (*ai.Result, error) {
	last := msgs[len(msgs)-1]
	return &ai.Result{
		Answer:     "echo: " + last.Content,
		TokensUsed: 42,
		Model:      "fake-1",
	}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, maxRequests int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// one named in-memory DB per test, so every test seeds the same tenant key
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&tenant.Tenant{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	hash, err := auth.HashAPIKey("sk-acme-test")
	if err != nil {
		t.Fatalf("hash api key: %v", err)
	}
	repo := tenant.NewRepo(db)
	row := &tenant.Tenant{
		TenantKey:       "acme",
		Name:            "Acme Corp",
		APIKeyHash:      hash,
		MaxRequests:     maxRequests,
		WindowSeconds:   60,
		MonthlyLimit:    1000,
		Provider:        "fake",
		Model:           "fake-1",
		SystemPrompt:    "You are a helpful assistant.",
		MaxChunks:       3,
		FeedbackEnabled: true,
	}
	if err := repo.Create(context.Background(), row); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	cfg := config.Config{
		JWTSecret:             "test-secret",
		DefaultSessionTimeout: 30 * time.Minute,
		TenantCacheTTL:        5 * time.Minute,
	}

	kv := memstore.New()
	resolver := tenant.NewResolver(repo, kv, cfg.TenantCacheTTL, cfg.DefaultSessionTimeout)
	tracker := usage.New(kv)
	sessions := session.NewManager(kv)
	ctrl := admission.NewController(ratelimit.New(kv), tracker, sessions)
	ledger := feedback.NewLedger(kv)

	reg := ai.NewRegistry()
	reg.Register("fake", func(_ context.Context, _ string) (ai.Provider, error) {
		return fakeProvider{}, nil
	})

	h := handlers.NewHandler(cfg, repo, resolver, ctrl, sessions, ledger, tracker, reg)
	return NewRouter(h)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope (%s %s): %v body=%s", method, path, err, w.Body.String())
	}
	return w.Code, env
}

func issueToken(t *testing.T, r *gin.Engine) string {
	t.Helper()
	status, env := doJSON(t, r, http.MethodPost, "/auth/token", "", gin.H{
		"tenant_key": "acme",
		"api_key":    "sk-acme-test",
	})
	if status != http.StatusOK {
		t.Fatalf("token exchange: status=%d code=%d msg=%s", status, env.Code, env.Message)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("no token in response: %s", env.Data)
	}
	return data.Token
}

func TestTokenExchangeRejectsBadKey(t *testing.T) {
	r := setupRouter(t, 20)

	status, env := doJSON(t, r, http.MethodPost, "/auth/token", "", gin.H{
		"tenant_key": "acme",
		"api_key":    "wrong",
	})
	if status != http.StatusUnauthorized || env.Code != 40110 {
		t.Fatalf("want 401/40110, got %d/%d", status, env.Code)
	}

	// unknown tenant gets the identical reply
	status, env = doJSON(t, r, http.MethodPost, "/auth/token", "", gin.H{
		"tenant_key": "nobody",
		"api_key":    "wrong",
	})
	if status != http.StatusUnauthorized || env.Code != 40110 {
		t.Fatalf("want 401/40110 for unknown tenant, got %d/%d", status, env.Code)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	r := setupRouter(t, 20)

	status, _ := doJSON(t, r, http.MethodPost, "/chat", "", gin.H{"question": "hi"})
	if status != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", status)
	}
}

func TestChatFlow(t *testing.T) {
	r := setupRouter(t, 20)
	token := issueToken(t, r)

	status, env := doJSON(t, r, http.MethodPost, "/chat", token, gin.H{"question": "hello"})
	if status != http.StatusOK {
		t.Fatalf("first chat: status=%d code=%d msg=%s", status, env.Code, env.Message)
	}
	var resp struct {
		Answer     string `json:"answer"`
		MessageID  string `json:"message_id"`
		SessionID  string `json:"session_id"`
		NewSession bool   `json:"new_session"`
		TokensUsed int64  `json:"tokens_used"`
		Model      string `json:"model"`
	}
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode chat data: %v", err)
	}
	if resp.Answer != "echo: hello" || !resp.NewSession || resp.SessionID == "" || resp.MessageID == "" {
		t.Fatalf("unexpected first reply: %+v", resp)
	}
	if resp.TokensUsed != 42 || resp.Model != "fake-1" {
		t.Fatalf("unexpected accounting fields: %+v", resp)
	}

	// second turn on the same session continues it and sees the memory
	status, env = doJSON(t, r, http.MethodPost, "/chat", token, gin.H{
		"session_id": resp.SessionID,
		"question":   "again",
	})
	if status != http.StatusOK {
		t.Fatalf("second chat: status=%d code=%d", status, env.Code)
	}
	var resp2 struct {
		SessionID  string `json:"session_id"`
		NewSession bool   `json:"new_session"`
	}
	if err := json.Unmarshal(env.Data, &resp2); err != nil {
		t.Fatalf("decode second chat: %v", err)
	}
	if resp2.NewSession || resp2.SessionID != resp.SessionID {
		t.Fatalf("second turn should continue the session: %+v", resp2)
	}

	status, env = doJSON(t, r, http.MethodGet, "/chat/"+resp.SessionID+"/history", token, nil)
	if status != http.StatusOK {
		t.Fatalf("history: status=%d code=%d", status, env.Code)
	}
	var hist struct {
		Messages []session.Message `json:"messages"`
	}
	if err := json.Unmarshal(env.Data, &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Messages) != 4 {
		t.Fatalf("want 4 stored messages (2 turns), got %d", len(hist.Messages))
	}
	if hist.Messages[0].Role != session.RoleUser || hist.Messages[1].Role != session.RoleAssistant {
		t.Fatalf("unexpected turn order: %+v", hist.Messages)
	}
}

func TestChatUnknownTenant(t *testing.T) {
	r := setupRouter(t, 20)

	// valid signature, but no such tenant row exists
	token, err := auth.SignJWT("ghost", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}

	status, env := doJSON(t, r, http.MethodPost, "/chat", token, gin.H{"question": "hi"})
	if status != http.StatusNotFound || env.Code != 40402 {
		t.Fatalf("want 404/40402 for unknown tenant, got %d/%d", status, env.Code)
	}

	status, env = doJSON(t, r, http.MethodPost, "/feedback", token, gin.H{
		"message_id": "m1", "user_id": "u1", "vote": "up",
	})
	if status != http.StatusNotFound || env.Code != 40402 {
		t.Fatalf("want 404/40402 for unknown tenant feedback, got %d/%d", status, env.Code)
	}
}

func TestChatRateLimited(t *testing.T) {
	r := setupRouter(t, 2)
	token := issueToken(t, r)

	for i := 0; i < 2; i++ {
		status, env := doJSON(t, r, http.MethodPost, "/chat", token, gin.H{
			"question": fmt.Sprintf("q%d", i),
		})
		if status != http.StatusOK {
			t.Fatalf("chat %d: status=%d code=%d", i, status, env.Code)
		}
	}

	status, env := doJSON(t, r, http.MethodPost, "/chat", token, gin.H{"question": "one too many"})
	if status != http.StatusTooManyRequests || env.Code != 42901 {
		t.Fatalf("want 429/42901, got %d/%d", status, env.Code)
	}
}

func TestFeedbackIdempotent(t *testing.T) {
	r := setupRouter(t, 20)
	token := issueToken(t, r)

	body := gin.H{"message_id": "msg-1", "user_id": "u1", "vote": "up"}

	status, env := doJSON(t, r, http.MethodPost, "/feedback", token, body)
	if status != http.StatusOK {
		t.Fatalf("first vote: status=%d code=%d", status, env.Code)
	}
	var data struct {
		Recorded bool `json:"recorded"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || !data.Recorded {
		t.Fatalf("first vote should record: %s", env.Data)
	}

	status, env = doJSON(t, r, http.MethodPost, "/feedback", token, body)
	if status != http.StatusOK {
		t.Fatalf("duplicate vote: status=%d code=%d", status, env.Code)
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Recorded {
		t.Fatalf("duplicate vote must not record: %s", env.Data)
	}

	status, env = doJSON(t, r, http.MethodPost, "/feedback", token, gin.H{
		"message_id": "msg-1", "user_id": "u1", "vote": "sideways",
	})
	if status != http.StatusBadRequest || env.Code != 10003 {
		t.Fatalf("want 400/10003 for bad vote, got %d/%d", status, env.Code)
	}
}

func TestUsageEndpoint(t *testing.T) {
	r := setupRouter(t, 20)
	token := issueToken(t, r)

	if status, env := doJSON(t, r, http.MethodPost, "/chat", token, gin.H{"question": "hi"}); status != http.StatusOK {
		t.Fatalf("chat: status=%d code=%d", status, env.Code)
	}

	status, env := doJSON(t, r, http.MethodGet, "/usage", token, nil)
	if status != http.StatusOK {
		t.Fatalf("usage: status=%d code=%d", status, env.Code)
	}
	var rep usage.Report
	if err := json.Unmarshal(env.Data, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.QuotaUsed != 1 {
		t.Fatalf("want quota_used=1, got %d", rep.QuotaUsed)
	}
	if rep.TotalTokens != 42 {
		t.Fatalf("want total_tokens=42, got %d", rep.TotalTokens)
	}
}
