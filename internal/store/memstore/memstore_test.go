package memstore

import (
	"context"
	"sort"
	"testing"

	"github.com/sdclabs/chatgate/internal/store"
)

func TestKeysPrefixScanKeepsGlobMetacharacters(t *testing.T) {
	kv := New()
	ctx := context.Background()

	// model names may carry glob metacharacters; a prefix scan must still
	// return them
	keys := []string{
		"token_usage:acme:model:llama3:latest",
		"token_usage:acme:model:gguf[q4_K_M]",
		"token_usage:acme:model:mix?ral",
	}
	for _, k := range keys {
		if err := kv.Set(ctx, k, "1", store.NoTTL); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := kv.Set(ctx, "token_usage:other:model:llama3:latest", "1", store.NoTTL); err != nil {
		t.Fatalf("set other tenant: %v", err)
	}

	got, err := kv.Keys(ctx, "token_usage:acme:model:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	sort.Strings(got)
	want := append([]string(nil), keys...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("want %d keys, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key %d: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestKeysMalformedPatternSurfacesError(t *testing.T) {
	kv := New()
	ctx := context.Background()

	if err := kv.Set(ctx, "feedback_stream:acme", "1", store.NoTTL); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := kv.Keys(ctx, "feedback_stream:["); err == nil {
		t.Fatalf("want error for malformed pattern, got nil")
	}
}
