package auth

import (
	"testing"
	"time"
)

func TestAPIKeyHashRoundTrip(t *testing.T) {
	hash, err := HashAPIKey("sk-test-123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckAPIKey(hash, "sk-test-123") {
		t.Fatalf("correct key rejected")
	}
	if CheckAPIKey(hash, "sk-test-124") {
		t.Fatalf("wrong key accepted")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("acme", "secret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.TenantKey != "acme" {
		t.Fatalf("tenant key: want acme, got %q", claims.TenantKey)
	}

	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}
}

func TestJWTExpiry(t *testing.T) {
	token, err := SignJWT("acme", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseJWT(token, "secret"); err == nil {
		t.Fatalf("expired token accepted")
	}
}
