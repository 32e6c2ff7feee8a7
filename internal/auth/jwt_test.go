package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

	tok, err := CreateToken("amy@example.com", "amy", cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	claims, err := VerifyToken(tok, cfg)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Email != "amy@example.com" {
		t.Fatalf("expected email subject, got %q", claims.Email)
	}
	if claims.Username != "amy" {
		t.Fatalf("expected username claim, got %q", claims.Username)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	tok, err := CreateToken("amy@example.com", "amy", cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	if _, err := VerifyToken(tok, TokenConfig{Secret: "other"}); err == nil {
		t.Fatal("expected verification failure with wrong secret")
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: -time.Minute, Issuer: "test"}
	tok, err := CreateToken("amy@example.com", "amy", TokenConfig{Secret: "secret", Expiry: time.Nanosecond, Issuer: "test"})
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := VerifyToken(tok, cfg); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestCreateTokenValidatesInput(t *testing.T) {
	if _, err := CreateToken("", "amy", DefaultTokenConfig("s")); err == nil {
		t.Fatal("expected error for missing email")
	}
	if _, err := CreateToken("a@b.c", "", DefaultTokenConfig("s")); err == nil {
		t.Fatal("expected error for missing username")
	}
	if _, err := CreateToken("a@b.c", "amy", TokenConfig{}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
