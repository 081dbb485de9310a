package utils

import (
	"strings"
	"testing"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", "4f0c2d8e-7c1e-4a53-9d8b-2f8f7e1c0a11", 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	sub, err := ParseAccessToken("secret", tok.Token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if sub != "4f0c2d8e-7c1e-4a53-9d8b-2f8f7e1c0a11" {
		t.Fatalf("subject = %q", sub)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, err := NewAccessToken("secret", "abc", 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	expired, err := NewAccessToken("secret", "abc", -5)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	tests := map[string]string{
		"wrong secret": good.Token,
		"expired":      expired.Token,
		"garbage":      "not-a-jwt",
	}
	for name, raw := range tests {
		secret := "secret"
		if name == "wrong secret" {
			secret = "other"
		}
		if _, err := ParseAccessToken(secret, raw); err != ErrInvalidToken {
			t.Fatalf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestRefreshTokens(t *testing.T) {
	a, err := NewRefreshToken(30)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	b, _ := NewRefreshToken(30)
	if len(a.Raw) != 96 || a.Raw == b.Raw {
		t.Fatalf("unexpected refresh tokens %q %q", a.Raw, b.Raw)
	}
	h := HashRefreshRaw(a.Raw)
	if len(h) != 64 || h != HashRefreshRaw(a.Raw) || strings.Contains(h, a.Raw) {
		t.Fatalf("unexpected hash %q", h)
	}
}

func TestPasswords(t *testing.T) {
	if err := CheckPasswordStrength("short"); err != ErrWeakPassword {
		t.Fatalf("short password accepted: %v", err)
	}
	if err := CheckPasswordStrength("long enough"); err != nil {
		t.Fatalf("valid password rejected: %v", err)
	}
	hash, err := HashPassword("long enough", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "long enough") || VerifyPassword(hash, "wrong one") {
		t.Fatal("VerifyPassword mismatch")
	}
}
