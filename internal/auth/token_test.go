package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Minute)

	token, err := issuer.Issue("user_1", "kirk", true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user_1" {
		t.Fatalf("expected subject user_1, got %q", claims.Subject)
	}
	if claims.Username != "kirk" || !claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected a token ID")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Minute).Issue("user_1", "kirk", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenIssuer("secret-b", time.Minute).Parse(token); err == nil {
		t.Fatal("expected parse to fail with a different secret")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := NewTokenIssuer("secret", -time.Minute).Issue("user_1", "kirk", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenIssuer("secret", -time.Minute).Parse(token); err == nil {
		t.Fatal("expected parse to fail for expired token")
	}
}

func TestRefreshTokenHashing(t *testing.T) {
	token, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}
	other, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens")
	}
	if HashToken(token) == token {
		t.Fatal("hash must differ from the token")
	}
	if HashToken(token) != HashToken(token) {
		t.Fatal("hash must be deterministic")
	}
}
