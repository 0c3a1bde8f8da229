package auth

import (
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(testSigningKey, 60*time.Minute)
	issuer.now = func() time.Time { return time.Now() }

	token, exp, err := issuer.Issue("ravi@clinic.test", RoleStaff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp.Before(time.Now().Add(59 * time.Minute)) {
		t.Errorf("expected expiry about an hour out, got %s", exp)
	}

	claims, err := ParseToken(token, testSigningKey)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ravi@clinic.test" {
		t.Errorf("expected sub ravi@clinic.test, got %s", claims.Subject)
	}
	if claims.Role != RoleStaff {
		t.Errorf("expected role Staff, got %s", claims.Role)
	}

	issuer.now = func() time.Time { return fixed }
	_, exp, err = issuer.Issue("ravi@clinic.test", RoleStaff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exp.Equal(fixed.Add(time.Hour)) {
		t.Errorf("expected exp %s, got %s", fixed.Add(time.Hour), exp)
	}
}

func TestParseToken_ExpiredFromIssuer(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := issuer.Issue("ravi@clinic.test", RoleStaff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseToken(token, testSigningKey); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
