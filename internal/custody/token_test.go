package custody

import (
	"errors"
	"testing"
	"time"

	"medwaste-backend/internal/apperr"
)

func TestTokenIssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, exp, err := issuer.Issue("handoff-1", t0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expiry = %v, want %v", exp, t0.Add(time.Hour))
	}

	id, err := issuer.Parse(token, t0.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id != "handoff-1" {
		t.Fatalf("handoff id = %q, want handoff-1", id)
	}
}

func TestTokensAreDistinct(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	a, _, err := issuer.Issue("handoff-1", t0)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := issuer.Issue("handoff-1", t0)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected regenerated token to differ")
	}
}

func TestParseExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	token, _, err := issuer.Issue("handoff-1", t0)
	if err != nil {
		t.Fatal(err)
	}

	id, err := issuer.Parse(token, t0.Add(2*time.Hour))
	if !errors.Is(err, apperr.ErrTokenExpired) {
		t.Fatalf("err = %v, want token expired", err)
	}
	if id != "handoff-1" {
		t.Fatalf("handoff id = %q, want handoff-1 alongside the expiry", id)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	token, _, err := NewTokenIssuer("other-secret", time.Hour).Issue("handoff-1", t0)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewTokenIssuer("test-secret", time.Hour).Parse(token, t0)
	if !errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrTokenExpired) {
		t.Fatalf("err = %v, want invalid token validation error", err)
	}
}
