package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/custody/internal/address"
)

func TestIssueAndParse(t *testing.T) {
	svc, err := NewService("secret", time.Minute, "custody")
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	token, err := svc.Issue(address.TokenProgram)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.ExpiresIn != 60 {
		t.Fatalf("expected 60s expiry, got %d", token.ExpiresIn)
	}
	subject, err := svc.Parse(token.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if subject != address.TokenProgram {
		t.Fatalf("expected %s got %s", address.TokenProgram, subject)
	}
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	svc, _ := NewService("secret", time.Minute, "custody")
	other, _ := NewService("other-secret", time.Minute, "custody")

	foreign, err := other.Issue(address.TokenProgram)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Parse(foreign.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign signature, got %v", err)
	}

	token, err := svc.Issue(address.TokenProgram)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.Parse(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token after expiry, got %v", err)
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService("", time.Minute, "custody"); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewService("secret", 0, "custody"); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
