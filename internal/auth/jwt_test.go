package auth

import (
	"errors"
	"testing"
	"time"

	"parley/internal/core"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m, err := NewManager("secret", "parley", time.Hour)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	uid, err := m.VerifyAt(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if uid != "user-1" {
		t.Fatalf("uid = %q, want user-1", uid)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager("secret", "parley", time.Minute)
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.VerifyAt(tok, now.Add(2*time.Hour)); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1, _ := NewManager("secret-a", "", time.Hour)
	m2, _ := NewManager("secret-b", "", time.Hour)

	now := time.Now()
	tok, err := m1.Issue(now, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m2.VerifyAt(tok, now); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestVerifySessionRejectsEmptyToken(t *testing.T) {
	m, _ := NewManager("secret", "", time.Hour)
	if _, err := m.VerifySession(""); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager("", "", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
