package auth

import (
	"errors"
	"testing"
	"time"

	"liveclass-backend/internal/model"
)

func TestVerifyRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	token, err := m.GenerateAccessToken(42, model.RoleTeacher, "Ms. Kim")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	id, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if id.UserID != 42 {
		t.Errorf("expected userID 42, got %d", id.UserID)
	}
	if id.Role != model.RoleTeacher {
		t.Errorf("expected role %s, got %s", model.RoleTeacher, id.Role)
	}
	if id.DisplayName != "Ms. Kim" {
		t.Errorf("expected display name 'Ms. Kim', got %q", id.DisplayName)
	}
}

func TestVerifyEmptyCredential(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	if _, err := m.Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	if _, err := m.Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, 24*time.Hour)

	token, err := m.GenerateAccessToken(1, model.RoleStudent, "student")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", 15*time.Minute, 24*time.Hour)
	verifier := NewJWTManager("secret-b", 15*time.Minute, 24*time.Hour)

	token, err := issuer.GenerateAccessToken(1, model.RoleStudent, "student")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyUnknownRole(t *testing.T) {
	m := NewJWTManager("test-secret", 15*time.Minute, 24*time.Hour)

	token, err := m.GenerateAccessToken(1, model.Role("JANITOR"), "someone")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := m.Verify(token); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
