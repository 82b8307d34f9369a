package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateValidate_RoundTrip(t *testing.T) {
	m := NewManager([]byte("test-secret"), "support-chat", time.Hour)

	token, err := m.Generate("u1", "Alice", "user")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("claims.UserID = %q, want %q", claims.UserID, "u1")
	}
	if claims.Name != "Alice" {
		t.Fatalf("claims.Name = %q, want %q", claims.Name, "Alice")
	}
	if claims.Role != "user" {
		t.Fatalf("claims.Role = %q, want %q", claims.Role, "user")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	m1 := NewManager([]byte("secret-a"), "support-chat", time.Hour)
	m2 := NewManager([]byte("secret-b"), "support-chat", time.Hour)

	token, err := m1.Generate("u1", "Alice", "user")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := m2.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	m := NewManager([]byte("test-secret"), "support-chat", -time.Minute)

	token, err := m.Generate("u1", "Alice", "user")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := m.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Validate() error = %v, want ErrExpiredToken", err)
	}
}
