package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashTokenWithCost(t *testing.T) {
	hash, err := HashTokenWithCost("dashboard-secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashTokenWithCost() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Errorf("hash should be bcrypt format, got %q", hash)
	}
	if !IsValidHash(hash) {
		t.Error("IsValidHash() = false for generated hash")
	}

	if _, err := HashTokenWithCost("", bcrypt.MinCost); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("empty token error = %v, want ErrEmptyToken", err)
	}
	if _, err := HashTokenWithCost("x", 99); err == nil {
		t.Error("cost 99 should be rejected")
	}
}

func TestVerifyToken(t *testing.T) {
	hash, err := HashTokenWithCost("dashboard-secret", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
		hash  string
		want  error
	}{
		{"match", "dashboard-secret", hash, nil},
		{"mismatch", "guess", hash, ErrTokenMismatch},
		{"empty token", "", hash, ErrEmptyToken},
		{"empty hash", "dashboard-secret", "", ErrInvalidHash},
		{"malformed hash", "dashboard-secret", "not-a-hash", ErrTokenMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyToken(tt.token, tt.hash); !errors.Is(err, tt.want) {
				t.Errorf("VerifyToken() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIsValidHash(t *testing.T) {
	if IsValidHash("plaintext") {
		t.Error("IsValidHash(plaintext) = true")
	}
	if IsValidHash("") {
		t.Error("IsValidHash(\"\") = true")
	}
}
