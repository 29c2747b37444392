package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("A")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.MemberID != "A" || claims.Subject != "A" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"garbage", func(*testing.T) string { return "not-a-token" }},
		{"other secret", func(t *testing.T) string {
			token, err := NewJWTManager("other", time.Hour).Generate("A")
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			return token
		}},
		{"expired", func(t *testing.T) string {
			token, err := NewJWTManager("test-secret", -time.Minute).Generate("A")
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			return token
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Validate(tt.token(t)); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	if _, err := m.Generate(""); err == nil {
		t.Error("expected error for empty member id")
	}
}
