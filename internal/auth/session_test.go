package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zalando/go-keyring"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "42",
		"role": "admin",
		"exp":  exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func TestSession_BearerToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "missing", token: "", wantErr: ErrNoCredential},
		{name: "valid jwt", token: signedToken(t, now.Add(time.Hour))},
		{name: "expired jwt", token: signedToken(t, now.Add(-time.Minute)), wantErr: ErrCredentialExpired},
		{name: "opaque token", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(NewMemoryStore(tt.token), nil)
			s.now = func() time.Time { return now }

			got, err := s.BearerToken()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.token {
				t.Errorf("token = %q, want %q", got, tt.token)
			}
		})
	}
}

func TestSession_Invalidate(t *testing.T) {
	store := NewMemoryStore("tok")
	var reasons []string
	s := NewSession(store, func(reason string) { reasons = append(reasons, reason) })

	s.Invalidate("401 from /api/properties")

	if _, err := store.Token(); !errors.Is(err, ErrNoCredential) {
		t.Errorf("credential should be cleared, got err=%v", err)
	}
	if len(reasons) != 1 || reasons[0] != "401 from /api/properties" {
		t.Errorf("unexpected reauth calls: %v", reasons)
	}
	if s.Invalidations() != 1 {
		t.Errorf("Invalidations = %d, want 1", s.Invalidations())
	}
}

func TestSession_LoginRejectsExpired(t *testing.T) {
	s := NewSession(NewMemoryStore(""), nil)
	if err := s.Login(signedToken(t, time.Now().Add(-time.Hour))); !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
	if err := s.Login(""); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store := NewKeyringStore("http://localhost:5000")

	if _, err := store.Token(); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential on empty keyring, got %v", err)
	}
	if err := store.Store("abc"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := store.Token()
	if err != nil || got != "abc" {
		t.Fatalf("Token = %q, %v", got, err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	// Clearing twice is fine
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{" Landlord ", RoleLandlord, true},
		{"agent", RoleAgent, true},
		{"tenant", RoleTenant, true},
		{"superuser", Role("superuser"), false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
