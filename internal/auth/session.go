package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// ErrCredentialExpired indicates the stored JWT is past its exp claim
var ErrCredentialExpired = errors.New("authentication token expired")

// Session is the client side of the auth collaborator: it hands out the bearer
// credential and performs the "invalidate + send to login" side effect.
type Session struct {
	creds    CredentialStore
	onReauth func(reason string)
	now      func() time.Time

	mu          sync.Mutex
	invalidated int
}

// NewSession wraps a credential store. onReauth is called after the credential
// has been cleared (the redirect-to-login hook); it may be nil.
func NewSession(creds CredentialStore, onReauth func(reason string)) *Session {
	return &Session{
		creds:    creds,
		onReauth: onReauth,
		now:      time.Now,
	}
}

// BearerToken returns the current credential. A missing token or a JWT whose
// exp has passed fails without touching the network.
func (s *Session) BearerToken() (string, error) {
	token, err := s.creds.Token()
	if err != nil {
		return "", err
	}
	if exp, ok := tokenExpiry(token); ok && !s.now().Before(exp) {
		return "", ErrCredentialExpired
	}
	return token, nil
}

// Invalidate clears the stored credential and fires the re-login hook
func (s *Session) Invalidate(reason string) {
	if err := s.creds.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear credential")
	}

	s.mu.Lock()
	s.invalidated++
	s.mu.Unlock()

	log.Warn().Str("reason", reason).Msg("session invalidated - re-authentication required")

	if s.onReauth != nil {
		s.onReauth(reason)
	}
}

// Invalidations reports how many times Invalidate was called
func (s *Session) Invalidations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

// Login stores a new credential
func (s *Session) Login(token string) error {
	if token == "" {
		return ErrNoCredential
	}
	if exp, ok := tokenExpiry(token); ok && !s.now().Before(exp) {
		return ErrCredentialExpired
	}
	if err := s.creds.Store(token); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the API
// remains the authority on validity. Opaque tokens report ok=false.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
