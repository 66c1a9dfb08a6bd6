package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "com.propsync.client"
)

// ErrNoCredential indicates no bearer token is stored
var ErrNoCredential = errors.New("no authentication token found")

// CredentialStore owns the bearer credential
type CredentialStore interface {
	Token() (string, error)
	Store(token string) error
	Clear() error
}

// KeyringStore keeps the bearer token in the OS keychain, one entry per API base URL
type KeyringStore struct {
	account string
}

// NewKeyringStore creates a keychain-backed credential store for the given API
func NewKeyringStore(apiBaseURL string) *KeyringStore {
	return &KeyringStore{account: fmt.Sprintf("token:%s", apiBaseURL)}
}

// Token returns the stored token or ErrNoCredential
func (k *KeyringStore) Token() (string, error) {
	token, err := keyring.Get(keyringService, k.account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoCredential
	}
	if err != nil {
		log.Debug().
			Err(err).
			Str("account", k.account).
			Msg("failed to get token from keyring")
		return "", err
	}
	return token, nil
}

// Store saves the token in the keychain
func (k *KeyringStore) Store(token string) error {
	if err := keyring.Set(keyringService, k.account, token); err != nil {
		log.Debug().
			Err(err).
			Str("account", k.account).
			Msg("keyring not available")
		return err
	}

	log.Debug().
		Str("account", k.account).
		Msg("token stored in keyring")

	return nil
}

// Clear removes the token. A missing entry is not an error.
func (k *KeyringStore) Clear() error {
	if err := keyring.Delete(keyringService, k.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Debug().
			Err(err).
			Str("account", k.account).
			Msg("failed to delete token from keyring")
		return err
	}

	log.Debug().
		Str("account", k.account).
		Msg("token deleted from keyring")

	return nil
}

// MemoryStore holds the token for the lifetime of the process
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore creates a store, optionally pre-populated
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoCredential
	}
	return m.token, nil
}

func (m *MemoryStore) Store(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
