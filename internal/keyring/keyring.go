// Package keyring wraps the OS keyring (macOS Keychain, Secret Service,
// Windows Credential Manager) behind a service-scoped handle.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service cipherstore entries are filed under
const DefaultService = "cipherstore"

const passphrasePrefix = "passphrase:"

// ErrNotFound is returned when no secret exists for the requested user
var ErrNotFound = keyring.ErrNotFound

// Ring is a handle to one keyring service
type Ring struct {
	service string
}

// New returns a handle for service, falling back to DefaultService
func New(service string) Ring {
	if service == "" {
		service = DefaultService
	}
	return Ring{service: service}
}

// Service returns the keyring service name
func (r Ring) Service() string {
	return r.service
}

// Set stores a secret in the OS keyring
func (r Ring) Set(user, secret string) error {
	return keyring.Set(r.service, user, secret)
}

// Get retrieves a secret from the OS keyring
func (r Ring) Get(user string) (string, error) {
	return keyring.Get(r.service, user)
}

// Delete removes a secret from the OS keyring
func (r Ring) Delete(user string) error {
	return keyring.Delete(r.service, user)
}

// Has checks whether a secret is stored for user.
// Errors other than ErrNotFound are returned so callers can tell
// a missing entry from an unreachable keyring.
func (r Ring) Has(user string) (bool, error) {
	_, err := keyring.Get(r.service, user)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, keyring.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// SavePassphrase stores the file keystore passphrase for a store
func (r Ring) SavePassphrase(storeID string, passphrase []byte) error {
	return r.Set(passphrasePrefix+storeID, string(passphrase))
}

// GetPassphrase retrieves the file keystore passphrase for a store
func (r Ring) GetPassphrase(storeID string) ([]byte, error) {
	p, err := r.Get(passphrasePrefix + storeID)
	if err != nil {
		return nil, err
	}
	return []byte(p), nil
}

// DeletePassphrase removes the file keystore passphrase for a store
func (r Ring) DeletePassphrase(storeID string) error {
	return r.Delete(passphrasePrefix + storeID)
}

// HasPassphrase checks if a passphrase is stored for a store
func (r Ring) HasPassphrase(storeID string) bool {
	ok, err := r.Has(passphrasePrefix + storeID)
	return err == nil && ok
}
