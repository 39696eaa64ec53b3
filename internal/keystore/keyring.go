package keystore

import (
	"errors"
	"fmt"

	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keyring"
)

// Keyring stores key entries in the OS keyring, one secret per alias
type Keyring struct {
	ring keyring.Ring
}

// NewKeyring returns a store filing entries under the given keyring service
func NewKeyring(service string) *Keyring {
	return &Keyring{ring: keyring.New(service)}
}

func (k *Keyring) Name() string { return "keyring" }

func (k *Keyring) HasEntry(alias string) (bool, error) {
	ok, err := k.ring.Has(alias)
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// CreateEntry writes a new entry when alias has none. The OS keyring has no
// compare-and-set, so two processes racing on a fresh alias may both write;
// the later write wins and the entry is read back afterwards.
func (k *Keyring) CreateEntry(alias string, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}

	exists, err := k.HasEntry(alias)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	data, err := generateEntry(alias, params)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(data)

	if err := k.ring.Set(alias, string(data)); err != nil {
		return unavailable(fmt.Errorf("failed to store key %q: %w", alias, err))
	}
	return nil
}

func (k *Keyring) GetKey(alias string) (*Key, error) {
	secret, err := k.ring.Get(alias)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return decodeEntry(alias, []byte(secret))
}
