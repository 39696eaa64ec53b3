package keystore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/awnumar/memguard"

	"github.com/illarion/cipherstore/internal/crypto"
)

// Key is an opaque handle to key material sealed in a memguard enclave
type Key struct {
	alias   string
	params  Params
	enclave *memguard.Enclave
}

// newKey seals material; material is wiped.
func newKey(alias string, params Params, material []byte) (*Key, error) {
	if len(material)*8 != params.KeySize {
		crypto.ClearBytes(material)
		return nil, fmt.Errorf("key %q: material is %d bits, params say %d", alias, len(material)*8, params.KeySize)
	}
	return &Key{
		alias:   alias,
		params:  params,
		enclave: memguard.NewEnclave(material),
	}, nil
}

func (k *Key) Alias() string {
	return k.alias
}

func (k *Key) Params() Params {
	return k.params
}

// Use opens the enclave and passes the key material to fn. The buffer is
// destroyed when fn returns; fn must not retain it.
func (k *Key) Use(fn func(material []byte) error) error {
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("failed to open key %q: %w", k.alias, err)
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

// entry is the serialized form of a key in the keyring and file stores
type entry struct {
	Alias    string    `json:"alias"`
	Params   Params    `json:"params"`
	Material []byte    `json:"material"`
	Created  time.Time `json:"created"`
}

func generateEntry(alias string, params Params) ([]byte, error) {
	material, err := crypto.GenerateRandom(params.KeySize / 8)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(material)

	data, err := json.Marshal(entry{
		Alias:    alias,
		Params:   params,
		Material: material,
		Created:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode key entry: %w", err)
	}
	return data, nil
}

// decodeEntry turns a serialized entry into a Key. data is wiped.
func decodeEntry(alias string, data []byte) (*Key, error) {
	defer crypto.ClearBytes(data)

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode key entry %q: %w", alias, err)
	}
	if e.Alias != alias {
		crypto.ClearBytes(e.Material)
		return nil, fmt.Errorf("key entry %q is stored under alias %q", e.Alias, alias)
	}
	return newKey(alias, e.Params, e.Material)
}
