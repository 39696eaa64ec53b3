package keystore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/storage"
)

// checkValue is sealed under the wrapping key at initialization so a wrong
// passphrase is caught before any entry is touched.
var checkValue = []byte("cipherstore-passphrase-check")

var ErrNotInitialized = errors.New("file keystore not initialized")

// Bolt keeps key entries in the cipherstore database, each sealed with
// AES-256-GCM under a key derived from a passphrase
type Bolt struct {
	db *storage.Storage

	mu         sync.RWMutex
	enc        *crypto.Encryptor
	iterations int
}

// InitBolt sets up the file keystore in db: a fresh KDF salt, the iteration
// count and the passphrase check value. iterations <= 0 selects
// crypto.DefaultIters.
func InitBolt(db *storage.Storage, passphrase []byte, iterations int) (*Bolt, error) {
	kdf, err := crypto.NewKDF()
	if err != nil {
		return nil, err
	}
	if iterations > 0 {
		kdf.Iterations = iterations
	}

	enc := crypto.NewEncryptor(kdf.DeriveKey(passphrase))
	check, err := enc.Encrypt(checkValue)
	if err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("failed to seal passphrase check: %w", err)
	}

	if err := db.Rewrap(rewrapWith(nil, enc), kdf.Salt, uint32(kdf.Iterations), check); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("failed to initialize file keystore: %w", err)
	}

	return &Bolt{db: db, enc: enc, iterations: kdf.Iterations}, nil
}

// OpenBolt unlocks the file keystore in db with passphrase.
// A wrong passphrase fails with ErrWrongPassphrase.
func OpenBolt(db *storage.Storage, passphrase []byte) (*Bolt, error) {
	enc, iterations, err := unlock(db, passphrase)
	if err != nil {
		return nil, err
	}
	return &Bolt{db: db, enc: enc, iterations: iterations}, nil
}

func unlock(db *storage.Storage, passphrase []byte) (*crypto.Encryptor, int, error) {
	salt, err := db.GetSalt()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, ErrNotInitialized
	}
	if err != nil {
		return nil, 0, unavailable(err)
	}
	iters, err := db.GetIterations()
	if err != nil {
		return nil, 0, unavailable(err)
	}
	check, err := db.GetConfig(storage.ConfigCheck)
	if err != nil {
		return nil, 0, unavailable(err)
	}

	kdf := &crypto.KDF{Salt: salt, Iterations: int(iters)}
	enc := crypto.NewEncryptor(kdf.DeriveKey(passphrase))

	plain, err := enc.Decrypt(check)
	if err != nil || !crypto.ConstantTimeCompare(plain, checkValue) {
		enc.Destroy()
		return nil, 0, ErrWrongPassphrase
	}
	return enc, int(iters), nil
}

func (b *Bolt) Name() string { return "file" }

func (b *Bolt) HasEntry(alias string) (bool, error) {
	ok, err := b.db.HasKey(alias)
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (b *Bolt) CreateEntry(alias string, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}

	exists, err := b.HasEntry(alias)
	if err != nil || exists {
		return err
	}

	data, err := generateEntry(alias, params)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(data)

	b.mu.RLock()
	sealed, err := b.enc.Encrypt(data)
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to seal key %q: %w", alias, err)
	}

	// Losing a race to another writer is fine; its entry stands.
	if _, err := b.db.PutKeyIfAbsent(alias, sealed); err != nil {
		return unavailable(err)
	}
	return nil
}

func (b *Bolt) GetKey(alias string) (*Key, error) {
	sealed, err := b.db.GetKey(alias)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	b.mu.RLock()
	data, err := b.enc.Decrypt(sealed)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to unseal key %q: %w", alias, err)
	}
	return decodeEntry(alias, data)
}

// ChangePassphrase re-wraps every entry under a key derived from newPass with
// a fresh salt. oldPass must unlock the store. All entries change in one
// transaction.
func (b *Bolt) ChangePassphrase(oldPass, newPass []byte) error {
	oldEnc, iterations, err := unlock(b.db, oldPass)
	if err != nil {
		return err
	}
	defer oldEnc.Destroy()

	kdf, err := crypto.NewKDF()
	if err != nil {
		return err
	}
	kdf.Iterations = iterations

	newEnc := crypto.NewEncryptor(kdf.DeriveKey(newPass))
	check, err := newEnc.Encrypt(checkValue)
	if err != nil {
		newEnc.Destroy()
		return fmt.Errorf("failed to seal passphrase check: %w", err)
	}

	if err := b.db.Rewrap(rewrapWith(oldEnc, newEnc), kdf.Salt, uint32(iterations), check); err != nil {
		newEnc.Destroy()
		return fmt.Errorf("failed to change passphrase: %w", err)
	}

	b.mu.Lock()
	b.enc.Destroy()
	b.enc = newEnc
	b.mu.Unlock()
	return nil
}

// Close wipes the wrapping key
func (b *Bolt) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enc.Destroy()
}

// rewrapWith opens entries with from and seals them with to. A nil from
// refuses any existing entry, which only an empty keys bucket satisfies.
func rewrapWith(from, to *crypto.Encryptor) func(string, []byte) ([]byte, error) {
	return func(alias string, sealed []byte) ([]byte, error) {
		if from == nil {
			return nil, fmt.Errorf("key %q exists before initialization", alias)
		}
		data, err := from.Decrypt(sealed)
		if err != nil {
			return nil, err
		}
		defer crypto.ClearBytes(data)
		return to.Encrypt(data)
	}
}
