package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/illarion/cipherstore/internal/cipherstorage"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/git"
	"github.com/illarion/cipherstore/internal/keystore"
	"github.com/illarion/cipherstore/internal/storage"
)

const (
	DefaultFile    = ".cipherstore"
	FilePermSecure = 0600 // File: owner rw only
)

// KeystoreKind selects where a store keeps its keys
type KeystoreKind string

const (
	KeystoreKeyring KeystoreKind = "keyring"
	KeystoreFile    KeystoreKind = "file"
)

var (
	ErrNotInitialized     = errors.New("cipherstore not initialized")
	ErrAlreadyExists      = errors.New("cipherstore already exists")
	ErrItemNotFound       = errors.New("item not found")
	ErrBackendMismatch    = errors.New("item was written by a different backend")
	ErrInvalidName        = errors.New("invalid service or item name")
	ErrKeystoreMismatch   = errors.New("store uses a different keystore")
	ErrPassphraseRequired = errors.New("passphrase required")
	ErrNotFileKeystore    = errors.New("store does not use the file keystore")
	ErrUnknownKeystore    = errors.New("unknown keystore kind")
)

// Options configures Init and Open
type Options struct {
	// Keystore is required by Init. On Open an empty value accepts whatever
	// the store was created with.
	Keystore KeystoreKind

	// KeyringService overrides the OS keyring service for key entries.
	// Empty means "cipherstore/<store ID>".
	KeyringService string

	// Iterations is the PBKDF2 count for a new file keystore; 0 means default.
	Iterations int

	// Passphrase supplies the file keystore passphrase on first use.
	Passphrase PassphraseFunc

	Logger *zap.Logger

	// Backend options passed through to cipherstorage.New
	BackendOptions []cipherstorage.Option
}

// Store persists encrypted items in a bbolt file
type Store struct {
	path    string
	db      *storage.Storage
	kind    KeystoreKind
	storeID string
	opts    Options
	log     *zap.Logger

	mu      sync.Mutex
	ks      keystore.KeyStore
	bolt    *keystore.Bolt
	backend *cipherstorage.KeystoreAESCBC
}

// Init creates a new store file at path. passphrase is only used for the
// file keystore and is not retained.
func Init(path string, opts Options, passphrase []byte) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyExists
	}
	if opts.Keystore != KeystoreKeyring && opts.Keystore != KeystoreFile {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeystore, opts.Keystore)
	}
	if opts.Keystore == KeystoreFile && len(passphrase) == 0 {
		return nil, ErrPassphraseRequired
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	s, err := initialize(path, db, opts, passphrase)
	if err != nil {
		db.Close()
		os.Remove(path)
		return nil, err
	}
	return s, nil
}

func initialize(path string, db *storage.Storage, opts Options, passphrase []byte) (*Store, error) {
	if err := db.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	storeID, err := db.GetOrCreateStoreID()
	if err != nil {
		return nil, err
	}

	if err := db.SetConfig(storage.ConfigKeystore, []byte(opts.Keystore)); err != nil {
		return nil, fmt.Errorf("failed to record keystore: %w", err)
	}

	s := newStore(path, db, opts.Keystore, storeID, opts)

	if opts.Keystore == KeystoreFile {
		b, err := keystore.InitBolt(db, passphrase, opts.Iterations)
		if err != nil {
			return nil, err
		}
		s.setKeyStore(b)
		s.bolt = b
	}

	s.log.Info("initialized store", zap.String("path", path), zap.String("keystore", string(opts.Keystore)))
	return s, nil
}

// Open opens an existing store file
func Open(path string, opts Options) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotInitialized
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}

	s, err := open(path, db, opts)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func open(path string, db *storage.Storage, opts Options) (*Store, error) {
	initialized, err := db.IsInitialized()
	if err != nil {
		return nil, err
	}
	if !initialized {
		return nil, ErrNotInitialized
	}

	storeID, err := db.GetStoreID()
	if err != nil {
		return nil, fmt.Errorf("failed to read store ID: %w", err)
	}

	raw, err := db.GetConfig(storage.ConfigKeystore)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore kind: %w", err)
	}
	kind := KeystoreKind(raw)
	if opts.Keystore != "" && opts.Keystore != kind {
		return nil, fmt.Errorf("%w: created with %q, asked for %q", ErrKeystoreMismatch, kind, opts.Keystore)
	}

	return newStore(path, db, kind, storeID, opts), nil
}

func newStore(path string, db *storage.Storage, kind KeystoreKind, storeID string, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		path:    path,
		db:      db,
		kind:    kind,
		storeID: storeID,
		opts:    opts,
		log:     log.Named("store").With(zap.String("store_id", storeID)),
	}
}

// Close releases the database and wipes any unlocked wrapping key
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bolt != nil {
		s.bolt.Close()
	}
	return s.db.Close()
}

func (s *Store) Path() string           { return s.path }
func (s *Store) StoreID() string        { return s.storeID }
func (s *Store) Keystore() KeystoreKind { return s.kind }

// KeyringService returns the OS keyring service key entries are filed under
func (s *Store) KeyringService() string {
	if s.opts.KeyringService != "" {
		return s.opts.KeyringService
	}
	return "cipherstore/" + s.storeID
}

func (s *Store) setKeyStore(ks keystore.KeyStore) {
	s.ks = ks
	opts := append([]cipherstorage.Option{cipherstorage.WithLogger(s.log)}, s.opts.BackendOptions...)
	s.backend = cipherstorage.New(ks, opts...)
}

// cipher returns the backend, unlocking the keystore on first use
func (s *Store) cipher() (*cipherstorage.KeystoreAESCBC, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return s.backend, nil
	}

	switch s.kind {
	case KeystoreKeyring:
		s.setKeyStore(keystore.NewKeyring(s.KeyringService()))

	case KeystoreFile:
		if s.opts.Passphrase == nil {
			return nil, ErrPassphraseRequired
		}
		var b *keystore.Bolt
		passphrase, err := s.opts.Passphrase(s.storeID, func(p []byte) error {
			opened, err := keystore.OpenBolt(s.db, p)
			if err != nil {
				return err
			}
			b = opened
			return nil
		})
		if err != nil {
			return nil, err
		}
		defer crypto.ClearBytes(passphrase)

		// A PassphraseFunc may return without calling verify
		if b == nil {
			if b, err = keystore.OpenBolt(s.db, passphrase); err != nil {
				return nil, err
			}
		}
		s.bolt = b
		s.setKeyStore(b)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeystore, s.kind)
	}

	return s.backend, nil
}

// Unlock opens the keystore now instead of on the first item operation.
// For the file keystore this verifies the passphrase.
func (s *Store) Unlock() error {
	_, err := s.cipher()
	return err
}

func validateNames(service, item string) error {
	if item == "" {
		return fmt.Errorf("%w: empty item key", ErrInvalidName)
	}
	if !storage.ValidName(service) || !storage.ValidName(item) {
		return fmt.Errorf("%w: names must not contain NUL", ErrInvalidName)
	}
	return nil
}

// SetItem encrypts value under the key for service and stores the envelope
func (s *Store) SetItem(ctx context.Context, service, item, value string) error {
	if err := validateNames(service, item); err != nil {
		return err
	}

	c, err := s.cipher()
	if err != nil {
		return err
	}

	res, err := c.Encrypt(ctx, service, item, value)
	if err != nil {
		return err
	}

	entry := storage.ItemEntry{
		Service:  cipherstorage.ResolveAlias(service),
		Key:      item,
		Backend:  res.Backend,
		Size:     len(res.Ciphertext),
		Modified: time.Now(),
	}
	if err := s.db.PutItem(entry, res.Ciphertext); err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}

	s.log.Debug("stored item", zap.String("service", entry.Service), zap.String("item", item))
	return nil
}

// GetItem loads and decrypts an item
func (s *Store) GetItem(ctx context.Context, service, item string) (string, error) {
	if err := validateNames(service, item); err != nil {
		return "", err
	}

	envelope, entry, err := s.db.GetItem(cipherstorage.ResolveAlias(service), item)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read item: %w", err)
	}

	if entry.Backend != "" && entry.Backend != cipherstorage.BackendName {
		return "", fmt.Errorf("%w: %s", ErrBackendMismatch, entry.Backend)
	}

	c, err := s.cipher()
	if err != nil {
		return "", err
	}

	res, err := c.Decrypt(ctx, service, item, envelope)
	if err != nil {
		return "", err
	}
	return res.Plaintext, nil
}

// RemoveItem deletes an item. Keys are never removed.
func (s *Store) RemoveItem(service, item string) error {
	if err := validateNames(service, item); err != nil {
		return err
	}

	err := s.db.DeleteItem(cipherstorage.ResolveAlias(service), item)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrItemNotFound
	}
	return err
}

// Items lists index entries for one service. No key is needed.
func (s *Store) Items(service string) ([]storage.ItemEntry, error) {
	return s.db.ListItems(cipherstorage.ResolveAlias(service), false)
}

// AllItems lists index entries for every service
func (s *Store) AllItems() ([]storage.ItemEntry, error) {
	return s.db.ListItems("", true)
}

// Diff returns a unified diff from the stored value to local, "" when equal
func (s *Store) Diff(ctx context.Context, service, item string, local []byte) (string, error) {
	stored, err := s.GetItem(ctx, service, item)
	if err != nil {
		return "", err
	}

	storedBytes := []byte(stored)
	defer crypto.ClearBytes(storedBytes)

	return UnifiedDiff(item, storedBytes, local), nil
}

// Info describes a store; gathering it needs no passphrase
type Info struct {
	StoreID            string
	Path               string
	Created            time.Time
	Modified           time.Time
	Backend            string
	MinPlatformVersion int
	Keystore           KeystoreKind
	KeyringService     string // Keyring keystore only
	Items              int
	Keys               int    // File keystore only
	KDFIterations      uint32 // File keystore only
	Git                *git.Status
}

// Info returns store metadata
func (s *Store) Info() (*Info, error) {
	items, err := s.db.CountItems()
	if err != nil {
		return nil, err
	}

	info := &Info{
		StoreID:            s.storeID,
		Path:               s.path,
		Backend:            cipherstorage.BackendName,
		MinPlatformVersion: cipherstorage.MinPlatformVersion,
		Keystore:           s.kind,
		Items:              items,
		Git:                git.CheckStoreFile(s.path),
	}

	// Timestamps are informational
	info.Created, _ = s.db.GetCreated()
	info.Modified, _ = s.db.GetModified()

	switch s.kind {
	case KeystoreFile:
		info.Keys, _ = s.db.CountKeys()
		info.KDFIterations, _ = s.db.GetIterations()
	case KeystoreKeyring:
		info.KeyringService = s.KeyringService()
	}

	return info, nil
}

// ChangePassphrase re-wraps the file keystore under newPass
func (s *Store) ChangePassphrase(oldPass, newPass []byte) error {
	if s.kind != KeystoreFile {
		return ErrNotFileKeystore
	}
	if len(newPass) == 0 {
		return ErrPassphraseRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bolt == nil {
		b, err := keystore.OpenBolt(s.db, oldPass)
		if err != nil {
			return err
		}
		s.bolt = b
		s.setKeyStore(b)
	}

	if err := s.bolt.ChangePassphrase(oldPass, newPass); err != nil {
		return err
	}
	s.log.Info("changed passphrase")
	return nil
}

// VerifyPassphrase checks passphrase against the file keystore
func (s *Store) VerifyPassphrase(passphrase []byte) error {
	if s.kind != KeystoreFile {
		return ErrNotFileKeystore
	}
	b, err := keystore.OpenBolt(s.db, passphrase)
	if err != nil {
		return err
	}
	b.Close()
	return nil
}

// Compact compacts the database to reclaim space left by removed items
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Compact()
}
