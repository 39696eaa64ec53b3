package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket = []byte("config") // Store ID, timestamps, KDF params, passphrase check - unencrypted
	IndexBucket  = []byte("index")  // Item metadata for ls/info - unencrypted
	ItemsBucket  = []byte("items")  // Encrypted value envelopes
	KeysBucket   = []byte("keys")   // Wrapped file keystore entries
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigSalt     = []byte("salt")
	ConfigIters    = []byte("iterations")
	ConfigStoreID  = []byte("store_id")
	ConfigCheck    = []byte("check")
	ConfigKeystore = []byte("keystore")
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNoConfigBucket = errors.New("config bucket not found")
	ErrNotInitialized = errors.New("database not initialized")
)

// Storage provides BBolt-based storage for cipherstore
type Storage struct {
	db *bolt.DB
}

var openOptions = &bolt.Options{Timeout: time.Second}

// Open opens or creates a cipherstore database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, openOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure. Calling it on an initialized
// database leaves existing values alone.
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, IndexBucket, ItemsBucket, KeysBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}

		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// SetConfig stores a raw config value
func (s *Storage) SetConfig(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNoConfigBucket
		}
		return config.Put(key, value)
	})
}

// GetConfig retrieves a raw config value, ErrNotFound if unset
func (s *Storage) GetConfig(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNoConfigBucket
		}
		v := config.Get(key)
		if v == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

// GetSalt retrieves the KDF salt
func (s *Storage) GetSalt() ([]byte, error) {
	return s.GetConfig(ConfigSalt)
}

// GetIterations retrieves the KDF iterations
func (s *Storage) GetIterations() (uint32, error) {
	iters, err := s.GetConfig(ConfigIters)
	if err != nil {
		return 0, err
	}
	if len(iters) != 4 {
		return 0, fmt.Errorf("iterations value has %d bytes", len(iters))
	}
	return binary.BigEndian.Uint32(iters), nil
}

func encodeIters(iterations uint32) []byte {
	iters := make([]byte, 4)
	binary.BigEndian.PutUint32(iters, iterations)
	return iters
}

// touch records t as the last modification of the store
func touch(tx *bolt.Tx, t time.Time) error {
	modified, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	return s.getTime(ConfigModified)
}

// GetCreated retrieves the creation timestamp
func (s *Storage) GetCreated() (time.Time, error) {
	return s.getTime(ConfigCreated)
}

func (s *Storage) getTime(key []byte) (time.Time, error) {
	var t time.Time
	data, err := s.GetConfig(key)
	if err != nil {
		return t, err
	}
	return t, t.UnmarshalBinary(data)
}

// GetStoreID retrieves the store ID from the config bucket
func (s *Storage) GetStoreID() (string, error) {
	id, err := s.GetConfig(ConfigStoreID)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

// GetOrCreateStoreID retrieves the existing store ID or generates a new one
func (s *Storage) GetOrCreateStoreID() (string, error) {
	var storeID string
	err := s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNoConfigBucket
		}
		if id := config.Get(ConfigStoreID); id != nil {
			storeID = string(id)
			return nil
		}
		storeID = uuid.NewString()
		return config.Put(ConfigStoreID, []byte(storeID))
	})
	if err != nil {
		return "", fmt.Errorf("failed to get store ID: %w", err)
	}
	return storeID, nil
}

// PutItem stores an envelope and its index entry in one transaction
func (s *Storage) PutItem(entry ItemEntry, envelope []byte) error {
	id := ItemID(entry.Service, entry.Key)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode index entry: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(ItemsBucket)
		if items == nil {
			return ErrNotInitialized
		}
		if err := items.Put(id, envelope); err != nil {
			return err
		}
		if err := tx.Bucket(IndexBucket).Put(id, data); err != nil {
			return err
		}
		return touch(tx, entry.Modified)
	})
}

// GetItem retrieves an envelope and its index entry
func (s *Storage) GetItem(service, key string) ([]byte, *ItemEntry, error) {
	id := ItemID(service, key)
	var envelope []byte
	var entry ItemEntry

	err := s.db.View(func(tx *bolt.Tx) error {
		items := tx.Bucket(ItemsBucket)
		if items == nil {
			return fmt.Errorf("items bucket: %w", ErrNotFound)
		}
		data := items.Get(id)
		if data == nil {
			return ErrNotFound
		}
		envelope = append([]byte(nil), data...)

		if meta := tx.Bucket(IndexBucket).Get(id); meta != nil {
			return json.Unmarshal(meta, &entry)
		}
		entry = ItemEntry{Service: service, Key: key, Size: len(envelope)}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return envelope, &entry, nil
}

// DeleteItem removes an item and its index entry
func (s *Storage) DeleteItem(service, key string) error {
	id := ItemID(service, key)
	return s.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket(ItemsBucket)
		if items == nil || items.Get(id) == nil {
			return ErrNotFound
		}
		if err := items.Delete(id); err != nil {
			return err
		}
		if err := tx.Bucket(IndexBucket).Delete(id); err != nil {
			return err
		}
		return touch(tx, time.Now())
	})
}

// ListItems returns index entries for one service, or all services when
// all is set, sorted by service then key
func (s *Storage) ListItems(service string, all bool) ([]ItemEntry, error) {
	var entries []ItemEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return nil
		}

		if all {
			return index.ForEach(func(_, v []byte) error {
				return appendEntry(&entries, v)
			})
		}

		prefix := ItemID(service, "")
		c := index.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := appendEntry(&entries, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	SortEntries(entries)
	return entries, nil
}

func appendEntry(entries *[]ItemEntry, data []byte) error {
	var entry ItemEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return err
	}
	*entries = append(*entries, entry)
	return nil
}

// CountItems returns the number of stored items
func (s *Storage) CountItems() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if items := tx.Bucket(ItemsBucket); items != nil {
			n = items.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// HasKey reports whether a wrapped key entry exists for alias
func (s *Storage) HasKey(alias string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		keys := tx.Bucket(KeysBucket)
		found = keys != nil && keys.Get([]byte(alias)) != nil
		return nil
	})
	return found, err
}

// GetKey retrieves a wrapped key entry, ErrNotFound if absent
func (s *Storage) GetKey(alias string) ([]byte, error) {
	var sealed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		keys := tx.Bucket(KeysBucket)
		if keys == nil {
			return ErrNotFound
		}
		data := keys.Get([]byte(alias))
		if data == nil {
			return ErrNotFound
		}
		sealed = append([]byte(nil), data...)
		return nil
	})
	return sealed, err
}

// PutKeyIfAbsent stores a wrapped key entry unless one already exists.
// The check and the write share one transaction, so concurrent writers
// cannot both create an entry for the same alias.
func (s *Storage) PutKeyIfAbsent(alias string, sealed []byte) (bool, error) {
	var created bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		keys, err := tx.CreateBucketIfNotExists(KeysBucket)
		if err != nil {
			return err
		}
		if keys.Get([]byte(alias)) != nil {
			return nil
		}
		created = true
		return keys.Put([]byte(alias), sealed)
	})
	if err != nil {
		return false, fmt.Errorf("failed to store key %q: %w", alias, err)
	}
	return created, nil
}

// CountKeys returns the number of wrapped key entries
func (s *Storage) CountKeys() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if keys := tx.Bucket(KeysBucket); keys != nil {
			n = keys.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Rewrap replaces every wrapped key entry with rewrap's output and stores the
// new KDF salt, iterations and passphrase check. Nothing is written unless
// every entry rewraps.
func (s *Storage) Rewrap(rewrap func(alias string, sealed []byte) ([]byte, error), salt []byte, iterations uint32, check []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		keys, err := tx.CreateBucketIfNotExists(KeysBucket)
		if err != nil {
			return err
		}

		type pair struct{ k, v []byte }
		var updated []pair
		err = keys.ForEach(func(k, v []byte) error {
			nv, err := rewrap(string(k), append([]byte(nil), v...))
			if err != nil {
				return fmt.Errorf("failed to rewrap %q: %w", k, err)
			}
			updated = append(updated, pair{append([]byte(nil), k...), nv})
			return nil
		})
		if err != nil {
			return err
		}

		// bbolt forbids mutating a bucket while iterating it
		for _, p := range updated {
			if err := keys.Put(p.k, p.v); err != nil {
				return err
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNoConfigBucket
		}
		if err := config.Put(ConfigSalt, salt); err != nil {
			return err
		}
		if err := config.Put(ConfigIters, encodeIters(iterations)); err != nil {
			return err
		}
		return config.Put(ConfigCheck, check)
	})
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after removing items to reclaim disk space.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, openOptions)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, openOptions)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
