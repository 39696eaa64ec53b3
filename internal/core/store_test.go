package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/illarion/cipherstore/internal/cipherstorage"
	cskeyring "github.com/illarion/cipherstore/internal/keyring"
	"github.com/illarion/cipherstore/internal/keystore"
	"github.com/illarion/cipherstore/internal/storage"
)

const testIters = 1000

func fixedPassphrase(p string) PassphraseFunc {
	return func(_ string, verify func([]byte) error) ([]byte, error) {
		b := []byte(p)
		if err := verify(b); err != nil {
			return nil, err
		}
		return b, nil
	}
}

func acceptAll([]byte) error { return nil }

func initFileStore(t *testing.T, passphrase string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	s, err := Init(path, Options{Keystore: KeystoreFile, Iterations: testIters}, []byte(passphrase))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestInit(t *testing.T) {
	s, path := initFileStore(t, "test123")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermSecure), info.Mode().Perm())
	assert.NotEmpty(t, s.StoreID())

	_, err = Init(path, Options{Keystore: KeystoreFile}, []byte("x"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInitValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := Init(filepath.Join(dir, "a"), Options{Keystore: "hsm"}, nil)
	assert.ErrorIs(t, err, ErrUnknownKeystore)

	_, err = Init(filepath.Join(dir, "b"), Options{Keystore: KeystoreFile}, nil)
	assert.ErrorIs(t, err, ErrPassphraseRequired)
	assert.NoFileExists(t, filepath.Join(dir, "b"), "failed init must not leave a store file behind")
}

func TestOpenNotInitialized(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), DefaultFile), Options{})
	assert.ErrorIs(t, err, ErrNotInitialized)

	// An empty bbolt file is not a store either
	path := filepath.Join(t.TempDir(), "empty")
	db, err := storage.Open(path)
	require.NoError(t, err)
	db.Close()

	_, err = Open(path, Options{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSetGetRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := initFileStore(t, "test123")

	require.NoError(t, s.SetItem(ctx, "svc", "token", "s3cr3t"))

	got, err := s.GetItem(ctx, "svc", "token")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got)

	// Overwrite
	require.NoError(t, s.SetItem(ctx, "svc", "token", "rotated"))
	got, err = s.GetItem(ctx, "svc", "token")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got)

	require.NoError(t, s.RemoveItem("svc", "token"))
	_, err = s.GetItem(ctx, "svc", "token")
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.ErrorIs(t, s.RemoveItem("svc", "token"), ErrItemNotFound)
}

func TestDefaultService(t *testing.T) {
	ctx := context.Background()
	s, _ := initFileStore(t, "test123")

	require.NoError(t, s.SetItem(ctx, "", "token", "value"))

	got, err := s.GetItem(ctx, cipherstorage.DefaultAlias, "token")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	items, err := s.Items("")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, cipherstorage.DefaultAlias, items[0].Service)
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	s, _ := initFileStore(t, "test123")

	assert.ErrorIs(t, s.SetItem(ctx, "svc", "", "v"), ErrInvalidName)
	assert.ErrorIs(t, s.SetItem(ctx, "s\x00vc", "k", "v"), ErrInvalidName)
}

func TestItemsAndInfoWithoutPassphrase(t *testing.T) {
	ctx := context.Background()
	s, path := initFileStore(t, "test123")

	for _, item := range []struct{ service, key string }{
		{"a", "1"}, {"a", "2"}, {"b", "1"},
	} {
		require.NoError(t, s.SetItem(ctx, item.service, item.key, "v"))
	}
	s.Close()

	// No passphrase source: listing and info must still work
	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	items, err := reopened.Items("a")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	all, err := reopened.AllItems()
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, e := range all {
		assert.Equal(t, cipherstorage.BackendName, e.Backend, "%s/%s", e.Service, e.Key)
	}

	info, err := reopened.Info()
	require.NoError(t, err)
	assert.Equal(t, 3, info.Items)
	assert.Equal(t, 2, info.Keys)
	assert.Equal(t, "KeystoreAESCBC", info.Backend)
	assert.EqualValues(t, 23, info.MinPlatformVersion)
	assert.EqualValues(t, testIters, info.KDFIterations)

	// Decrypting needs the passphrase
	_, err = reopened.GetItem(ctx, "a", "1")
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}

func TestWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	s, path := initFileStore(t, "right")

	require.NoError(t, s.SetItem(ctx, "svc", "k", "v"))
	s.Close()

	reopened, err := Open(path, Options{Passphrase: fixedPassphrase("wrong")})
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.GetItem(ctx, "svc", "k")
	assert.ErrorIs(t, err, keystore.ErrWrongPassphrase)
	assert.NoError(t, reopened.VerifyPassphrase([]byte("right")))
}

func TestChangePassphrase(t *testing.T) {
	ctx := context.Background()
	s, path := initFileStore(t, "old")

	require.NoError(t, s.SetItem(ctx, "svc", "k", "value"))

	assert.ErrorIs(t, s.ChangePassphrase([]byte("nope"), []byte("new")), keystore.ErrWrongPassphrase)
	require.NoError(t, s.ChangePassphrase([]byte("old"), []byte("new")))
	s.Close()

	reopened, err := Open(path, Options{Passphrase: fixedPassphrase("new")})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetItem(ctx, "svc", "k")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), DefaultFile)
	s, err := Init(path, Options{Keystore: KeystoreKeyring}, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetItem(ctx, "svc", "k", "value"))
	assert.ErrorIs(t, s.ChangePassphrase([]byte("a"), []byte("b")), ErrNotFileKeystore)
	service := s.KeyringService()
	s.Close()

	assert.Regexp(t, `^cipherstore/`, service)
	ok, err := cskeyring.New(service).Has("svc")
	require.NoError(t, err)
	assert.True(t, ok, "key entry should be in the OS keyring")

	_, err = Open(path, Options{Keystore: KeystoreFile})
	assert.ErrorIs(t, err, ErrKeystoreMismatch)

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetItem(ctx, "svc", "k")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	t.Cleanup(keyring.MockInit)

	path := filepath.Join(t.TempDir(), DefaultFile)
	s, err := Init(path, Options{Keystore: KeystoreKeyring}, nil)
	require.NoError(t, err)
	defer s.Close()

	err = s.SetItem(context.Background(), "svc", "k", "value")
	assert.True(t, cipherstorage.IsKeyStoreAccess(err), "expected keystore access error, got %v", err)
}

func TestBackendMismatch(t *testing.T) {
	s, _ := initFileStore(t, "test123")

	entry := storage.ItemEntry{Service: "svc", Key: "k", Backend: "SomeOtherBackend"}
	require.NoError(t, s.db.PutItem(entry, make([]byte, 32)))

	_, err := s.GetItem(context.Background(), "svc", "k")
	assert.ErrorIs(t, err, ErrBackendMismatch)
}

func TestCorruptedItem(t *testing.T) {
	ctx := context.Background()
	s, _ := initFileStore(t, "test123")

	require.NoError(t, s.SetItem(ctx, "svc", "k", "value"))

	envelope, entry, err := s.db.GetItem("svc", "k")
	require.NoError(t, err)
	require.NoError(t, s.db.PutItem(*entry, envelope[:len(envelope)-3]))

	_, err = s.GetItem(ctx, "svc", "k")
	assert.True(t, cipherstorage.IsDecryptionFailed(err), "expected decryption error, got %v", err)
}

func TestDiff(t *testing.T) {
	ctx := context.Background()
	s, _ := initFileStore(t, "test123")

	require.NoError(t, s.SetItem(ctx, "svc", "config", "a=1\nb=2\n"))

	diff, err := s.Diff(ctx, "svc", "config", []byte("a=1\nb=2\n"))
	require.NoError(t, err)
	assert.Empty(t, diff)

	diff, err = s.Diff(ctx, "svc", "config", []byte("a=1\nb=3\n"))
	require.NoError(t, err)
	assert.Contains(t, diff, "-b=2")
	assert.Contains(t, diff, "+b=3")

	_, err = s.Diff(ctx, "svc", "missing", nil)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	s, _ := initFileStore(t, "test123")

	require.NoError(t, s.SetItem(ctx, "svc", "k", "value"))
	require.NoError(t, s.Compact())

	got, err := s.GetItem(ctx, "svc", "k")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestPassphraseResolver(t *testing.T) {
	keyring.MockInit()
	ring := cskeyring.New("cipherstore-test")

	prompted := 0
	prompt := func() ([]byte, error) {
		prompted++
		return []byte("from-prompt"), nil
	}
	resolve := PassphraseResolver(ring, prompt)

	t.Setenv(PasswordEnv, "from-env")
	p, err := resolve("id", acceptAll)
	require.NoError(t, err)
	assert.Equal(t, "from-env", string(p))

	t.Setenv(PasswordEnv, "")
	require.NoError(t, ring.SavePassphrase("id", []byte("from-keyring")))
	p, err = resolve("id", acceptAll)
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", string(p))

	p, err = resolve("other-id", acceptAll)
	require.NoError(t, err)
	assert.Equal(t, "from-prompt", string(p))
	assert.Equal(t, 1, prompted)

	_, err = PassphraseResolver(ring, nil)("other-id", acceptAll)
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}

func TestPassphraseResolverRejectsEnv(t *testing.T) {
	keyring.MockInit()
	t.Setenv(PasswordEnv, "wrong")

	prompted := false
	resolve := PassphraseResolver(cskeyring.New("cipherstore-test"), func() ([]byte, error) {
		prompted = true
		return []byte("right"), nil
	})

	_, err := resolve("env-id", func([]byte) error { return keystore.ErrWrongPassphrase })
	assert.ErrorIs(t, err, keystore.ErrWrongPassphrase)
	assert.False(t, prompted, "an explicit passphrase must not fall back to the prompt")
}

func TestStaleKeyringPassphrase(t *testing.T) {
	keyring.MockInit()
	t.Setenv(PasswordEnv, "")
	ctx := context.Background()

	s, path := initFileStore(t, "current")
	require.NoError(t, s.SetItem(ctx, "svc", "k", "value"))
	storeID := s.StoreID()
	s.Close()

	// Cached before a passphrase change made elsewhere
	ring := cskeyring.New("cipherstore-test")
	require.NoError(t, ring.SavePassphrase(storeID, []byte("previous")))

	prompted := 0
	resolve := PassphraseResolver(ring, func() ([]byte, error) {
		prompted++
		return []byte("current"), nil
	})

	reopened, err := Open(path, Options{Passphrase: resolve})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetItem(ctx, "svc", "k")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 1, prompted)

	// Without a prompt the stale entry is reported as missing input
	again, err := Open(path, Options{Passphrase: PassphraseResolver(ring, nil)})
	require.NoError(t, err)
	defer again.Close()

	_, err = again.GetItem(ctx, "svc", "k")
	assert.ErrorIs(t, err, ErrPassphraseRequired)
}
