package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.cipherstore"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Initialize())
	return db
}

func keepSealed(_ string, sealed []byte) ([]byte, error) { return sealed, nil }

func TestOpenAndInitialize(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.cipherstore")

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	initialized, err := db.IsInitialized()
	require.NoError(t, err)
	assert.False(t, initialized, "fresh database should not be initialized")

	require.NoError(t, db.Initialize())

	initialized, err = db.IsInitialized()
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestInitializeKeepsCreated(t *testing.T) {
	db := openTestDB(t)

	created, err := db.GetCreated()
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, db.Initialize())

	again, err := db.GetCreated()
	require.NoError(t, err)
	assert.True(t, again.Equal(created), "created changed on re-initialize: %v -> %v", created, again)
}

func TestKDFParameters(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetSalt()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetIterations()
	assert.ErrorIs(t, err, ErrNotFound)

	salt := []byte("test-salt-32-bytes-long-exactly!")
	require.NoError(t, db.Rewrap(keepSealed, salt, 210000, []byte("check")))

	got, err := db.GetSalt()
	require.NoError(t, err)
	assert.Equal(t, salt, got)

	iters, err := db.GetIterations()
	require.NoError(t, err)
	assert.EqualValues(t, 210000, iters)

	check, err := db.GetConfig(ConfigCheck)
	require.NoError(t, err)
	assert.Equal(t, "check", string(check))
}

func TestStoreID(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetStoreID()
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := db.GetOrCreateStoreID()
	require.NoError(t, err)
	assert.Len(t, id, 36, "store ID should be a UUID")

	again, err := db.GetOrCreateStoreID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestItemOperations(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	entry := ItemEntry{Service: "svc", Key: "token", Backend: "KeystoreAESCBC", Size: 32, Modified: now}
	envelope := []byte("0123456789abcdef0123456789abcdef")

	require.NoError(t, db.PutItem(entry, envelope))

	got, meta, err := db.GetItem("svc", "token")
	require.NoError(t, err)
	assert.Equal(t, envelope, got)
	assert.Equal(t, "KeystoreAESCBC", meta.Backend)
	assert.Equal(t, 32, meta.Size)

	// Same item key under another service is a different item
	_, _, err = db.GetItem("other", "token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.DeleteItem("svc", "token"))
	_, _, err = db.GetItem("svc", "token")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteItem("svc", "token"), ErrNotFound)
}

func TestModifiedTracksWrites(t *testing.T) {
	db := openTestDB(t)

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.PutItem(ItemEntry{Service: "svc", Key: "k", Modified: stamp}, []byte("v")))

	modified, err := db.GetModified()
	require.NoError(t, err)
	assert.True(t, modified.Equal(stamp), "modified = %v, want %v", modified, stamp)

	require.NoError(t, db.DeleteItem("svc", "k"))
	modified, err = db.GetModified()
	require.NoError(t, err)
	assert.True(t, modified.After(stamp), "delete should advance modified, got %v", modified)
}

func TestListItems(t *testing.T) {
	db := openTestDB(t)

	for _, e := range []ItemEntry{
		{Service: "b", Key: "z"},
		{Service: "a", Key: "y"},
		{Service: "a", Key: "x"},
		{Service: "ab", Key: "w"},
	} {
		require.NoError(t, db.PutItem(e, []byte("envelope")))
	}

	entries, err := db.ListItems("a", false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "x", entries[0].Key)
	assert.Equal(t, "y", entries[1].Key)

	all, err := db.ListItems("", true)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].Service)
	assert.Equal(t, "b", all[3].Service)

	n, err := db.CountItems()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestItemID(t *testing.T) {
	assert.Equal(t, []byte("svc\x00key"), ItemID("svc", "key"))
	assert.NotEqual(t, ItemID("a", "bc"), ItemID("ab", "c"))

	assert.False(t, ValidName("a\x00b"), "names containing the separator must be rejected")
	assert.True(t, ValidName(""))
}

func TestPutKeyIfAbsent(t *testing.T) {
	db := openTestDB(t)

	created, err := db.PutKeyIfAbsent("alias", []byte("first"))
	require.NoError(t, err)
	assert.True(t, created, "first put should create the entry")

	created, err = db.PutKeyIfAbsent("alias", []byte("second"))
	require.NoError(t, err)
	assert.False(t, created, "second put should not overwrite the entry")

	got, err := db.GetKey("alias")
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	_, err = db.GetKey("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutKeyIfAbsentConcurrent(t *testing.T) {
	db := openTestDB(t)

	var wg sync.WaitGroup
	var creators atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := db.PutKeyIfAbsent("alias", []byte(fmt.Sprintf("writer-%d", i)))
			if !assert.NoError(t, err) {
				return
			}
			if created {
				creators.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, creators.Load(), "expected exactly one creator")
}

func TestRewrap(t *testing.T) {
	db := openTestDB(t)

	for _, alias := range []string{"a", "b"} {
		_, err := db.PutKeyIfAbsent(alias, []byte("old-"+alias))
		require.NoError(t, err)
	}

	err := db.Rewrap(func(alias string, sealed []byte) ([]byte, error) {
		return []byte("new-" + alias), nil
	}, []byte("salt"), 1000, []byte("check"))
	require.NoError(t, err)

	got, err := db.GetKey("b")
	require.NoError(t, err)
	assert.Equal(t, "new-b", string(got))
	iters, err := db.GetIterations()
	require.NoError(t, err)
	assert.EqualValues(t, 1000, iters)

	// A failing rewrap must leave everything untouched
	boom := errors.New("boom")
	err = db.Rewrap(func(alias string, sealed []byte) ([]byte, error) {
		if alias == "b" {
			return nil, boom
		}
		return []byte("newer-" + alias), nil
	}, []byte("salt2"), 2000, []byte("check2"))
	require.ErrorIs(t, err, boom)

	got, err = db.GetKey("a")
	require.NoError(t, err)
	assert.Equal(t, "new-a", string(got), "failed rewrap leaked a write")
	salt, err := db.GetSalt()
	require.NoError(t, err)
	assert.Equal(t, "salt", string(salt), "failed rewrap changed the salt")
}

func TestCompact(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 50; i++ {
		e := ItemEntry{Service: "svc", Key: fmt.Sprintf("item-%d", i)}
		require.NoError(t, db.PutItem(e, make([]byte, 4096)))
	}
	for i := 1; i < 50; i++ {
		require.NoError(t, db.DeleteItem("svc", fmt.Sprintf("item-%d", i)))
	}

	require.NoError(t, db.Compact())

	_, _, err := db.GetItem("svc", "item-0")
	assert.NoError(t, err, "item lost during compaction")
	n, err := db.CountItems()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPersistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.cipherstore")

	db, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Initialize())

	salt := []byte("test-salt-32-bytes-long-exactly!")
	require.NoError(t, db.Rewrap(keepSealed, salt, 1000, []byte("check")))
	require.NoError(t, db.PutItem(ItemEntry{Service: "svc", Key: "k"}, []byte("data")))
	db.Close()

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.GetSalt()
	require.NoError(t, err)
	assert.Equal(t, salt, got)

	data, _, err := db2.GetItem("svc", "k")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}
