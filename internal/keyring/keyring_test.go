package keyring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestRingSetGetDelete(t *testing.T) {
	keyring.MockInit()

	r := New("")
	assert.Equal(t, DefaultService, r.Service())

	ok, err := r.Has("alias")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set("alias", "secret"))

	got, err := r.Get("alias")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	ok, err = r.Has("alias")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Delete("alias"))
	_, err = r.Get("alias")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRingServicesAreIsolated(t *testing.T) {
	keyring.MockInit()

	a := New("svc-a")
	b := New("svc-b")

	require.NoError(t, a.Set("alias", "from-a"))

	_, err := b.Get("alias")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRingPassphrase(t *testing.T) {
	keyring.MockInit()

	r := New("cipherstore-test")
	assert.False(t, r.HasPassphrase("store-1"))

	require.NoError(t, r.SavePassphrase("store-1", []byte("hunter2")))
	assert.True(t, r.HasPassphrase("store-1"))

	got, err := r.GetPassphrase("store-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), got)

	// Passphrases must not collide with key aliases of the same name.
	_, err = r.Get("store-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.DeletePassphrase("store-1"))
	assert.False(t, r.HasPassphrase("store-1"))
}

func TestRingUnavailable(t *testing.T) {
	cause := errors.New("dbus: no session bus")
	keyring.MockInitWithError(cause)

	r := New("")
	_, err := r.Has("alias")
	assert.ErrorIs(t, err, cause)
	assert.False(t, r.HasPassphrase("store-1"))
}
