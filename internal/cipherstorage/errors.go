package cipherstorage

import (
	"errors"
	"fmt"
)

// Kind classifies a backend failure. Every error returned by the backend
// carries exactly one Kind.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindKeyStoreAccess
	KindKeyGeneration
	KindEncryption
	KindDecryption
)

func (k Kind) String() string {
	switch k {
	case KindKeyStoreAccess:
		return "keystore access"
	case KindKeyGeneration:
		return "key generation"
	case KindEncryption:
		return "encryption"
	case KindDecryption:
		return "decryption"
	default:
		return "unknown"
	}
}

var (
	// ErrKeyStoreAccess matches errors caused by an unreachable or unloadable keystore.
	ErrKeyStoreAccess = errors.New("cipherstorage: keystore access failed")

	// ErrKeyGeneration matches errors creating or materializing a key.
	ErrKeyGeneration = errors.New("cipherstorage: key generation failed")

	// ErrEncryptionFailed matches errors during envelope encryption.
	ErrEncryptionFailed = errors.New("cipherstorage: encryption failed")

	// ErrDecryptionFailed matches errors during envelope decryption.
	ErrDecryptionFailed = errors.New("cipherstorage: decryption failed")
)

var kindSentinels = map[Kind]error{
	KindKeyStoreAccess: ErrKeyStoreAccess,
	KindKeyGeneration:  ErrKeyGeneration,
	KindEncryption:     ErrEncryptionFailed,
	KindDecryption:     ErrDecryptionFailed,
}

// Error is the error type returned by the backend and the provisioner.
// errors.Is matches it against the sentinel for its Kind; errors.Unwrap
// returns the underlying cause.
type Error struct {
	Kind  Kind
	Alias string
	Err   error
}

func newError(kind Kind, alias string, err error) *Error {
	return &Error{Kind: kind, Alias: alias, Err: err}
}

func (e *Error) Error() string {
	msg := kindSentinels[e.Kind]
	if msg == nil {
		msg = errors.New("cipherstorage: failed")
	}
	if e.Err == nil {
		return fmt.Sprintf("%v (alias %q)", msg, e.Alias)
	}
	return fmt.Sprintf("%v (alias %q): %v", msg, e.Alias, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKeyStoreAccess returns true if the error is or wraps ErrKeyStoreAccess.
func IsKeyStoreAccess(err error) bool {
	return errors.Is(err, ErrKeyStoreAccess)
}

// IsKeyGeneration returns true if the error is or wraps ErrKeyGeneration.
func IsKeyGeneration(err error) bool {
	return errors.Is(err, ErrKeyGeneration)
}

// IsEncryptionFailed returns true if the error is or wraps ErrEncryptionFailed.
func IsEncryptionFailed(err error) bool {
	return errors.Is(err, ErrEncryptionFailed)
}

// IsDecryptionFailed returns true if the error is or wraps ErrDecryptionFailed.
func IsDecryptionFailed(err error) bool {
	return errors.Is(err, ErrDecryptionFailed)
}
