package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize     = 32     // Salt size in bytes
	KeySize      = 32     // AES-256 key size
	NonceSize    = 12     // GCM nonce size
	TagSize      = 16     // GCM authentication tag size
	DefaultIters = 210000 // Default PBKDF2 iterations (OWASP minimum)
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
)

// KDF handles key derivation from passphrases
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF() (*KDF, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:       salt,
		Iterations: DefaultIters,
	}, nil
}

// DeriveKey derives a wrapping key from a passphrase
func (k *KDF) DeriveKey(passphrase []byte) []byte {
	return pbkdf2.Key(passphrase, k.Salt, k.Iterations, KeySize, sha256.New)
}

// Encryptor provides authenticated encryption for wrapped key material
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new encryptor with the given key.
// The encryptor takes ownership of key; Destroy wipes it.
func NewEncryptor(key []byte) *Encryptor {
	return &Encryptor{
		key: key,
	}
}

// Encrypt encrypts plaintext using AES-256-GCM.
// The output is nonce || ciphertext || tag.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	result := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(result, nonce)

	return gcm.Seal(result, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, ciphertext[:NonceSize], ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

func (e *Encryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
