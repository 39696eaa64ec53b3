package keystore

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable            = errors.New("keystore unavailable")
	ErrNotFound               = errors.New("key not found")
	ErrUnsupportedParams      = errors.New("unsupported key parameters")
	ErrAuthenticationRequired = errors.New("user authentication cannot be enforced by this keystore")
	ErrWrongPassphrase        = fmt.Errorf("%w: wrong passphrase", ErrUnavailable)
)

// KeyStore is the capability a cipher backend provisions keys from
type KeyStore interface {
	// Name identifies the implementation, e.g. "keyring" or "file".
	Name() string
	HasEntry(alias string) (bool, error)
	// CreateEntry generates a key for alias unless one already exists.
	CreateEntry(alias string, params Params) error
	// GetKey returns ErrNotFound when alias has no entry.
	GetKey(alias string) (*Key, error)
}

type Algorithm string

const AlgorithmAES Algorithm = "AES"

type BlockMode string

const BlockModeCBC BlockMode = "CBC"

type Padding string

const PaddingPKCS7 Padding = "PKCS7Padding"

// Purpose is a bit set of operations a key may be used for
type Purpose uint8

const (
	PurposeEncrypt Purpose = 1 << iota
	PurposeDecrypt
)

func (p Purpose) String() string {
	switch p {
	case PurposeEncrypt:
		return "encrypt"
	case PurposeDecrypt:
		return "decrypt"
	case PurposeEncrypt | PurposeDecrypt:
		return "encrypt|decrypt"
	default:
		return fmt.Sprintf("Purpose(%d)", uint8(p))
	}
}

// Params describes the key a store should generate for an alias
type Params struct {
	Algorithm                    Algorithm `json:"algorithm"`
	BlockMode                    BlockMode `json:"block_mode"`
	Padding                      Padding   `json:"padding"`
	KeySize                      int       `json:"key_size"` // Bits
	Purposes                     Purpose   `json:"purposes"`
	RandomizedEncryptionRequired bool      `json:"randomized_encryption_required"`
	UserAuthenticationRequired   bool      `json:"user_authentication_required"`
}

// Validate checks that p describes a key every store here can generate.
// None of the shipped stores can gate key use on user authentication.
func (p Params) Validate() error {
	if p.Algorithm != AlgorithmAES {
		return fmt.Errorf("%w: algorithm %q", ErrUnsupportedParams, p.Algorithm)
	}
	if p.BlockMode != BlockModeCBC {
		return fmt.Errorf("%w: block mode %q", ErrUnsupportedParams, p.BlockMode)
	}
	if p.Padding != PaddingPKCS7 {
		return fmt.Errorf("%w: padding %q", ErrUnsupportedParams, p.Padding)
	}
	switch p.KeySize {
	case 128, 192, 256:
	default:
		return fmt.Errorf("%w: key size %d", ErrUnsupportedParams, p.KeySize)
	}
	if p.Purposes == 0 || p.Purposes&^(PurposeEncrypt|PurposeDecrypt) != 0 {
		return fmt.Errorf("%w: purposes %v", ErrUnsupportedParams, p.Purposes)
	}
	if p.UserAuthenticationRequired {
		return ErrAuthenticationRequired
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
