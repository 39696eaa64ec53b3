package cipherstorage

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/illarion/cipherstore/internal/keystore"
)

// KeySize is the size in bits of every key the provisioner creates
const KeySize = 256

// KeyParams returns the parameters every provisioned key is created with
func KeyParams() keystore.Params {
	return keystore.Params{
		Algorithm:                    keystore.AlgorithmAES,
		BlockMode:                    keystore.BlockModeCBC,
		Padding:                      keystore.PaddingPKCS7,
		KeySize:                      KeySize,
		Purposes:                     keystore.PurposeEncrypt | keystore.PurposeDecrypt,
		RandomizedEncryptionRequired: true,
		UserAuthenticationRequired:   false,
	}
}

// Provisioner resolves aliases to keys, creating them on first use
type Provisioner struct {
	ks    keystore.KeyStore
	log   *zap.Logger
	group singleflight.Group
}

// NewProvisioner returns a provisioner over ks. A nil log discards output.
func NewProvisioner(ks keystore.KeyStore, log *zap.Logger) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provisioner{ks: ks, log: log}
}

// EnsureKey returns the key for alias, creating it if the keystore has none.
// Concurrent calls for one alias share a single keystore round trip.
func (p *Provisioner) EnsureKey(alias string) (*keystore.Key, error) {
	v, err, _ := p.group.Do(alias, func() (any, error) {
		return p.ensureKey(alias)
	})
	if err != nil {
		return nil, err
	}
	return v.(*keystore.Key), nil
}

func (p *Provisioner) ensureKey(alias string) (*keystore.Key, error) {
	exists, err := p.ks.HasEntry(alias)
	if err != nil {
		p.log.Debug("keystore lookup failed", zap.String("alias", alias), zap.Error(err))
		return nil, newError(KindKeyStoreAccess, alias, err)
	}

	if !exists {
		if err := p.ks.CreateEntry(alias, KeyParams()); err != nil {
			p.log.Debug("key generation failed", zap.String("alias", alias), zap.Error(err))
			return nil, classify(alias, err)
		}
		p.log.Info("generated key",
			zap.String("alias", alias),
			zap.String("keystore", p.ks.Name()),
			zap.Int("bits", KeySize),
		)
	}

	return p.Key(alias)
}

// Key returns the existing key for alias without creating one.
// A missing alias is a key generation error wrapping keystore.ErrNotFound.
func (p *Provisioner) Key(alias string) (*keystore.Key, error) {
	key, err := p.ks.GetKey(alias)
	if err != nil {
		p.log.Debug("key lookup failed", zap.String("alias", alias), zap.Error(err))
		return nil, classify(alias, err)
	}
	return key, nil
}

func classify(alias string, err error) error {
	if errors.Is(err, keystore.ErrUnavailable) {
		return newError(KindKeyStoreAccess, alias, err)
	}
	return newError(KindKeyGeneration, alias, err)
}
