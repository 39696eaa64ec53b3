// Package cipherstorage implements the KeystoreAESCBC backend.
//
// Encrypt resolves the service to a key alias (DefaultAlias when empty),
// provisions a 256-bit AES key in the keystore on first use and returns the
// value as IV || AES-CBC ciphertext. Decrypt looks the key up, reads the IV
// from the first 16 bytes and returns the plaintext.
//
// Failures are *Error values of exactly one Kind:
//
//	KindKeyStoreAccess  keystore unreachable or unloadable
//	KindKeyGeneration   key could not be created or materialized
//	KindEncryption      envelope encryption failed
//	KindDecryption      envelope decryption failed
//
// Envelopes carry no authentication tag. Tampering is detected only when it
// breaks the padding or the UTF-8 encoding of the result.
package cipherstorage
