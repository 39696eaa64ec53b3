// Package storage provides the BBolt database behind a cipherstore file.
//
// Database structure uses four buckets:
//   - config: store ID, timestamps, keystore kind, KDF parameters and the
//     passphrase check value (unencrypted)
//   - index: per-item metadata (service, key, backend, size) so ls and info
//     work without touching any key
//   - items: encrypted value envelopes, keyed by service + 0x00 + item key
//   - keys: wrapped key material for the file keystore
//
// BBolt provides ACID transactions, file locking, and corruption detection.
// Slices returned by bbolt are only valid inside a transaction, so every
// getter copies before returning.
package storage
