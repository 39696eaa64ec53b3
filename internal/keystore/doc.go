// Package keystore defines the key storage capability the cipher backend
// provisions keys from, and the implementations cipherstore ships.
//
// A KeyStore maps an alias to a symmetric key generated inside the store.
// CreateEntry is create-if-absent: calling it for an alias that already
// has an entry leaves the existing key untouched. Callers never receive key
// material directly; a Key seals it in a memguard enclave and exposes it only
// for the duration of Key.Use.
//
// Implementations:
//   - Keyring: OS-backed store (macOS Keychain, Secret Service, Windows
//     Credential Manager)
//   - Bolt: software store inside the cipherstore database, entries wrapped
//     with AES-256-GCM under a passphrase-derived key
//   - Memory: process-local store for tests and ephemeral use
//   - Unavailable: a store whose every operation fails with ErrUnavailable
//
// A store that cannot honour the requested Params fails CreateEntry with
// ErrUnsupportedParams or ErrAuthenticationRequired. It never weakens the
// request.
package keystore
