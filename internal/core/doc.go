// Package core provides the cipherstore item store.
//
// A Store is one bbolt file holding encrypted values keyed by service and
// item key. Values are encrypted by the KeystoreAESCBC backend with a key
// per service; keys live either in the OS keyring or, for the file
// keystore, wrapped inside the same file under a passphrase.
//
// Core operations include:
//   - Init/Open: create or open a store file
//   - SetItem/GetItem/RemoveItem: encrypt, decrypt and delete single values
//   - Items/AllItems/Info: metadata that needs no key or passphrase
//   - Diff: unified diff between a stored value and local content
//   - ChangePassphrase: re-wrap the file keystore under a new passphrase
//
// The file keystore is unlocked lazily, so listing never prompts.
package core
