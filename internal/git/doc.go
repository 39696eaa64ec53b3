// Package git reports how git treats the cipherstore file.
//
// Checks performed:
//   - Whether the store file is tracked by git
//   - Whether it is covered by .gitignore
//
// A store using the file keystore carries passphrase-wrapped keys and should
// not be committed. A keyring-backed store can be committed but is useless on
// a machine without the matching keyring entries.
package git
