// Package crypto provides cryptographic operations for cipherstore.
//
// Value envelopes use AES-256-CBC with:
//   - 16-byte random IV per encryption, written as the first 16 bytes
//   - PKCS#7 padding, so ciphertext is always a whole number of blocks
//   - 1024-byte streaming chunks, output identical to a single-shot encrypt
//   - no version byte, magic or authentication tag
//
// Key wrapping for the file keystore uses AES-256-GCM with:
//   - 32-byte key derived from a passphrase via PBKDF2-HMAC-SHA256
//   - 32-byte random salt and 210,000 iterations (OWASP minimum recommendation)
//   - 12-byte random nonce per encryption operation
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with wrapping operations
package crypto
