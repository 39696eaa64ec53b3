package cipherstorage

// EncryptionResult is returned by Encrypt
type EncryptionResult struct {
	ItemKey    string
	Ciphertext []byte // IV || AES-CBC ciphertext
	Backend    string // Name of the backend that produced Ciphertext
}

// DecryptionResult is returned by Decrypt
type DecryptionResult struct {
	ItemKey   string
	Plaintext string
}
