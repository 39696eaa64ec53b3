package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const (
	IVSize    = aes.BlockSize // IV prefix of every envelope
	ChunkSize = 1024          // Streaming chunk size for envelope encryption
)

var (
	ErrShortEnvelope    = errors.New("envelope shorter than IV")
	ErrInvalidBlockSize = errors.New("ciphertext is not a multiple of block size")
	ErrInvalidPadding   = errors.New("invalid padding")
	ErrInvalidUTF8      = errors.New("value is not valid UTF-8")
)

// ivSource supplies envelope IVs. Tests replace it to get reproducible output.
var ivSource io.Reader = rand.Reader

// EncryptString encrypts a UTF-8 value with AES-CBC under key and returns
// the envelope IV || ciphertext. Every call draws a fresh IV.
func EncryptString(key []byte, plaintext string) ([]byte, error) {
	if !utf8.ValidString(plaintext) {
		return nil, ErrInvalidUTF8
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(ivSource, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	var out bytes.Buffer
	out.Grow(IVSize + len(plaintext) + aes.BlockSize - len(plaintext)%aes.BlockSize)
	out.Write(iv)

	if err := encryptStream(block, iv, strings.NewReader(plaintext), &out); err != nil {
		ClearBytes(out.Bytes())
		return nil, err
	}

	return out.Bytes(), nil
}

// DecryptString decrypts an envelope produced by EncryptString.
// Nothing is returned unless the whole envelope decrypts and decodes.
func DecryptString(key []byte, envelope []byte) (string, error) {
	if len(envelope) < IVSize {
		return "", ErrShortEnvelope
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, IVSize)
	copy(iv, envelope[:IVSize])

	var out bytes.Buffer
	defer func() { ClearBytes(out.Bytes()) }()

	if err := decryptStream(block, iv, bytes.NewReader(envelope[IVSize:]), &out); err != nil {
		return "", err
	}

	if !utf8.Valid(out.Bytes()) {
		return "", ErrInvalidUTF8
	}

	return out.String(), nil
}

// encryptStream reads plaintext from r in ChunkSize pieces, encrypts every
// complete block as soon as it is available and pads the tail on EOF.
func encryptStream(block cipher.Block, iv []byte, r io.Reader, w io.Writer) error {
	mode := cipher.NewCBCEncrypter(block, iv)

	chunk := make([]byte, ChunkSize)
	pending := make([]byte, 0, ChunkSize+aes.BlockSize)
	defer ClearBytes(chunk)
	defer func() { ClearBytes(pending[:cap(pending)]) }()

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)

			if full := len(pending) - len(pending)%aes.BlockSize; full > 0 {
				mode.CryptBlocks(pending[:full], pending[:full])
				if _, err := w.Write(pending[:full]); err != nil {
					return fmt.Errorf("failed to write ciphertext: %w", err)
				}
				pending = append(pending[:0], pending[full:]...)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read plaintext: %w", err)
		}
	}

	final := pkcs7Pad(pending, aes.BlockSize)
	mode.CryptBlocks(final, final)
	if _, err := w.Write(final); err != nil {
		return fmt.Errorf("failed to write final block: %w", err)
	}

	return nil
}

// decryptStream reads ciphertext from r in ChunkSize pieces. The last block
// is held back until r is exhausted so its padding can be checked.
func decryptStream(block cipher.Block, iv []byte, r io.Reader, w io.Writer) error {
	mode := cipher.NewCBCDecrypter(block, iv)

	chunk := make([]byte, ChunkSize)
	pending := make([]byte, 0, ChunkSize+aes.BlockSize)
	defer func() { ClearBytes(pending[:cap(pending)]) }()

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)

			if len(pending) > aes.BlockSize {
				ready := (len(pending) - 1) / aes.BlockSize * aes.BlockSize
				mode.CryptBlocks(pending[:ready], pending[:ready])
				if _, err := w.Write(pending[:ready]); err != nil {
					return fmt.Errorf("failed to write plaintext: %w", err)
				}
				pending = append(pending[:0], pending[ready:]...)
			}
		}

		if err == io.EOF || (n == 0 && err == nil) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read ciphertext: %w", err)
		}
	}

	if len(pending) != aes.BlockSize {
		return ErrInvalidBlockSize
	}

	mode.CryptBlocks(pending, pending)
	unpadded, err := pkcs7Unpad(pending)
	if err != nil {
		return err
	}

	if _, err := w.Write(unpadded); err != nil {
		return fmt.Errorf("failed to write final block: %w", err)
	}

	return nil
}
