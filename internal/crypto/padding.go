package crypto

import (
	"bytes"
	"crypto/aes"
)

// pkcs7Pad adds PKCS#7 padding to the data to make it a multiple of blockSize.
// A full block of padding is added when data is already aligned.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(data, padText...)
}

// pkcs7Unpad removes PKCS#7 padding from the data.
// It returns ErrInvalidPadding if the padding is malformed.
func pkcs7Unpad(data []byte) ([]byte, error) {
	length := len(data)
	if length == 0 || length%aes.BlockSize != 0 {
		return nil, ErrInvalidBlockSize
	}

	padding := int(data[length-1])
	if padding == 0 || padding > aes.BlockSize {
		return nil, ErrInvalidPadding
	}

	for i := length - padding; i < length; i++ {
		if data[i] != byte(padding) {
			return nil, ErrInvalidPadding
		}
	}

	return data[:length-padding], nil
}
