package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/illarion/cipherstore/internal/cipherstorage"
	"github.com/illarion/cipherstore/internal/config"
	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/keystore"
)

// HandleError prints err with a hint for the errors users run into most
func HandleError(w io.Writer, err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(w, "Error: cipherstore not initialized\n")
		fmt.Fprintf(w, "Run 'cipherstore init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(w, "Error: store already exists\n")
		fmt.Fprintf(w, "Use 'cipherstore info' to see current state\n")
	case errors.Is(err, keystore.ErrWrongPassphrase):
		fmt.Fprintf(w, "Error: wrong passphrase\n")
	case errors.Is(err, core.ErrPasswordMismatch):
		fmt.Fprintf(w, "Error: passphrases do not match\n")
	case errors.Is(err, core.ErrItemNotFound):
		fmt.Fprintf(w, "Error: %s\n", err)
		fmt.Fprintf(w, "Use 'cipherstore ls' to see stored items\n")
	case errors.Is(err, core.ErrKeystoreMismatch):
		fmt.Fprintf(w, "Error: %s\n", err)
		fmt.Fprintf(w, "Drop --keystore to use the store's own keystore\n")
	case errors.Is(err, core.ErrNotFileKeystore):
		fmt.Fprintf(w, "Error: this store keeps its keys in the OS keyring and has no passphrase\n")
	case errors.Is(err, config.ErrInvalidConfig):
		fmt.Fprintf(w, "Error: %s\n", err)
	case cipherstorage.IsKeyStoreAccess(err):
		fmt.Fprintf(w, "Error: key store unavailable: %s\n", err)
		fmt.Fprintf(w, "Check that the OS keyring is running and unlocked\n")
	case cipherstorage.IsKeyGeneration(err):
		fmt.Fprintf(w, "Error: no usable key for this service: %s\n", err)
	case cipherstorage.IsDecryptionFailed(err):
		fmt.Fprintf(w, "Error: stored value could not be decrypted: %s\n", err)
	default:
		fmt.Fprintf(w, "Error: %s\n", err)
	}
}

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
