package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keyring"
	"github.com/illarion/cipherstore/internal/keystore"
)

// PasswordEnv names the environment variable holding the file keystore passphrase
const PasswordEnv = "CIPHERSTORE_PASSWORD"

var ErrPasswordMismatch = errors.New("passphrases do not match")

// ReadPassword reads a passphrase from the terminal without echoing
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}

	return password, nil
}

// ReadPasswordConfirm reads a passphrase twice and ensures they match
func ReadPasswordConfirm(prompt string) ([]byte, error) {
	first, err := ReadPassword(prompt)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(first)

	second, err := ReadPassword("Confirm passphrase: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		return nil, ErrPasswordMismatch
	}

	return append([]byte(nil), first...), nil
}

// GetPasswordFromEnv reads the passphrase from CIPHERSTORE_PASSWORD
func GetPasswordFromEnv() []byte {
	password := os.Getenv(PasswordEnv)
	if password == "" {
		return nil
	}
	return []byte(password)
}

// PassphraseFunc supplies the file keystore passphrase for a store. verify
// is called on each candidate; the first one it accepts is returned and is
// owned by the caller.
type PassphraseFunc func(storeID string, verify func([]byte) error) ([]byte, error)

// PassphraseResolver returns a PassphraseFunc that tries, in order,
// CIPHERSTORE_PASSWORD, the OS keyring entry for the store and an
// interactive prompt. A nil prompt disables the last step. A keyring entry
// the store rejects is treated as out of date and the prompt is used instead.
func PassphraseResolver(ring keyring.Ring, prompt func() ([]byte, error)) PassphraseFunc {
	return func(storeID string, verify func([]byte) error) ([]byte, error) {
		if p := GetPasswordFromEnv(); p != nil {
			return checked(p, verify)
		}

		if p, err := ring.GetPassphrase(storeID); err == nil {
			err = verify(p)
			if err == nil {
				return p, nil
			}
			crypto.ClearBytes(p)
			if !errors.Is(err, keystore.ErrWrongPassphrase) {
				return nil, err
			}
			fmt.Fprintln(os.Stderr, "warning: passphrase in keyring is out of date")
		}

		if prompt == nil {
			return nil, ErrPassphraseRequired
		}
		p, err := prompt()
		if err != nil {
			return nil, err
		}
		return checked(p, verify)
	}
}

func checked(p []byte, verify func([]byte) error) ([]byte, error) {
	if err := verify(p); err != nil {
		crypto.ClearBytes(p)
		return nil, err
	}
	return p, nil
}

// ReadValue reads a secret value: the whole of r when it is not a terminal,
// otherwise a no-echo prompt. A single trailing newline is dropped.
func ReadValue(prompt string, r *os.File) (string, error) {
	if term.IsTerminal(int(r.Fd())) {
		v, err := ReadPassword(prompt)
		if err != nil {
			return "", err
		}
		defer crypto.ClearBytes(v)
		return string(v), nil
	}

	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	defer crypto.ClearBytes(data)

	v := strings.TrimSuffix(string(data), "\n")
	return strings.TrimSuffix(v, "\r"), nil
}
