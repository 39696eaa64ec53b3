// Package security confines secret file reads and writes to one directory.
package security

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SecretFilePerm is the mode for files holding decrypted values
const SecretFilePerm os.FileMode = 0600

var (
	ErrPathEscapes  = errors.New("path escapes working directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// Dir gives access to files under one directory through os.Root, so
// symlinks and ".." cannot lead a read or write outside it.
type Dir struct {
	root *os.Root
	path string
}

// OpenDir opens dir as the confinement root
func OpenDir(dir string) (*Dir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory: %w", err)
	}

	return &Dir{root: root, path: abs}, nil
}

func (d *Dir) Close() error {
	return d.root.Close()
}

// Path returns the absolute path of the root
func (d *Dir) Path() string {
	return d.path
}

// Clean rejects empty, absolute and escaping paths and returns the
// lexically cleaned relative path.
func (d *Dir) Clean(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrAbsolutePath, name)
	}

	clean := filepath.Clean(name)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, name)
	}
	return clean, nil
}

// ReadFile reads a file under the root
func (d *Dir) ReadFile(name string) ([]byte, error) {
	clean, err := d.Clean(name)
	if err != nil {
		return nil, err
	}

	f, err := d.root.Open(clean)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// WriteSecret writes data to a file under the root with SecretFilePerm,
// creating parent directories as needed. An existing file is tightened to
// SecretFilePerm.
func (d *Dir) WriteSecret(name string, data []byte) (err error) {
	clean, err := d.Clean(name)
	if err != nil {
		return err
	}

	if err := d.mkdirAll(filepath.Dir(clean)); err != nil {
		return err
	}

	f, err := d.root.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, SecretFilePerm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := f.Chmod(SecretFilePerm); err != nil {
		return fmt.Errorf("failed to restrict %s: %w", clean, err)
	}
	_, err = f.Write(data)
	return err
}

func (d *Dir) mkdirAll(dir string) error {
	if dir == "." {
		return nil
	}

	var current string
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		current = filepath.Join(current, part)
		if err := d.root.Mkdir(current, 0700); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create %s: %w", current, err)
		}
	}
	return nil
}
