package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"
)

const (
	DefaultPath     = ".cipherstore"
	DefaultKeystore = "keyring"
	DefaultLogLevel = "warn"

	// MinKDFIterations is the lowest PBKDF2 count accepted from configuration
	MinKDFIterations = 100000
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigPath is a variable so tests can point it elsewhere
var ConfigPath func() string = getConfigPath

// Config holds settings from the config file, the environment and flags,
// in increasing order of precedence
type Config struct {
	Path           string `yaml:"path" env:"CIPHERSTORE_PATH"`
	Keystore       string `yaml:"keystore" env:"CIPHERSTORE_KEYSTORE"`
	KeyringService string `yaml:"keyring_service" env:"CIPHERSTORE_KEYRING_SERVICE"`
	Service        string `yaml:"service" env:"CIPHERSTORE_SERVICE"`
	LogLevel       string `yaml:"log_level" env:"CIPHERSTORE_LOG_LEVEL"`
	KDFIterations  int    `yaml:"kdf_iterations" env:"CIPHERSTORE_KDF_ITERATIONS"`
}

// Flags carries command line overrides; zero values leave config untouched
type Flags struct {
	Path     string
	Keystore string
	Service  string
	LogLevel string
}

// New returns a Config holding defaults
func New() *Config {
	return &Config{
		Path:     DefaultPath,
		Keystore: DefaultKeystore,
		LogLevel: DefaultLogLevel,
	}
}

// Load reads the config file, then applies environment overrides.
// An empty file means ConfigPath(); a missing file is not an error.
func (c *Config) Load(file string) error {
	if file == "" {
		file = ConfigPath()
	}
	if err := c.loadYaml(file); err != nil {
		return fmt.Errorf("failed to load %s: %w", file, err)
	}
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

func (c *Config) loadYaml(file string) error {
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, c)
}

// MergeFlags applies command line overrides
func (c *Config) MergeFlags(f Flags) {
	if f.Path != "" {
		c.Path = f.Path
	}
	if f.Keystore != "" {
		c.Keystore = f.Keystore
	}
	if f.Service != "" {
		c.Service = f.Service
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
}

// Validate checks the merged configuration
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidConfig)
	}
	switch c.Keystore {
	case "keyring", "file":
	default:
		return fmt.Errorf("%w: keystore %q (want keyring or file)", ErrInvalidConfig, c.Keystore)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.KDFIterations != 0 && c.KDFIterations < MinKDFIterations {
		return fmt.Errorf("%w: kdf_iterations %d below %d", ErrInvalidConfig, c.KDFIterations, MinKDFIterations)
	}
	return nil
}

func getConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "cipherstore", "config.yaml")
}
