package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/illarion/cipherstore/internal/config"
	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/keyring"
	"github.com/illarion/cipherstore/internal/logging"
)

var (
	cfgFile string
	flags   config.Flags

	// Set by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cipherstore",
	Short: "Encrypted key/value store backed by the OS keyring or a passphrase",
	Long: `cipherstore keeps secret values encrypted with AES-256-CBC.

Each service gets its own key. Keys live either in the OS keyring
(--keystore keyring) or inside the store file, wrapped with a key
derived from a passphrase (--keystore file).`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}

		l, err := logging.New(c.LogLevel)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		return nil
	},
}

// loadConfig merges the config file, environment and flags
func loadConfig() (*config.Config, error) {
	c := config.New()
	if err := c.Load(cfgFile); err != nil {
		return nil, err
	}
	c.MergeFlags(flags)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/cipherstore/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.Path, "path", "", "store file (default .cipherstore)")
	rootCmd.PersistentFlags().StringVar(&flags.Keystore, "keystore", "", "where keys are kept: keyring or file")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&flags.Service, "service", "s", "", "service the item belongs to")
}

// Execute runs the command line and reports any error on stderr
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		HandleError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func promptPassphrase() ([]byte, error) {
	return core.ReadPassword("Enter passphrase: ")
}

// storeOptions builds core options from the merged configuration.
// An explicit --keystore flag makes Open reject a store of another kind.
func storeOptions() core.Options {
	return core.Options{
		Keystore:       core.KeystoreKind(flags.Keystore),
		KeyringService: cfg.KeyringService,
		Iterations:     cfg.KDFIterations,
		Passphrase:     core.PassphraseResolver(keyring.New(""), promptPassphrase),
		Logger:         logger,
	}
}

func openStore() (*core.Store, error) {
	return core.Open(cfg.Path, storeOptions())
}
