package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/git"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new store",
	Long: `Creates the store file.

With the file keystore you are asked for a passphrase twice, unless
CIPHERSTORE_PASSWORD is set. The passphrase is not stored anywhere
unless you run 'cipherstore keyring save'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := core.KeystoreKind(cfg.Keystore)

		var passphrase []byte
		if kind == core.KeystoreFile {
			p, err := passphraseForInit()
			if err != nil {
				return err
			}
			defer crypto.ClearBytes(p)
			passphrase = p
		}

		opts := storeOptions()
		opts.Keystore = kind

		store, err := core.Init(cfg.Path, opts, passphrase)
		if err != nil {
			return err
		}
		defer store.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s (%s keystore)\n", cfg.Path, kind)

		status := git.CheckStoreFile(cfg.Path)
		if w := status.Warning(filepath.Base(cfg.Path), kind == core.KeystoreFile); w != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// passphraseForInit checks the environment first, then prompts twice
func passphraseForInit() ([]byte, error) {
	if p := core.GetPasswordFromEnv(); p != nil {
		return p, nil
	}
	return core.ReadPasswordConfirm("Enter passphrase: ")
}
