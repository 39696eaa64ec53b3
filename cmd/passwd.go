package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keyring"
)

// NewPasswordEnv supplies the new passphrase to passwd without a prompt
const NewPasswordEnv = "CIPHERSTORE_NEW_PASSWORD"

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the store passphrase",
	Long: `Changes the passphrase of a file keystore. Every key is re-wrapped in one
transaction, so an interrupted change leaves the old passphrase working.
Items are not touched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if store.Keystore() != core.KeystoreFile {
			return core.ErrNotFileKeystore
		}

		ring := keyring.New("")

		current, err := currentPassphrase(store, ring)
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(current)

		next, err := newPassphrase()
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(next)

		if err := store.ChangePassphrase(current, next); err != nil {
			return err
		}

		// Keep a cached passphrase in step with the store
		if ring.HasPassphrase(store.StoreID()) {
			if err := ring.SavePassphrase(store.StoreID(), next); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to update keyring: %s\n", err)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Keyring updated with new passphrase")
			}
		}

		if err := store.Compact(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: compaction failed: %s\n", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase changed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}

// currentPassphrase resolves the passphrase the store is locked with. A
// stale keyring entry falls through to the prompt.
func currentPassphrase(store *core.Store, ring keyring.Ring) ([]byte, error) {
	resolve := core.PassphraseResolver(ring, func() ([]byte, error) {
		return core.ReadPassword("Enter current passphrase: ")
	})
	return resolve(store.StoreID(), store.VerifyPassphrase)
}

func newPassphrase() ([]byte, error) {
	if p := os.Getenv(NewPasswordEnv); p != "" {
		return []byte(p), nil
	}
	return core.ReadPasswordConfirm("Enter new passphrase: ")
}
