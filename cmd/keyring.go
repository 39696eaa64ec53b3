package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/keyring"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage the store passphrase in the OS keyring",
	Long: `Caches the file keystore passphrase in the OS keyring so commands stop
prompting for it. Stores using the keyring keystore have no passphrase.`,
}

var keyringSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the passphrase to the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if store.Keystore() != core.KeystoreFile {
			return core.ErrNotFileKeystore
		}

		passphrase := core.GetPasswordFromEnv()
		if passphrase == nil {
			if passphrase, err = core.ReadPassword("Enter passphrase: "); err != nil {
				return err
			}
		}
		defer crypto.ClearBytes(passphrase)

		if err := store.VerifyPassphrase(passphrase); err != nil {
			return err
		}

		if err := keyring.New("").SavePassphrase(store.StoreID(), passphrase); err != nil {
			return fmt.Errorf("failed to save to keyring: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase saved to keyring")
		return nil
	},
}

var keyringDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the passphrase from the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := keyring.New("").DeletePassphrase(store.StoreID()); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No passphrase stored in keyring")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Passphrase removed from keyring")
		return nil
	},
}

var keyringStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the passphrase is in the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if keyring.New("").HasPassphrase(store.StoreID()) {
			fmt.Fprintln(cmd.OutOrStdout(), "Passphrase: stored in keyring")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Passphrase: not stored")
		}
		return nil
	},
}

func init() {
	keyringCmd.AddCommand(keyringSaveCmd, keyringDeleteCmd, keyringStatusCmd)
	rootCmd.AddCommand(keyringCmd)
}
