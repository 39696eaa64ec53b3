package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
)

var infoCmd = &cobra.Command{
	Use:     "info",
	Aliases: []string{"status"},
	Short:   "Show store status",
	Long:    "Shows store metadata and warns when git would pick up the store file. Does not require a passphrase.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		info, err := store.Info()
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendRows([]table.Row{
			{"Store", info.Path},
			{"Store ID", info.StoreID},
			{"Created", formatTime(info.Created)},
			{"Modified", formatTime(info.Modified)},
			{"Backend", fmt.Sprintf("%s (platform >= %d)", info.Backend, info.MinPlatformVersion)},
			{"Keystore", string(info.Keystore)},
			{"Items", info.Items},
		})

		switch info.Keystore {
		case core.KeystoreKeyring:
			t.AppendRow(table.Row{"Keyring service", info.KeyringService})
		case core.KeystoreFile:
			t.AppendRows([]table.Row{
				{"Keys", info.Keys},
				{"KDF iterations", info.KDFIterations},
			})
		}
		t.Render()

		if w := info.Git.Warning(filepath.Base(info.Path), info.Keystore == core.KeystoreFile); w != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}
