package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Compact the store to reclaim disk space",
	Long: `Compacts the store file. This already happens after 'rm' and 'passwd'.
Does not require a passphrase.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		before, err := os.Stat(store.Path())
		if err != nil {
			return err
		}

		if err := store.Compact(); err != nil {
			return err
		}

		after, err := os.Stat(store.Path())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Compacted: %s -> %s\n", formatSize(before.Size()), formatSize(after.Size()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compactCmd)
}
