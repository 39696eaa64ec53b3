package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/cipherstorage"
	"github.com/illarion/cipherstore/internal/storage"
)

var lsAll bool

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored items",
	Long:  "Lists items of the selected service, or of every service with --all. Does not require a passphrase.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var entries []storage.ItemEntry
		if lsAll {
			entries, err = store.AllItems()
		} else {
			entries, err = store.Items(cfg.Service)
		}
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No items in %s\n", cfg.Path)
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Service", "Item", "Size", "Modified"})
		for _, e := range entries {
			service := e.Service
			if service == cipherstorage.DefaultAlias {
				service = "(default)"
			}
			t.AppendRow(table.Row{service, e.Key, formatSize(int64(e.Size)), e.Modified.Local().Format(time.DateTime)})
		}
		t.Render()
		return nil
	},
}

func init() {
	lsCmd.Flags().BoolVarP(&lsAll, "all", "a", false, "list items of every service")
	rootCmd.AddCommand(lsCmd)
}
