package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/illarion/cipherstore/internal/core"
	"github.com/illarion/cipherstore/internal/crypto"
	"github.com/illarion/cipherstore/internal/security"
)

var (
	setStdin bool
	setFile  string
	getOut   string
)

var errValueConflict = errors.New("value argument cannot be combined with --file or --stdin")

var setCmd = &cobra.Command{
	Use:   "set <item> [value]",
	Short: "Encrypt and store a value",
	Long: `Encrypts a value with the key of the selected service and stores it.

The value is taken from the argument, from a file with --file, from stdin
with --stdin, or from a no-echo prompt. Piped input is read to the end.
--file must name a file under the current directory.`,
	Example: `  cipherstore set db-password
  cipherstore -s payments set api-token "s3cr3t"
  cat token.txt | cipherstore set token --stdin`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readItemValue(cmd, args)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.SetItem(cmd.Context(), cfg.Service, args[0], value); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", args[0])
		return nil
	},
}

func readItemValue(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 2 {
		if setFile != "" || setStdin {
			return "", errValueConflict
		}
		return args[1], nil
	}
	if setFile != "" {
		data, err := withWorkDir(func(d *security.Dir) ([]byte, error) {
			return d.ReadFile(setFile)
		})
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", setFile, err)
		}
		defer crypto.ClearBytes(data)
		return string(data), nil
	}
	if setStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		defer crypto.ClearBytes(data)
		return strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r"), nil
	}
	return core.ReadValue(fmt.Sprintf("Value for %s: ", args[0]), os.Stdin)
}

var getCmd = &cobra.Command{
	Use:               "get <item>",
	Short:             "Decrypt and print a value",
	Long:              "Decrypts a value and prints it, or writes it with mode 0600 to a file under the current directory with --out.",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeItems,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		value, err := store.GetItem(cmd.Context(), cfg.Service, args[0])
		if err != nil {
			return err
		}

		if getOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		}

		data := []byte(value)
		defer crypto.ClearBytes(data)
		if _, err := withWorkDir(func(d *security.Dir) ([]byte, error) {
			return nil, d.WriteSecret(getOut, data)
		}); err != nil {
			return fmt.Errorf("failed to write %s: %w", getOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", getOut)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:               "rm <item> [item...]",
	Short:             "Remove items from the store",
	Long:              "Removes items. The service key stays in the keystore so other items remain readable.",
	Args:              cobra.MinimumNArgs(1),
	ValidArgsFunction: completeItems,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, item := range args {
			if err := store.RemoveItem(cfg.Service, item); err != nil {
				return fmt.Errorf("%s: %w", item, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", item)
		}

		// Free the pages left by the removed values
		if err := store.Compact(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: compaction failed: %s\n", err)
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <item> <file>",
	Short: "Compare a stored value with a local file",
	Long:  "Prints a unified diff between a stored value and a file under the current directory.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, err := withWorkDir(func(d *security.Dir) ([]byte, error) {
			return d.ReadFile(args[1])
		})
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}
		defer crypto.ClearBytes(local)

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		diff, err := store.Diff(cmd.Context(), cfg.Service, args[0], local)
		if err != nil {
			return err
		}

		if diff == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: no differences\n", args[0])
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), diff)
		return nil
	},
}

// completeItems offers item keys of the selected service. Listing needs no
// passphrase, so completion never prompts.
func completeItems(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Completion skips PersistentPreRunE
	if cfg == nil {
		c, err := loadConfig()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		cfg = c
	}

	store, err := openStore()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer store.Close()

	entries, err := store.Items(cfg.Service)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Key, toComplete) {
			names = append(names, e.Key)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// withWorkDir runs fn with file access confined to the current directory
func withWorkDir(fn func(d *security.Dir) ([]byte, error)) ([]byte, error) {
	d, err := security.OpenDir(".")
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return fn(d)
}

func init() {
	setCmd.Flags().BoolVar(&setStdin, "stdin", false, "read the value from stdin")
	setCmd.Flags().StringVarP(&setFile, "file", "f", "", "read the value from a file")
	setCmd.MarkFlagsMutuallyExclusive("stdin", "file")
	getCmd.Flags().StringVarP(&getOut, "out", "o", "", "write the value to a file instead of stdout")
	rootCmd.AddCommand(setCmd, getCmd, rmCmd, diffCmd)
}
