package main

import (
	"fmt"
	"os"

	"github.com/kesuzuki/pinvault/internal/cli"
	"github.com/kesuzuki/pinvault/pkg/export"

	"github.com/spf13/cobra"
)

var importOnConflict string

// exportCmd writes a vault's notes to a portable encrypted file. The
// file is keyed by its own passphrase, not by the vault PIN, so it can
// be imported into a vault opened by a different PIN.
var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export a vault to an encrypted file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openForCommand()
		if err != nil {
			return err
		}
		defer closeQuiet(s)

		passphrase, err := cli.ReadSecret("Export passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := cli.ReadSecret("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		f, err := os.OpenFile(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}

		if err := export.Export(s, f, []byte(passphrase)); err != nil {
			f.Close()
			os.Remove(args[0])
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to finish export file: %w", err)
		}

		fmt.Printf("Vault exported to %s.\n", args[0])
		return nil
	},
}

// importCmd reads an export file into a vault.
var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import notes from an encrypted export file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := parseConflictMode(importOnConflict)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open export file: %w", err)
		}
		defer f.Close()

		s, _, err := openForCommand()
		if err != nil {
			return err
		}
		defer closeQuiet(s)

		passphrase, err := cli.ReadSecret("Export passphrase: ")
		if err != nil {
			return err
		}

		result, err := export.Import(s, f, []byte(passphrase), mode)
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d notes", result.Imported)
		if result.Skipped > 0 {
			fmt.Printf(" (%d skipped)", result.Skipped)
		}
		fmt.Println(".")
		return nil
	},
}

func parseConflictMode(s string) (export.ConflictMode, error) {
	switch s {
	case "error":
		return export.ConflictError, nil
	case "skip":
		return export.ConflictSkip, nil
	case "overwrite":
		return export.ConflictOverwrite, nil
	default:
		return 0, fmt.Errorf("invalid conflict mode '%s' (use error, skip, or overwrite)", s)
	}
}
