package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kesuzuki/pinvault/internal/cli"
	"github.com/kesuzuki/pinvault/pkg/ledger"
	"github.com/kesuzuki/pinvault/pkg/store"
	"github.com/kesuzuki/pinvault/pkg/vault"

	"github.com/spf13/cobra"
)

var (
	flagBaseDir string
	flagVerbose bool

	out cli.Logger
	mgr *vault.Manager
	led *ledger.Ledger
)

var rootCmd = &cobra.Command{
	Use:   "pinvault",
	Short: "pinvault keeps an independent encrypted store per PIN",
	Long: `pinvault maps each PIN to its own encrypted store. A PIN never used
before creates a new store; a known PIN reopens its store. Trying many
different PINs in one day is rate limited.`,
	SilenceUsage: true,
	// PersistentPreRunE wires the manager for every subcommand.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		out = cli.Logger{Verbose: flagVerbose}

		baseDir := flagBaseDir
		if baseDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %w", err)
			}
			baseDir = filepath.Join(home, ".pinvault")
		}

		cfg, err := vault.LoadConfig(baseDir)
		if err != nil {
			return err
		}

		loc, err := cfg.WindowLocation()
		if err != nil {
			return err
		}

		led, err = ledger.Open(cfg.LedgerPath(), ledger.WithLocation(loc))
		if err != nil {
			return err
		}

		mgr, err = vault.NewManager(cfg, led)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if led != nil {
			if err := led.Close(); err != nil {
				out.Warnf("failed to close attempt ledger: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseDir, "base-dir", "", "Base directory (default: ~/.pinvault)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importOnConflict, "on-conflict", "error", "Conflict handling: error, skip, or overwrite")

	noteCmd.AddCommand(noteSetCmd)
	noteCmd.AddCommand(noteGetCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteRmCmd)

	noteSetCmd.Flags().BoolVar(&noteSetPinned, "pin", false, "Pin the note")
	noteListCmd.Flags().BoolVar(&noteListArchived, "archived", false, "Include archived notes")
}

// openForCommand prompts for the PIN and opens its vault. The caller
// must close the returned handle through the manager.
func openForCommand() (*store.Store, string, error) {
	secret, err := cli.ReadSecret("Enter PIN: ")
	if err != nil {
		return nil, "", err
	}

	s, err := mgr.Open(secret)
	if err != nil {
		reportOpenError(err)
		return nil, "", err
	}
	return s, secret, nil
}

// reportOpenError translates a classified open failure into the message
// the user sees. Rate limiting is deliberately not phrased as a wrong
// PIN: the rejected attempt may well have been the correct one.
func reportOpenError(err error) {
	switch vault.Classify(err) {
	case vault.KindInvalidSecret:
		cfg := mgr.Config()
		out.Errorf("PIN must be %d-%d characters.", cfg.MinSecretLength, cfg.MaxSecretLength)
	case vault.KindIncorrectSecret:
		out.Errorf("Incorrect PIN for an existing vault.")
	case vault.KindRateLimited:
		var rle *vault.RateLimitError
		if errors.As(err, &rle) {
			out.Errorf("Too many different PINs tried today. Locked out until %s.",
				rle.ResetAt.Format(time.RFC1123))
		} else {
			out.Errorf("Too many different PINs tried today.")
		}
	default:
		out.Errorf("Storage error: %v", err)
	}
}
