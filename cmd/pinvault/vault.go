package main

import (
	"fmt"

	"github.com/kesuzuki/pinvault/internal/cli"
	"github.com/kesuzuki/pinvault/pkg/security"

	"github.com/spf13/cobra"
)

// openCmd opens (or creates) the vault for a PIN and reports which.
var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the vault for a PIN, creating it on first use",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := cli.ReadSecret("Enter PIN: ")
		if err != nil {
			return err
		}

		existed := mgr.Exists(secret)
		s, err := mgr.Open(secret)
		if err != nil {
			reportOpenError(err)
			return err
		}
		defer func() {
			if cerr := mgr.Close(s); cerr != nil {
				out.Warnf("failed to close vault: %v", cerr)
			}
		}()

		version, err := s.Version()
		if err != nil {
			return err
		}

		if existed {
			fmt.Printf("Vault opened (schema v%d).\n", version)
		} else {
			fmt.Printf("New vault created (schema v%d).\n", version)
			if rating := security.Evaluate(secret); rating == security.StrengthWeak {
				out.Warnf("this PIN is weak (%s); anyone guessing it gets the vault", rating)
			}
		}
		return nil
	},
}

// existsCmd checks for a vault without opening it.
var existsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Check whether a vault exists for a PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := cli.ReadSecret("Enter PIN: ")
		if err != nil {
			return err
		}
		if mgr.Exists(secret) {
			fmt.Println("Vault exists.")
		} else {
			fmt.Println("No vault for this PIN.")
		}
		return nil
	},
}

// destroyCmd permanently deletes the vault for a PIN.
var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Permanently delete the vault for a PIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := cli.ReadSecret("Enter PIN: ")
		if err != nil {
			return err
		}

		if !mgr.Exists(secret) {
			fmt.Println("No vault for this PIN; nothing to delete.")
			return nil
		}

		ok, err := cli.Confirm("Permanently delete this vault and all its notes?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}

		if err := mgr.Delete(secret); err != nil {
			return err
		}
		fmt.Println("Vault deleted.")
		return nil
	},
}

// statusCmd shows the attempt budget without touching any vault.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the distinct-attempt budget for the current window",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := led.DistinctAttemptsInWindow()
		if err != nil {
			return err
		}
		cfg := mgr.Config()
		fmt.Printf("Distinct PINs attempted today: %d of %d\n", count, cfg.MaxDistinctAttempts)
		fmt.Printf("Window resets: %s\n", led.WindowReset().Format("2006-01-02 15:04 MST"))
		if count >= cfg.MaxDistinctAttempts {
			out.Warnf("budget exhausted: new PINs are rejected until the window resets")
		}
		return nil
	},
}
