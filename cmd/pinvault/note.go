package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kesuzuki/pinvault/internal/cli"
	"github.com/kesuzuki/pinvault/pkg/store"

	"github.com/spf13/cobra"
)

var (
	noteSetPinned    bool
	noteListArchived bool
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Note operations inside a vault",
}

// noteSetCmd saves or updates a note. The body comes from the remaining
// arguments, or from stdin when none are given.
var noteSetCmd = &cobra.Command{
	Use:   "set [name] [body...]",
	Short: "Save or update a note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		var body []byte
		if len(args) > 1 {
			body = []byte(strings.Join(args[1:], " "))
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read note body: %w", err)
			}
			body = data
		}

		s, _, err := openForCommand()
		if err != nil {
			return err
		}
		defer closeQuiet(s)

		entry := &store.Entry{
			Name:   name,
			Body:   body,
			Pinned: noteSetPinned,
		}
		if err := s.PutEntry(entry); err != nil {
			return fmt.Errorf("failed to save note: %w", err)
		}

		fmt.Printf("Note '%s' saved.\n", name)
		return nil
	},
}

// noteGetCmd prints a note body.
var noteGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openForCommand()
		if err != nil {
			return err
		}
		defer closeQuiet(s)

		entry, err := s.GetEntry(args[0])
		if err != nil {
			return fmt.Errorf("failed to read note: %w", err)
		}
		os.Stdout.Write(entry.Body)
		if len(entry.Body) > 0 && entry.Body[len(entry.Body)-1] != '\n' {
			fmt.Println()
		}
		return nil
	},
}

// noteListCmd lists note names without decrypting bodies.
var noteListCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List notes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openForCommand()
		if err != nil {
			return err
		}
		defer closeQuiet(s)

		entries, err := s.ListEntries()
		if err != nil {
			return fmt.Errorf("failed to list notes: %w", err)
		}

		var names []string
		byName := make(map[string]*store.Entry, len(entries))
		for _, e := range entries {
			if e.ArchivedAt != nil && !noteListArchived {
				continue
			}
			names = append(names, e.Name)
			byName[e.Name] = e
		}

		if len(args) == 1 {
			names, err = cli.ExpandPattern(args[0], names)
			if err != nil {
				return err
			}
		}

		if len(names) == 0 {
			fmt.Println("No notes.")
			return nil
		}

		for _, name := range cli.SortNames(names) {
			e := byName[name]
			line := name
			if e.Pinned {
				line += " (pinned)"
			}
			if e.ArchivedAt != nil {
				line += " (archived)"
			}
			line += fmt.Sprintf("  updated %s", e.UpdatedAt.Format("2006-01-02"))
			fmt.Println(line)
		}
		return nil
	},
}

// noteRmCmd deletes notes matching a name or glob pattern.
var noteRmCmd = &cobra.Command{
	Use:   "rm [pattern]",
	Short: "Delete notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := openForCommand()
		if err != nil {
			return err
		}
		defer closeQuiet(s)

		entries, err := s.ListEntries()
		if err != nil {
			return fmt.Errorf("failed to list notes: %w", err)
		}
		var names []string
		for _, e := range entries {
			names = append(names, e.Name)
		}

		matches, err := cli.ExpandPattern(args[0], names)
		if err != nil {
			return err
		}

		for _, name := range matches {
			if err := s.DeleteEntry(name); err != nil {
				return fmt.Errorf("failed to delete note '%s': %w", name, err)
			}
			fmt.Printf("Note '%s' deleted.\n", name)
		}
		return nil
	},
}

func closeQuiet(s *store.Store) {
	if err := mgr.Close(s); err != nil {
		out.Warnf("failed to close vault: %v", err)
	}
}
