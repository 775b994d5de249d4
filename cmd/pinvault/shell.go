package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/kesuzuki/pinvault/internal/cli"
	"github.com/kesuzuki/pinvault/pkg/session"
	"github.com/kesuzuki/pinvault/pkg/store"

	"github.com/spf13/cobra"
)

// shellCmd runs an interactive session owned by the lifecycle
// controller. The bg/int/fg commands simulate the host transitions an
// embedding application would feed in; pick demonstrates a
// suppression-guarded system overlay.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session against one vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl := session.NewController(mgr)

		if err := shellUnlock(ctrl); err != nil {
			return err
		}
		defer func() {
			if err := ctrl.Lock(); err != nil {
				out.Warnf("failed to lock session: %v", err)
			}
		}()

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("pinvault> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			fields := strings.Fields(scanner.Text())
			if len(fields) == 0 {
				continue
			}

			if done, err := shellDispatch(ctrl, fields); done {
				return err
			}
		}
	},
}

// shellUnlock prompts for a PIN and binds a fresh session.
func shellUnlock(ctrl *session.Controller) error {
	secret, err := cli.ReadSecret("Enter PIN: ")
	if err != nil {
		return err
	}
	s, err := mgr.Open(secret)
	if err != nil {
		reportOpenError(err)
		return err
	}
	if _, err := ctrl.Bind(secret, s); err != nil {
		_ = mgr.Close(s)
		return err
	}
	fmt.Println("Vault open. Type 'help' for commands.")
	return nil
}

// shellDispatch executes one shell command. It returns done=true when
// the loop should exit.
func shellDispatch(ctrl *session.Controller, fields []string) (bool, error) {
	handle := func() *store.Store {
		if sess := ctrl.Active(); sess != nil {
			return sess.Handle()
		}
		return nil
	}

	switch fields[0] {
	case "help":
		fmt.Println("ls, get <name>, set <name> <body...>, rm <name>,")
		fmt.Println("bg, int, fg, pick, lock, unlock, quit")

	case "quit", "exit":
		return true, nil

	case "lock":
		if err := ctrl.Lock(); err != nil {
			out.Errorf("lock failed: %v", err)
		} else {
			fmt.Println("Locked.")
		}

	case "unlock":
		if ctrl.Active() != nil {
			fmt.Println("Already unlocked.")
			break
		}
		if err := shellUnlock(ctrl); err != nil {
			out.Errorf("unlock failed: %v", err)
		}

	case "bg":
		if err := ctrl.Transition(session.Background); err != nil {
			out.Errorf("background transition: %v", err)
		}
		if ctrl.Active() == nil {
			fmt.Println("Backgrounded: session destroyed, PIN required again.")
		} else {
			fmt.Println("Backgrounded: session kept (overlay active).")
		}

	case "int":
		_ = ctrl.Transition(session.Interrupted)
		fmt.Println("Interrupted: session kept.")

	case "fg":
		_ = ctrl.Transition(session.Foreground)
		fmt.Println("Foregrounded.")

	case "pick":
		// A caller-launched overlay: guard, background, foreground,
		// release. The session survives the round trip.
		release := ctrl.Suppress()
		_ = ctrl.Transition(session.Background)
		_ = ctrl.Transition(session.Foreground)
		release()
		fmt.Println("Overlay round trip complete; session kept.")

	case "ls":
		s := handle()
		if s == nil {
			fmt.Println("Locked. Use 'unlock'.")
			break
		}
		entries, err := s.ListEntries()
		if err != nil {
			out.Errorf("list failed: %v", err)
			break
		}
		if len(entries) == 0 {
			fmt.Println("No notes.")
			break
		}
		for _, e := range entries {
			fmt.Println(e.Name)
		}

	case "get":
		s := handle()
		if s == nil {
			fmt.Println("Locked. Use 'unlock'.")
			break
		}
		if len(fields) != 2 {
			fmt.Println("usage: get <name>")
			break
		}
		entry, err := s.GetEntry(fields[1])
		if err != nil {
			out.Errorf("get failed: %v", err)
			break
		}
		fmt.Println(string(entry.Body))

	case "set":
		s := handle()
		if s == nil {
			fmt.Println("Locked. Use 'unlock'.")
			break
		}
		if len(fields) < 3 {
			fmt.Println("usage: set <name> <body...>")
			break
		}
		entry := &store.Entry{
			Name: fields[1],
			Body: []byte(strings.Join(fields[2:], " ")),
		}
		if err := s.PutEntry(entry); err != nil {
			out.Errorf("set failed: %v", err)
			break
		}
		fmt.Println("Saved.")

	case "rm":
		s := handle()
		if s == nil {
			fmt.Println("Locked. Use 'unlock'.")
			break
		}
		if len(fields) != 2 {
			fmt.Println("usage: rm <name>")
			break
		}
		if err := s.DeleteEntry(fields[1]); err != nil {
			out.Errorf("rm failed: %v", err)
			break
		}
		fmt.Println("Deleted.")

	default:
		fmt.Printf("unknown command '%s'; type 'help'\n", fields[0])
	}

	return false, nil
}
