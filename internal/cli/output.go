package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Logger writes levelled, colored CLI output. Info goes to stdout,
// warnings and errors to stderr.
type Logger struct {
	Verbose bool
}

// Infof prints an informational message when verbose output is on.
func (l Logger) Infof(msg string, args ...any) {
	if l.Verbose {
		fmt.Fprintf(os.Stdout, color.GreenString("[info] ")+msg+"\n", args...)
	}
}

// Warnf prints a warning.
func (l Logger) Warnf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, color.YellowString("[warn] ")+msg+"\n", args...)
}

// Errorf prints an error.
func (l Logger) Errorf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, color.RedString("[error] ")+msg+"\n", args...)
}
