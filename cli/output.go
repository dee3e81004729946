// Package cli holds the terminal output helpers shared by polyq commands.
package cli

import (
	"fmt"
	"io"
	"os"
)

// Fatal prints a message to stderr and exits with code 1.
func Fatal(msg string) {
	fmt.Fprintln(os.Stderr, "error:", msg)
	os.Exit(1)
}

// FatalErr prints an error message with details to stderr and exits with code 1.
func FatalErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

// Printer writes user-facing output. Informational lines go to Out,
// warnings to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// NewPrinter returns a Printer; nil writers default to stdout and stderr.
func NewPrinter(out, errw io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errw == nil {
		errw = os.Stderr
	}
	return &Printer{Out: out, Err: errw}
}

// Info prints an informational message.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.Out, msg)
}

// Infof prints a formatted informational message.
func (p *Printer) Infof(format string, args ...any) {
	fmt.Fprintf(p.Out, format+"\n", args...)
}

// Success prints a success message.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.Out, "✓", msg)
}

// Successf prints a formatted success message.
func (p *Printer) Successf(format string, args ...any) {
	fmt.Fprintf(p.Out, "✓ "+format+"\n", args...)
}

// Warn prints a warning message.
func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.Err, "warning:", msg)
}

// Warnf prints a formatted warning message.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintf(p.Err, "warning: "+format+"\n", args...)
}
