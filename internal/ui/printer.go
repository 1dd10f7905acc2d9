package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// A Printer prints messages at different log levels.
// It must be safe to call its methods from concurrent goroutines.
type Printer interface {
	// E reports an error. It is printed regardless of the verbosity.
	E(msg string, args ...interface{})
	// P prints a message unless quiet mode is active.
	P(msg string, args ...interface{})
	// V prints a message if verbose output was requested.
	V(msg string, args ...interface{})
	// VV prints a message if debug-level verbose output was requested.
	VV(msg string, args ...interface{})
}

// NoopPrinter discards all messages
type NoopPrinter struct{}

var _ Printer = (*NoopPrinter)(nil)

func (*NoopPrinter) E(msg string, args ...interface{}) {}

func (*NoopPrinter) P(msg string, args ...interface{}) {}

func (*NoopPrinter) V(msg string, args ...interface{}) {}

func (*NoopPrinter) VV(msg string, args ...interface{}) {}

// TerminalPrinter writes messages to stdout and errors to stderr, filtered
// by verbosity: 0 is quiet, 1 is the default, 2 verbose and 3 or more
// prints everything.
type TerminalPrinter struct {
	m         sync.Mutex
	stdout    io.Writer
	stderr    io.Writer
	verbosity uint
}

var _ Printer = (*TerminalPrinter)(nil)

// NewTerminalPrinter returns a printer writing to stdout and stderr.
func NewTerminalPrinter(stdout, stderr io.Writer, verbosity uint) *TerminalPrinter {
	return &TerminalPrinter{
		stdout:    stdout,
		stderr:    stderr,
		verbosity: verbosity,
	}
}

func (p *TerminalPrinter) print(w io.Writer, msg string, args ...interface{}) {
	s := fmt.Sprintf(msg, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}

	p.m.Lock()
	defer p.m.Unlock()
	_, _ = io.WriteString(w, s)
}

func (p *TerminalPrinter) E(msg string, args ...interface{}) {
	p.print(p.stderr, msg, args...)
}

func (p *TerminalPrinter) P(msg string, args ...interface{}) {
	if p.verbosity >= 1 {
		p.print(p.stdout, msg, args...)
	}
}

func (p *TerminalPrinter) V(msg string, args ...interface{}) {
	if p.verbosity >= 2 {
		p.print(p.stdout, msg, args...)
	}
}

func (p *TerminalPrinter) VV(msg string, args ...interface{}) {
	if p.verbosity >= 3 {
		p.print(p.stdout, msg, args...)
	}
}

// IsTerminal returns true if w is connected to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
