package output

import (
	"fmt"
	"io"
	"os"
)

// Printer writes status lines for the interactive client, with ANSI
// colour when the output is a terminal.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter creates a Printer. Colour is the caller's decision; pipes
// and files should pass false.
func NewPrinter(out io.Writer, color bool) *Printer {
	return &Printer{out: out, color: color}
}

// DefaultPrinter writes to stdout with colour enabled.
func DefaultPrinter() *Printer {
	return NewPrinter(os.Stdout, true)
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Println prints a plain line.
func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

// Printf prints a formatted message.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints a green status line.
func (p *Printer) Success(msg string) {
	p.colored("\033[32m", msg)
}

// Error prints a red status line.
func (p *Printer) Error(msg string) {
	p.colored("\033[31m", msg)
}

// Warning prints a yellow status line.
func (p *Printer) Warning(msg string) {
	p.colored("\033[33m", msg)
}

func (p *Printer) colored(code, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.out, "%s%s\033[0m\n", code, msg)
	} else {
		_, _ = fmt.Fprintln(p.out, msg)
	}
}
