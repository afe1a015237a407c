// Package ui renders CLI output: colored status lines, post tables and batch progress.
package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Banner is printed by the CLI on startup
const Banner = `
  _   _
 | |_| |_ ___  ___ _ __ __ _ _ __   ___ _ __
 | __| __/ __|/ __| '__/ _' | '_ \ / _ \ '__|
 | |_| |_\__ \ (__| | | (_| | |_) |  __/ |
  \__|\__|___/\___|_|  \__,_| .__/ \___|_|
                            |_|
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

func plain(text string) string { return text }

// Printer writes status lines, colored only when the output is a terminal
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter creates a Printer for out. Color is enabled when out is a
// terminal and NO_COLOR is unset.
func NewPrinter(out io.Writer) *Printer {
	color := false
	if f, ok := out.(*os.File); ok && os.Getenv("NO_COLOR") == "" {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: out, color: color}
}

// Stdout is the default Printer
var Stdout = NewPrinter(os.Stdout)

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer { return p.out }

func (p *Printer) paint(fn func(string) string) func(string) string {
	if p.color {
		return fn
	}
	return plain
}

// Banner prints the banner
func (p *Printer) Banner() {
	fmt.Fprint(p.out, p.paint(Cyan)(Banner))
}

// Error prints an error message in red
func (p *Printer) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.out, p.paint(Red)(msg))
}

// Success prints a success message in green
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, p.paint(Green)(msg))
}

// Info prints a label and value
func (p *Printer) Info(label, value string) {
	fmt.Fprintf(p.out, "%s: %s\n", p.paint(Cyan)(label), p.paint(Yellow)(value))
}

// Warning prints a warning message in yellow
func (p *Printer) Warning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.out, p.paint(Yellow)(msg))
}

// Highlight prints a highlighted message in magenta
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.out, p.paint(Magenta)(msg))
}

// PrintError prints an error message to stdout
func PrintError(msg string, args ...interface{}) { Stdout.Error(msg, args...) }

// PrintSuccess prints a success message to stdout
func PrintSuccess(msg string) { Stdout.Success(msg) }

// PrintInfo prints a label and value to stdout
func PrintInfo(label, value string) { Stdout.Info(label, value) }

// PrintWarning prints a warning message to stdout
func PrintWarning(msg string, args ...interface{}) { Stdout.Warning(msg, args...) }
