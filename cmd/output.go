package cmd

import (
	"fmt"
	"io"
	"os"
)

// Every command prints through these helpers so icons and indentation stay
// consistent across coach's CLI output.
//
//	✓  success / healthy
//	✗  error / failure (stderr)
//	⚠  warning
//	○  skipped / not applicable
//	-  not found / missing
//	~  neutral info / state change

// printSection prints a top-level section header, e.g. "=== coach import ===".
func printSection(title string) {
	fmt.Printf("\n=== %s ===\n", title)
}

// printLine writes "  <icon>  msg", or "  <icon>  [name] msg" when name is set.
func printLine(w io.Writer, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
		return
	}
	fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
}

func printOK(name, msg string)   { printLine(os.Stdout, "✓", name, msg) }
func printErr(name, msg string)  { printLine(os.Stderr, "✗", name, msg) }
func printWarn(name, msg string) { printLine(os.Stdout, "⚠", name, msg) }
func printSkip(name, msg string) { printLine(os.Stdout, "○", name, msg) }
func printMiss(name, msg string) { printLine(os.Stdout, "-", name, msg) }
func printInfo(name, msg string) { printLine(os.Stdout, "~", name, msg) }
