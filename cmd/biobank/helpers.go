package main

import (
	"fmt"
	"io"
	"os"

	"github.com/nishad/biobank/internal/errors"
)

// ANSI escapes used by the CLI.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// colorize wraps text in color unless color is off or stdout is redirected.
func colorize(color, text string) string {
	if noColor || os.Getenv("NO_COLOR") != "" || !stdoutIsTerminal() {
		return text
	}
	return color + text + colorReset
}

// say writes one status line; an empty mark prints the message alone in color.
func say(w io.Writer, color, mark, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if mark == "" {
		fmt.Fprintln(w, colorize(color, msg))
		return
	}
	fmt.Fprintln(w, colorize(color, mark), msg)
}

func printError(format string, args ...interface{}) {
	say(os.Stderr, colorRed, "✗", format, args...)
}

func printWarning(format string, args ...interface{}) {
	say(os.Stderr, colorYellow, "⚠", format, args...)
}

func printSuccess(format string, args ...interface{}) {
	if quiet {
		return
	}
	say(os.Stdout, colorGreen, "✓", format, args...)
}

func printInfo(format string, args ...interface{}) {
	if quiet {
		return
	}
	say(os.Stdout, colorCyan, "", format, args...)
}

func printDebug(format string, args ...interface{}) {
	if !debug {
		return
	}
	say(os.Stderr, colorGray, "[DEBUG]", format, args...)
}

// exitCode is 2 when the run needs more input and 1 for any other failure.
func exitCode(err error) int {
	if errors.IsKind(err, errors.KindSourceUnavailable) {
		return 2
	}
	return 1
}
