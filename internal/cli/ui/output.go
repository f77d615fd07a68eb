package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Color definitions for terminal output
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
	faintColor   = color.New(color.Faint)
)

// Out is where answers are written. Status lines go to stderr so answers can
// be piped.
var Out io.Writer = os.Stdout

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	successColor.Fprintf(os.Stderr, "✓ %s\n", msg)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	errorColor.Fprintf(os.Stderr, "✗ %s\n", msg)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	warningColor.Fprintf(os.Stderr, "⚠ %s\n", msg)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	infoColor.Fprintf(os.Stderr, "ℹ %s\n", msg)
}

// PrintBold prints a bold message
func PrintBold(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	boldColor.Fprintln(Out, msg)
}

// PrintField prints a key and value pair
func PrintField(key string, value interface{}) {
	faintColor.Fprintf(Out, "%-12s", key)
	fmt.Fprintf(Out, " %v\n", value)
}

// PrintChunk writes an answer increment without a newline
func PrintChunk(chunk string) {
	fmt.Fprint(Out, chunk)
}

// EndAnswer terminates a streamed answer
func EndAnswer() {
	fmt.Fprintln(Out)
}
