package cmdutil

import (
	"fmt"
	"os"
)

// Warning prints a non-fatal warning to standard error.
func Warning(message string) {
	fmt.Fprintln(os.Stderr, "Warning:", message)
}

// Error prints an error message to standard error without exiting. Callers
// that want to exit should follow up with os.Exit or use Fatal.
func Error(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints an error message to standard error and terminates the
// process with a non-zero exit code.
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}
