// Package cmdutil holds the small amount of process-lifecycle plumbing
// shared by gerber's cobra commands: converting an error-returning entry
// point into a process exit, and printing warnings and errors.
package cmdutil

import (
	"errors"
	"os"
)

// ErrNoCommandSpecified indicates that a command group was invoked without a
// subcommand.
var ErrNoCommandSpecified = errors.New("no command specified")

// Mainify converts an error-returning entry point into an os.Exit call
// suitable for use directly as a cobra command's RunE target's caller. It
// ensures any deferred cleanup inside entry runs (release locks, close
// watchers) before the process exits, since entry returns normally rather
// than calling os.Exit itself.
func Mainify(entry func() error) {
	if err := entry(); err != nil {
		if !errors.Is(err, ErrNoCommandSpecified) {
			Error(err)
		}
		os.Exit(1)
	}
}
