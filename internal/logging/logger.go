// Package logging provides the hierarchical, level-filtered logger used
// throughout gerber. A *Logger is always safe to call, even when nil:
// collaborators can be constructed with a nil *Logger in tests and every
// call becomes a no-op instead of a crash.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

func init() {
	// Disable colorized output when standard error isn't a terminal (e.g.
	// when running under systemd or redirected to a log file).
	color.NoColor = !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// currentLevel is the process-wide log level. It's set once at startup by
// cmd/gerber from configuration and read atomically thereafter, since the
// watcher's worker goroutine and HTTP handlers both log concurrently.
var currentLevel int32 = int32(LevelInfo)

// SetLevel sets the process-wide logging level.
func SetLevel(level Level) {
	atomic.StoreInt32(&currentLevel, int32(level))
}

func enabled(level Level) bool {
	return Level(atomic.LoadInt32(&currentLevel)) >= level
}

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger callback.
type writer struct {
	callback func(string)
	buffer   []byte
}

func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. A nil *Logger is safe to use: every method
// becomes a no-op, so collaborators can be wired up without a logger in unit
// tests.
type Logger struct {
	prefix string
}

// RootLogger is the root logger from which all other loggers derive.
var RootLogger = &Logger{}

// Sublogger creates a new sublogger with the specified name, e.g.
// logging.RootLogger.Sublogger("watching").Sublogger("inotify").
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix}
}

func (l *Logger) output(calldepth int, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(calldepth, line)
}

// Info logs information with semantics equivalent to fmt.Print, gated on the
// info log level.
func (l *Logger) Info(v ...interface{}) {
	if l != nil && enabled(LevelInfo) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Infof logs information with semantics equivalent to fmt.Printf, gated on
// the info log level.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil && enabled(LevelInfo) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Debug logs information with semantics equivalent to fmt.Print, but only if
// the debug log level is enabled.
func (l *Logger) Debug(v ...interface{}) {
	if l != nil && enabled(LevelDebug) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Debugf logs information with semantics equivalent to fmt.Printf, but only
// if the debug log level is enabled.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && enabled(LevelDebug) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Trace logs information with semantics equivalent to fmt.Print, but only if
// the trace log level is enabled. This is used for raw inotify event dumps.
func (l *Logger) Trace(v ...interface{}) {
	if l != nil && enabled(LevelTrace) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Tracef logs information with semantics equivalent to fmt.Printf, but only
// if the trace log level is enabled.
func (l *Logger) Tracef(format string, v ...interface{}) {
	if l != nil && enabled(LevelTrace) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that writes lines at the debug level. It's
// useful for funneling a sub-component's log.Logger through this logger.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return io.Discard
	}
	return &writer{callback: func(s string) { l.Debug(s) }}
}

// Warn logs a warning, gated on the warn log level, in yellow.
func (l *Logger) Warn(v ...interface{}) {
	if l != nil && enabled(LevelWarn) {
		l.output(3, color.YellowString("warning: %s", fmt.Sprint(v...)))
	}
}

// Warnf is Warn with fmt.Printf semantics.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l != nil && enabled(LevelWarn) {
		l.output(3, color.YellowString("warning: "+format, v...))
	}
}

// Error logs error information with an error prefix and red color, gated on
// the error log level.
func (l *Logger) Error(err error) {
	if l != nil && enabled(LevelError) {
		l.output(3, color.RedString("error: %v", err))
	}
}
