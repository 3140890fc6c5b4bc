// Package logger provides verbose logging for the yard tool.
// When verbose mode is enabled via the --verbose flag, debug messages
// are printed to stderr to show how queries are compiled and entities
// are encoded and indexed.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for verbose logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// printf holds the write lock so concurrent messages never interleave.
func printf(level, component, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose {
		return
	}
	if component != "" {
		format = component + ": " + format
	}
	fmt.Fprintf(output, "["+level+"] "+format+"\n", args...)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) { printf("DEBUG", "", format, args...) }

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) { printf("INFO", "", format, args...) }

// Warn prints a warning message if verbose mode is enabled.
func Warn(format string, args ...any) { printf("WARN", "", format, args...) }

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Component logs on behalf of one part of the system. Every message is
// prefixed with the component name.
type Component string

// For returns the logger of a component.
func For(name string) Component { return Component(name) }

// Debug prints a message if verbose mode is enabled.
func (c Component) Debug(format string, args ...any) { printf("DEBUG", string(c), format, args...) }

// Info prints an informational message if verbose mode is enabled.
func (c Component) Info(format string, args ...any) { printf("INFO", string(c), format, args...) }

// Warn prints a warning message if verbose mode is enabled.
func (c Component) Warn(format string, args ...any) { printf("WARN", string(c), format, args...) }

// Timed logs the start of an operation and returns a function that logs its
// duration. Use it as: defer c.Timed("find")().
func (c Component) Timed(op string) func() {
	start := time.Now()
	c.Debug("%s started", op)
	return func() {
		c.Debug("%s took %s", op, time.Since(start).Round(time.Microsecond))
	}
}
