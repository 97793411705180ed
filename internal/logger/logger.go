// Package logger prints progress for long pipeline runs. Debug and Info
// output is gated behind verbose mode; warnings always print, since a
// silent retry loop is worse than a noisy one. Everything goes to stderr
// so it never mixes with command output.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	verbose bool
	out     io.Writer = os.Stderr
)

// SetVerbose enables or disables debug and info output.
func SetVerbose(on bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = on
}

// SetOutput redirects log output. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Stage marks the start of a pipeline stage.
func Stage(name string) {
	write(true, "==> %s", name)
}

// Docf logs progress for a single document during ingestion.
func Docf(document, format string, args ...any) {
	write(true, "    "+document+": "+format, args...)
}

// Debug logs a verbose-only diagnostic message.
func Debug(format string, args ...any) {
	write(true, format, args...)
}

// Info logs a verbose-only progress message.
func Info(format string, args ...any) {
	write(true, format, args...)
}

// Warn logs a warning. Warnings print regardless of verbose mode.
func Warn(format string, args ...any) {
	write(false, "warning: "+format, args...)
}

func write(gated bool, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if gated && !verbose {
		return
	}
	fmt.Fprintf(out, format+"\n", args...)
}
