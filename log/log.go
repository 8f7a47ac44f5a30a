// Package log holds the process-wide leveled loggers. Output goes to a file
// in the temp directory so it never interleaves with command output; verbose
// mode tees it to stderr.
package log

import (
	"fmt"
	"io"
	golog "log"
	"os"
	"path/filepath"
	"sync"

	"github.com/kastheco/specwave/internal/sentry"
)

var (
	InfoLog    = golog.New(os.Stderr, "INFO: ", golog.Ldate|golog.Ltime|golog.Lshortfile)
	WarningLog = golog.New(os.Stderr, "WARNING: ", golog.Ldate|golog.Ltime|golog.Lshortfile)
	ErrorLog   = golog.New(os.Stderr, "ERROR: ", golog.Ldate|golog.Ltime|golog.Lshortfile)
)

var (
	mu          sync.Mutex
	logFile     *os.File
	logFileName = filepath.Join(os.TempDir(), "specwave.log")
)

// FileName returns the path of the log file.
func FileName() string {
	return logFileName
}

// Initialize points the loggers at the log file. With verbose set, every
// line is also written to stderr. Warnings and errors are forwarded to
// Sentry when it is enabled. Call Close when done.
func Initialize(verbose bool) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return
	}

	var out io.Writer = io.Discard
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open log file %s: %v\n", logFileName, err)
	} else {
		logFile = f
		out = f
	}
	if verbose {
		out = io.MultiWriter(out, os.Stderr)
	}

	InfoLog.SetOutput(sentry.NewWriter(out, sentry.LevelInfo))
	WarningLog.SetOutput(sentry.NewWriter(out, sentry.LevelWarning))
	ErrorLog.SetOutput(sentry.NewWriter(out, sentry.LevelError))
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return
	}
	_ = logFile.Close()
	logFile = nil
	InfoLog.SetOutput(io.Discard)
	WarningLog.SetOutput(io.Discard)
	ErrorLog.SetOutput(io.Discard)
}
