package sentry

import (
	"runtime"
	"time"

	gosentry "github.com/getsentry/sentry-go"
)

// enabled tracks whether sentry was successfully initialized.
var enabled bool

// Init initializes the Sentry SDK. When telemetryEnabled is false or dsn is
// empty, it no-ops silently and all other functions in this package become safe
// no-ops.
func Init(version, dsn string, telemetryEnabled bool) error {
	if !telemetryEnabled || dsn == "" {
		enabled = false
		return nil
	}

	err := gosentry.Init(gosentry.ClientOptions{
		Dsn:              dsn,
		Release:          "specwave@" + version,
		AttachStacktrace: true,
		SampleRate:       1.0,
	})
	if err != nil {
		return err
	}

	gosentry.ConfigureScope(func(scope *gosentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
		scope.SetTag("version", version)
	})

	enabled = true
	return nil
}

// IsEnabled returns whether sentry is active.
func IsEnabled() bool {
	return enabled
}

// Flush waits up to 2 seconds for buffered events to be sent.
func Flush() {
	if !enabled {
		return
	}
	gosentry.Flush(2 * time.Second)
}

// RecoverPanic captures a panic to Sentry, flushes, then re-panics.
// Usage: defer sentry.RecoverPanic()
func RecoverPanic() {
	if !enabled {
		return
	}
	if err := recover(); err != nil {
		gosentry.CurrentHub().Recover(err)
		gosentry.Flush(2 * time.Second)
		panic(err)
	}
}

// SetContext adds project-level context to the current scope.
func SetContext(project, command string) {
	if !enabled {
		return
	}
	gosentry.ConfigureScope(func(scope *gosentry.Scope) {
		scope.SetTag("command", command)
		scope.SetContext("app", map[string]interface{}{
			"project": project,
			"command": command,
		})
	})
}

// CaptureError reports err with the unit and stage it happened in.
func CaptureError(err error, unit, stage string) {
	if !enabled || err == nil {
		return
	}
	gosentry.WithScope(func(scope *gosentry.Scope) {
		if unit != "" {
			scope.SetTag("unit", unit)
		}
		if stage != "" {
			scope.SetTag("stage", stage)
		}
		gosentry.CaptureException(err)
	})
}
