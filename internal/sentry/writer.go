package sentry

import (
	"io"
	"regexp"
	"strings"

	gosentry "github.com/getsentry/sentry-go"
)

// Level represents the severity level for the sentry writer.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// Writer tees leveled log lines to Sentry. Error lines become events tagged
// with the component that logged them; warning and info lines become
// breadcrumbs filed under that component.
type Writer struct {
	inner io.Writer
	level Level
}

// NewWriter creates a Writer that tees to inner and forwards to Sentry.
func NewWriter(inner io.Writer, level Level) *Writer {
	return &Writer{inner: inner, level: level}
}

var (
	// logPrefixRe matches the leveled logger's prefix: level, date, time and
	// caller.
	logPrefixRe = regexp.MustCompile(`^(?:[A-Z]+: )?(?:\S+ \S+ )?\S+\.go:\d+: `)
	// componentRe matches the component that leads a message, such as
	// "discovery: " or "architect: ".
	componentRe = regexp.MustCompile(`^([a-z][a-z_]*): `)
)

// categorize strips the logger prefix from a line and returns the breadcrumb
// category with the message body. Lines led by a component name are filed
// under "specwave.<component>", the rest under "specwave".
func categorize(line string) (category, body string) {
	body = logPrefixRe.ReplaceAllString(strings.TrimSpace(line), "")
	if m := componentRe.FindStringSubmatch(body); m != nil {
		return "specwave." + m[1], body
	}
	return "specwave", body
}

func (w *Writer) Write(p []byte) (int, error) {
	// Always write to the original destination first.
	n, err := w.inner.Write(p)

	if !enabled {
		return n, err
	}

	category, msg := categorize(string(p))
	if msg == "" {
		return n, err
	}

	switch w.level {
	case LevelError:
		gosentry.WithScope(func(scope *gosentry.Scope) {
			scope.SetTag("component", strings.TrimPrefix(category, "specwave."))
			gosentry.CaptureMessage(msg)
		})
	case LevelWarning:
		gosentry.AddBreadcrumb(&gosentry.Breadcrumb{
			Level:    gosentry.LevelWarning,
			Category: category,
			Message:  msg,
		})
	case LevelInfo:
		gosentry.AddBreadcrumb(&gosentry.Breadcrumb{
			Level:    gosentry.LevelInfo,
			Category: category,
			Message:  msg,
		})
	}

	return n, err
}
