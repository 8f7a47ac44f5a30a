package auditlog

import "time"

// QueryFilter specifies criteria for querying audit events.
type QueryFilter struct {
	Project string
	RunID   string
	Unit    string
	Kinds   []EventKind
	Limit   int
	Before  time.Time
	After   time.Time
}

// Logger is the interface for emitting and querying audit events.
type Logger interface {
	Emit(event Event)
	Query(filter QueryFilter) ([]Event, error)
	Close() error
}

// EventOption is a functional option for configuring optional Event fields.
type EventOption func(*Event)

// New builds an event of kind with message, applying opts.
func New(kind EventKind, project, message string, opts ...EventOption) Event {
	e := Event{Kind: kind, Project: project, Message: message}
	for _, o := range opts {
		o(&e)
	}
	return e
}

// WithRun sets the RunID field on the event.
func WithRun(runID string) EventOption {
	return func(e *Event) { e.RunID = runID }
}

// WithStage sets the Stage field on the event.
func WithStage(stage string) EventOption {
	return func(e *Event) { e.Stage = stage }
}

// WithUnit sets the Unit field on the event (a metadata slug).
func WithUnit(unit string) EventOption {
	return func(e *Event) { e.Unit = unit }
}

// WithWave sets the WaveNumber field on the event.
func WithWave(wave int) EventOption {
	return func(e *Event) { e.WaveNumber = wave }
}

// WithDetail sets the Detail field on the event (JSON-encoded extra data).
func WithDetail(detail string) EventOption {
	return func(e *Event) { e.Detail = detail }
}

// WithLevel sets the Level field on the event (info, warn, error).
func WithLevel(level string) EventOption {
	return func(e *Event) { e.Level = level }
}

// nopLogger is a no-op Logger used when no audit database is configured.
type nopLogger struct{}

// NopLogger returns a Logger that discards all events.
func NopLogger() Logger {
	return &nopLogger{}
}

func (n *nopLogger) Emit(_ Event) {}

func (n *nopLogger) Query(_ QueryFilter) ([]Event, error) {
	return nil, nil
}

func (n *nopLogger) Close() error {
	return nil
}
