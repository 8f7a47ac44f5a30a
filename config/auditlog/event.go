package auditlog

import "time"

// EventKind identifies the type of audit event.
type EventKind string

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Run events.
const (
	EventRunStarted   EventKind = "run_started"
	EventRunCompleted EventKind = "run_completed"
	EventStageSkipped EventKind = "stage_skipped"
	EventStageFailed  EventKind = "stage_failed"
)

// Wave events.
const (
	EventWaveStarted   EventKind = "wave_started"
	EventWaveCompleted EventKind = "wave_completed"
	EventWaveFailed    EventKind = "wave_failed"
	EventCycleBroken   EventKind = "cycle_broken"
)

// Unit events.
const (
	EventUnitCompleted  EventKind = "unit_completed"
	EventUnitFailed     EventKind = "unit_failed"
	EventBlocksApplied  EventKind = "blocks_applied"
	EventRecordWritten  EventKind = "record_written"
	EventVerifyFailed   EventKind = "verify_failed"
	EventConflictChosen EventKind = "conflict_chosen"
)

// Event is a single audit log entry.
type Event struct {
	ID         int64
	Kind       EventKind
	Timestamp  time.Time
	Project    string
	RunID      string
	Stage      string
	Unit       string
	WaveNumber int
	Message    string
	Detail     string // JSON-encoded extra data
	Level      string // info, warn, error
}
