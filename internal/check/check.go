// Package check audits the health of a project's pipeline state: the
// metadata records, the sources they describe and the spec files generated
// from them.
package check

import (
	"github.com/kastheco/specwave/config/metadata"
)

// Status represents the state of a single audited entry.
type Status int

const (
	StatusOK         Status = iota // valid, nothing to report
	StatusWarning                  // valid, with warnings left by a stage
	StatusInvalid                  // fails schema or integrity validation
	StatusFailed                   // a stage recorded an error
	StatusUnreadable               // record file does not parse
	StatusMissing                  // referenced file does not exist
	StatusStale                    // file changed since it was recorded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusInvalid:
		return "invalid"
	case StatusFailed:
		return "failed"
	case StatusUnreadable:
		return "unreadable"
	case StatusMissing:
		return "missing"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Glyph is the status's one-character marker in reports.
func (s Status) Glyph() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarning:
		return "!"
	case StatusStale:
		return "~"
	default:
		return "✗"
	}
}

// Healthy reports whether the status counts towards health.
func (s Status) Healthy() bool {
	return s == StatusOK || s == StatusWarning
}

// Entry is one audited item.
type Entry struct {
	Unit    string
	Status  Status
	Details []string
}

// RecordEntry is one record's audit result.
type RecordEntry struct {
	Entry
	ClassName string
	Wave      int
	Stages    []string
}

// Result is the complete output of an audit.
type Result struct {
	Records []RecordEntry
	Sources []Entry
	Specs   []Entry
}

// Options configures Audit.
type Options struct {
	// Root resolves record paths.
	Root   string
	Prefix string
}

// Audit checks every record in store, the source file of every record that
// loaded and the spec file of every record the architect has completed.
func Audit(store *metadata.Store, opts Options) (*Result, error) {
	records, entries, err := AuditRecords(store)
	if err != nil {
		return nil, err
	}
	return &Result{
		Records: entries,
		Sources: AuditSources(opts.Root, records),
		Specs:   AuditSpecs(opts.Root, records, opts.Prefix),
	}, nil
}

// Summary returns (ok, total) counts across all checks.
func (r *Result) Summary() (int, int) {
	ok, total := 0, 0
	count := func(s Status) {
		total++
		if s.Healthy() {
			ok++
		}
	}
	for _, e := range r.Records {
		count(e.Status)
	}
	for _, e := range r.Sources {
		count(e.Status)
	}
	for _, e := range r.Specs {
		count(e.Status)
	}
	return ok, total
}
