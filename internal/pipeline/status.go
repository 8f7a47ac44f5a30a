// Package pipeline runs a stage over the metadata records of a project, one
// dependency wave at a time.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/kastheco/specwave/config/metadata"
)

// Status is the outcome of a stage run.
type Status int

const (
	StatusSuccess Status = iota
	StatusSkipped
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSkipped:
		return "skipped"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ExitCode maps a status to a process exit code. A skipped stage is not a
// failure.
func (s Status) ExitCode() int {
	if s == StatusError {
		return 1
	}
	return 0
}

// Gate checks that r is ready for stage: every predecessor flag is set and
// the stage's field checks pass. All problems are returned joined.
func Gate(r *metadata.Record, stage metadata.Stage) error {
	spec, err := metadata.LookupStage(string(stage))
	if err != nil {
		return err
	}

	var errs []error
	for _, req := range spec.Requires {
		if r.Completed(req) {
			continue
		}
		found := "missing"
		if _, ok := r.Automation.Flags[req.Flag()]; ok {
			found = "false"
		}
		errs = append(errs, &metadata.ValidationError{
			Unit:     r.Slug,
			Field:    "automation." + req.Flag(),
			Expected: "true",
			Found:    found,
			Action:   fmt.Sprintf("complete the %s stage for %s before running %s", req, r.Slug, stage),
		})
	}
	if spec.Check != nil {
		for _, ve := range spec.Check(r) {
			errs = append(errs, ve)
		}
	}
	return errors.Join(errs...)
}

// Eligible reports whether r takes part in a stage run: it is selected and
// has at least one selected method.
func Eligible(r *metadata.Record) bool {
	return r.IsSelected() && len(r.SelectedMethods()) > 0
}

// Selection splits records into the ones a stage processes and the ones it
// passes over.
type Selection struct {
	Eligible   []*metadata.Record
	Ineligible []string
}

// Select gates every eligible record for stage. It fails fast: any gate
// failure returns an error and no selection.
func Select(records []*metadata.Record, stage metadata.Stage) (Selection, error) {
	var sel Selection
	var errs []error
	for _, r := range records {
		if !Eligible(r) {
			sel.Ineligible = append(sel.Ineligible, r.Slug)
			continue
		}
		if err := Gate(r, stage); err != nil {
			errs = append(errs, err)
			continue
		}
		sel.Eligible = append(sel.Eligible, r)
	}
	if len(errs) > 0 {
		return Selection{}, errors.Join(errs...)
	}
	return sel, nil
}
