package check

import (
	"fmt"
	"sort"

	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/model"
)

// AuditRecords loads every record in store and checks it against its
// schema, the characteristic invariants and its stage flags. It returns the
// records that loaded alongside one entry per record file.
func AuditRecords(store *metadata.Store) ([]*metadata.Record, []RecordEntry, error) {
	records, failed, err := store.LoadAll()
	if err != nil {
		return nil, nil, err
	}

	var entries []RecordEntry
	for slug, ferr := range failed {
		entries = append(entries, RecordEntry{Entry: Entry{
			Unit:    slug,
			Status:  StatusUnreadable,
			Details: []string{ferr.Error()},
		}})
	}
	for _, r := range records {
		entries = append(entries, auditRecord(r))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Unit < entries[j].Unit })
	return records, entries, nil
}

func auditRecord(r *metadata.Record) RecordEntry {
	e := RecordEntry{
		Entry:     Entry{Unit: r.Slug, Status: StatusOK},
		ClassName: r.ClassName,
		Wave:      r.Wave,
		Stages:    r.CompletedStages(),
	}

	var invalid []string
	for _, err := range metadata.Validate(r) {
		invalid = append(invalid, err.Error())
	}
	// Flags must form a prefix of the stage order.
	for _, st := range metadata.Stages {
		if !r.Completed(st.Stage) {
			continue
		}
		for _, pre := range st.Requires {
			if !r.Completed(pre) {
				invalid = append(invalid, fmt.Sprintf("%s is set without %s", st.Stage.Flag(), pre.Flag()))
			}
		}
		if st.Check == nil {
			continue
		}
		for _, err := range st.Check(r) {
			invalid = append(invalid, err.Error())
		}
	}

	var warnings []string
	for _, m := range r.Methods {
		for _, c := range m.Characteristics {
			if !model.TypeConsistent(c) {
				warnings = append(warnings, fmt.Sprintf("%s: characteristic %q is recorded as %s but its values suggest %s",
					m.Descriptor(), c.Name, c.Type, model.ClassifyType(model.FactsFromValues(c))))
			}
		}
	}
	warnings = append(warnings, r.Automation.Warnings...)

	switch {
	case len(invalid) > 0:
		e.Status = StatusInvalid
		e.Details = invalid
	case len(r.Automation.Errors) > 0:
		e.Status = StatusFailed
		e.Details = r.Automation.Errors
	case len(warnings) > 0:
		e.Status = StatusWarning
		e.Details = warnings
	}
	return e
}
