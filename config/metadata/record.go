// Package metadata persists the per-unit records that carry state between
// pipeline stages. Each record is a YAML file named after the unit's slug.
package metadata

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kastheco/specwave/internal/model"
)

// SchemaVersion is written into every record.
const SchemaVersion = 1

// Automation holds the stage completion flags and the notes stages leave for
// operators. Flags are monotone: once set they are never cleared.
type Automation struct {
	Flags    map[string]bool `yaml:",inline"`
	Warnings []string        `yaml:"warnings,omitempty"`
	Errors   []string        `yaml:"errors,omitempty"`
}

// Record is the metadata of one source unit.
type Record struct {
	SchemaVersion int              `yaml:"schema_version"`
	Slug          string           `yaml:"slug" validate:"required"`
	SourceFile    string           `yaml:"source_file" validate:"required"`
	SourceMtime   time.Time        `yaml:"source_mtime"`
	SourceSHA256  string           `yaml:"source_sha256,omitempty" validate:"omitempty,len=64,hexadecimal"`
	ClassName     string           `yaml:"class_name" validate:"required"`
	Selected      *bool            `yaml:"selected,omitempty"`
	Wave          int              `yaml:"wave" validate:"gte=0"`
	EntryPoint    bool             `yaml:"entry_point,omitempty"`
	Dependencies  []string         `yaml:"dependencies,omitempty"`
	Methods       []model.Method   `yaml:"methods,omitempty" validate:"dive"`
	Behaviors     []model.Behavior `yaml:"behaviors,omitempty" validate:"dive"`
	SpecPath      string           `yaml:"spec_path,omitempty"`
	SpecFile      string           `yaml:"spec_file,omitempty"`
	Automation    Automation       `yaml:"automation"`
}

// NewRecord starts a record for sourceFile.
func NewRecord(sourceFile, className string) *Record {
	return &Record{
		SchemaVersion: SchemaVersion,
		Slug:          Slug(sourceFile),
		SourceFile:    filepath.ToSlash(sourceFile),
		ClassName:     className,
		Automation:    Automation{Flags: map[string]bool{}},
	}
}

// Slug derives the record key from a source path: the path without its
// extension, with separators, dots and dashes mapped to underscores.
func Slug(path string) string {
	path = filepath.ToSlash(path)
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimSuffix(path, filepath.Ext(path))
	return strings.NewReplacer("/", "_", `\`, "_", ".", "_", "-", "_").Replace(path)
}

// IsSelected reports whether the unit takes part in the run. Units are
// selected unless explicitly deselected.
func (r *Record) IsSelected() bool {
	return r.Selected == nil || *r.Selected
}

// SelectedMethods returns the methods taking part in generation.
func (r *Record) SelectedMethods() []model.Method {
	var out []model.Method
	for _, m := range r.Methods {
		if m.IsSelected() {
			out = append(out, m)
		}
	}
	return out
}

// Bank builds the unit's behavior bank.
func (r *Record) Bank() (*model.BehaviorBank, error) {
	return model.NewBehaviorBank(r.Behaviors)
}

// Completed reports whether stage has marked the record complete.
func (r *Record) Completed(stage Stage) bool {
	return r.Automation.Flags[stage.Flag()]
}

// MarkCompleted sets stage's completion flag. Flags are never cleared.
func (r *Record) MarkCompleted(stage Stage) {
	if r.Automation.Flags == nil {
		r.Automation.Flags = make(map[string]bool)
	}
	r.Automation.Flags[stage.Flag()] = true
}

// CompletedStages lists the flags that are set, sorted.
func (r *Record) CompletedStages() []string {
	var out []string
	for k, v := range r.Automation.Flags {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// AddWarning appends msg unless it is already recorded.
func (r *Record) AddWarning(msg string) {
	r.Automation.Warnings = appendUnique(r.Automation.Warnings, msg)
}

// AddError appends msg unless it is already recorded.
func (r *Record) AddError(msg string) {
	r.Automation.Errors = appendUnique(r.Automation.Errors, msg)
}

func appendUnique(list []string, msg string) []string {
	for _, m := range list {
		if m == msg {
			return list
		}
	}
	return append(list, msg)
}

// mergeFlags carries every flag set in prev into r.
func (r *Record) mergeFlags(prev *Record) {
	for k, v := range prev.Automation.Flags {
		if v {
			if r.Automation.Flags == nil {
				r.Automation.Flags = make(map[string]bool)
			}
			r.Automation.Flags[k] = true
		}
	}
}
