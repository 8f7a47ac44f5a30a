package metadata

import (
	"fmt"
	"strings"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageDiscovery    Stage = "discovery"
	StageCodeAnalyzer Stage = "code_analyzer"
	StageArchitect    Stage = "architect"
	StageImplementer  Stage = "implementer"
	StagePolisher     Stage = "polisher"
)

// Flag is the automation key a stage sets when it completes a unit.
func (s Stage) Flag() string {
	return string(s) + "_completed"
}

// StageSpec declares what a stage needs from a record and what it leaves
// behind.
type StageSpec struct {
	Stage       Stage
	Requires    []Stage
	Produces    string
	Description string
	// Fields lists the record fields the stage reads; Check enforces them.
	Fields []string
	Check  func(r *Record) []*ValidationError
}

// Stages is the pipeline, in order.
var Stages = []StageSpec{
	{
		Stage:       StageDiscovery,
		Produces:    "one record per changed unit with wave, dependencies and method list",
		Description: "find changed units and schedule them into dependency waves",
		Fields:      []string{"source_file", "class_name"},
	},
	{
		Stage:       StageCodeAnalyzer,
		Requires:    []Stage{StageDiscovery},
		Produces:    "characteristics, side effects and the behavior bank",
		Description: "extract branching characteristics from each selected method",
		Fields:      []string{"methods[].method_mode"},
		Check:       checkMethodModes,
	},
	{
		Stage:       StageArchitect,
		Requires:    []Stage{StageCodeAnalyzer},
		Produces:    "marker-delimited context blocks in spec_file",
		Description: "generate context trees and patch them into the spec file",
		Fields:      []string{"methods[].method_mode", "methods[].characteristics", "behaviors"},
		Check:       checkMethodModes,
	},
	{
		Stage:       StageImplementer,
		Requires:    []Stage{StageArchitect},
		Produces:    "filled example bodies",
		Description: "replace pending placeholders with test code",
		Fields:      []string{"methods[].method_mode", "methods[].test_config.test_level", "spec_file"},
		Check:       checkImplementerFields,
	},
	{
		Stage:       StagePolisher,
		Requires:    []Stage{StageImplementer},
		Produces:    "a green, lint-clean spec file",
		Description: "run the specs and tidy the generated file",
		Fields:      []string{"spec_file"},
		Check:       checkSpecFile,
	},
}

// LookupStage finds a stage by name.
func LookupStage(name string) (StageSpec, error) {
	for _, s := range Stages {
		if string(s.Stage) == name {
			return s, nil
		}
	}
	names := make([]string, len(Stages))
	for i, s := range Stages {
		names[i] = string(s.Stage)
	}
	return StageSpec{}, fmt.Errorf("unknown stage %q (want one of %s)", name, strings.Join(names, ", "))
}

func checkMethodModes(r *Record) []*ValidationError {
	var errs []*ValidationError
	for i, m := range r.Methods {
		if !m.IsSelected() || m.MethodMode != "" {
			continue
		}
		errs = append(errs, &ValidationError{
			Unit:     r.Slug,
			Field:    fmt.Sprintf("methods[%d].method_mode", i),
			Expected: "one of new, modified, unchanged",
			Found:    "missing",
			Action:   fmt.Sprintf("set method_mode for method %q in %s", m.Name, r.Slug),
		})
	}
	return errs
}

func checkImplementerFields(r *Record) []*ValidationError {
	errs := checkMethodModes(r)
	for i, m := range r.Methods {
		if m.IsSelected() && m.TestConfig.TestLevel == "" {
			errs = append(errs, &ValidationError{
				Unit:     r.Slug,
				Field:    fmt.Sprintf("methods[%d].test_config.test_level", i),
				Expected: "one of unit, integration, request",
				Found:    "missing",
				Action:   fmt.Sprintf("set test_config.test_level for method %q", m.Name),
			})
		}
	}
	return append(errs, checkSpecFile(r)...)
}

func checkSpecFile(r *Record) []*ValidationError {
	if r.SpecFile != "" {
		return nil
	}
	return []*ValidationError{{
		Unit:     r.Slug,
		Field:    "spec_file",
		Expected: "the path of the generated spec file",
		Found:    "empty",
		Action:   "re-run the architect stage for this unit",
	}}
}
