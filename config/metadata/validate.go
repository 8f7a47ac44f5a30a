package metadata

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError identifies a record field that does not meet a stage's
// requirements.
type ValidationError struct {
	Unit     string
	Field    string
	Expected string
	Found    string
	Action   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: expected %s, found %s; %s", e.Unit, e.Field, e.Expected, e.Found, e.Action)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under their YAML names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks the record against its schema and the characteristic
// invariants of every method. It returns nil for a valid record.
func Validate(r *Record) []error {
	var errs []error
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []error{err}
		}
		for _, fe := range verrs {
			errs = append(errs, &ValidationError{
				Unit:     r.Slug,
				Field:    trimRoot(fe.Namespace()),
				Expected: expectation(fe),
				Found:    fmt.Sprintf("%v", fe.Value()),
				Action:   fmt.Sprintf("fix %s in %s", trimRoot(fe.Namespace()), r.Slug),
			})
		}
	}
	if r.SchemaVersion > SchemaVersion {
		errs = append(errs, &ValidationError{
			Unit: r.Slug, Field: "schema_version",
			Expected: fmt.Sprintf("at most %d", SchemaVersion),
			Found:    fmt.Sprintf("%d", r.SchemaVersion),
			Action:   "upgrade specwave",
		})
	}
	for _, m := range r.Methods {
		errs = append(errs, m.CheckIntegrity()...)
	}
	if bank, err := r.Bank(); err != nil {
		errs = append(errs, &ValidationError{
			Unit: r.Slug, Field: "behaviors",
			Expected: "unique ids and descriptions",
			Found:    err.Error(),
			Action:   "merge the duplicate behaviors",
		})
	} else {
		for _, m := range r.Methods {
			for _, id := range bank.Unresolved(m) {
				errs = append(errs, &ValidationError{
					Unit: r.Slug, Field: "methods." + m.Name,
					Expected: "behavior ids present in behaviors",
					Found:    fmt.Sprintf("unknown id %q", id),
					Action:   "add the behavior to the bank or fix the reference",
				})
			}
		}
	}
	return errs
}

func trimRoot(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func expectation(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "a value"
	case "oneof":
		return "one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "len":
		return fmt.Sprintf("length %s", fe.Param())
	}
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}
