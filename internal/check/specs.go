package check

import (
	"fmt"
	"os"
	"strings"

	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/patch"
	"github.com/kastheco/specwave/internal/render"
)

// AuditSpecs checks the spec file of every record the architect has
// completed: the file must exist, its markers must parse, and every
// selected method must have its block.
func AuditSpecs(root string, records []*metadata.Record, prefix string) []Entry {
	var results []Entry
	for _, r := range records {
		if !r.Completed(metadata.StageArchitect) {
			continue
		}
		results = append(results, auditSpec(root, r, prefix))
	}
	return results
}

func auditSpec(root string, r *metadata.Record, prefix string) Entry {
	e := Entry{Unit: r.Slug, Status: StatusOK}
	if r.SpecFile == "" {
		e.Status = StatusMissing
		e.Details = []string{"spec_file is empty"}
		return e
	}

	data, err := os.ReadFile(resolve(root, r.SpecFile))
	if err != nil {
		e.Status = StatusMissing
		e.Details = []string{err.Error()}
		return e
	}
	ids, err := patch.Blocks(string(data), patch.Options{Prefix: prefix})
	if err != nil {
		e.Status = StatusInvalid
		e.Details = []string{fmt.Sprintf("%s: %v", r.SpecFile, err)}
		return e
	}

	present := make(map[string]bool, len(ids))
	for _, id := range ids {
		present[id] = true
	}
	var missing []string
	for _, m := range r.SelectedMethods() {
		if id := render.MethodIDFor(m); !present[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		e.Status = StatusMissing
		e.Details = []string{fmt.Sprintf("%s has no block for %s", r.SpecFile, strings.Join(missing, ", "))}
	}
	return e
}
