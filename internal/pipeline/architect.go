package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kastheco/specwave/config/auditlog"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/patch"
	"github.com/kastheco/specwave/internal/render"
	"github.com/kastheco/specwave/internal/structure"
	"github.com/kastheco/specwave/log"
)

// Architect is the architect stage: it generates a context tree for every
// selected method of a unit, renders the trees as marker-delimited blocks
// and patches them into the unit's spec file.
type Architect struct {
	// Root resolves relative spec paths.
	Root string
	// SpecPathFor derives a spec path for records that have none yet.
	SpecPathFor func(sourceFile string) string
	Structure   structure.Options
	Render      render.Options
	// Mode is the patch mode; empty means upsert. Conflict applies to
	// insert mode when a block is already present in the spec file.
	Mode     patch.Mode
	Conflict patch.ConflictPolicy
	Verify   *Verifier
	Audit    auditlog.Logger
	Project  string
}

// Trees generates the context trees of r's selected methods. Generator
// warnings are recorded on r.
func (a *Architect) Trees(r *metadata.Record) ([]*structure.Tree, error) {
	bank, err := r.Bank()
	if err != nil {
		return nil, fmt.Errorf("behavior bank: %w", err)
	}
	var trees []*structure.Tree
	for _, m := range r.SelectedMethods() {
		tree, err := structure.Generate(m, bank, a.Structure)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", m.Descriptor(), err)
		}
		for _, w := range tree.Warnings {
			r.AddWarning(m.Descriptor() + ": " + w.String())
		}
		trees = append(trees, tree)
	}
	return trees, nil
}

// Work is the stage's pipeline.Work.
func (a *Architect) Work(ctx context.Context, r *metadata.Record) error {
	trees, err := a.Trees(r)
	if err != nil {
		return err
	}

	specRel, err := a.specPath(r)
	if err != nil {
		return err
	}
	path := specRel
	if !filepath.IsAbs(path) && a.Root != "" {
		path = filepath.Join(a.Root, path)
	}

	rep, err := a.patchFile(path, r.ClassName, trees)
	if err != nil {
		return err
	}
	r.SpecPath = filepath.ToSlash(specRel)
	r.SpecFile = filepath.ToSlash(specRel)

	if a.Verify.Enabled() {
		if err := a.Verify.Run(ctx, path); err != nil {
			return err
		}
	}

	detail, _ := json.Marshal(map[string]int{
		"inserted": rep.Count(patch.ActionInserted),
		"replaced": rep.Count(patch.ActionReplaced),
		"skipped":  rep.Count(patch.ActionSkipped),
	})
	msg := fmt.Sprintf("%s: %d block(s) applied to %s", r.Slug, len(rep.Entries), r.SpecFile)
	a.audit().Emit(auditlog.New(auditlog.EventBlocksApplied, a.Project, msg,
		auditlog.WithRun(RunID(ctx)),
		auditlog.WithStage(string(metadata.StageArchitect)),
		auditlog.WithUnit(r.Slug),
		auditlog.WithDetail(string(detail))))
	log.InfoLog.Printf("%s", msg)
	return nil
}

func (a *Architect) audit() auditlog.Logger {
	if a.Audit == nil {
		return auditlog.NopLogger()
	}
	return a.Audit
}

func (a *Architect) specPath(r *metadata.Record) (string, error) {
	switch {
	case r.SpecFile != "":
		return filepath.FromSlash(r.SpecFile), nil
	case r.SpecPath != "":
		return filepath.FromSlash(r.SpecPath), nil
	case a.SpecPathFor != nil:
		return a.SpecPathFor(r.SourceFile), nil
	}
	return "", &metadata.ValidationError{
		Unit:     r.Slug,
		Field:    "spec_path",
		Expected: "the spec file to patch",
		Found:    "empty",
		Action:   "set spec_path in the record or configure spec_dir",
	}
}

// patchFile writes a fresh spec skeleton when path does not exist and
// patches the blocks in otherwise.
func (a *Architect) patchFile(path, className string, trees []*structure.Tree) (patch.Report, error) {
	opts := patch.Options{Mode: a.Mode, Conflict: a.Conflict, Prefix: a.Render.Prefix}

	existing, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		text := render.Unit(className, trees, a.Render)
		rep := patch.Report{Changed: true}
		for _, t := range trees {
			rep.Entries = append(rep.Entries, patch.Entry{MethodID: render.MethodID(t), Action: patch.ActionInserted})
		}
		return rep, writeFileAtomic(path, []byte(text))
	}
	if err != nil {
		return patch.Report{}, fmt.Errorf("read spec file: %w", err)
	}

	out, rep, err := patch.Apply(string(existing), render.Blocks(trees, a.Render), opts)
	if err != nil {
		return rep, fmt.Errorf("patch %s: %w", path, err)
	}
	if !rep.Changed {
		return rep, nil
	}
	return rep, writeFileAtomic(path, []byte(out))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spec dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
