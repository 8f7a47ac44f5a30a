// Package cmd holds the specwave pipeline commands. Every command keeps its
// logic in an execute* function so it can be tested without cobra.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/kastheco/specwave/config"
	"github.com/kastheco/specwave/config/auditlog"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/patch"
	"github.com/kastheco/specwave/internal/pipeline"
	"github.com/kastheco/specwave/internal/render"
	"github.com/kastheco/specwave/internal/structure"
	"github.com/kastheco/specwave/log"
)

// ErrInvalid is returned when a command found invalid state it already
// reported, so the caller can exit non-zero without printing it again.
var ErrInvalid = errors.New("invalid")

// project bundles what every command needs: the resolved configuration,
// the record store and the audit log.
type project struct {
	cfg   *config.Config
	store *metadata.Store
	audit auditlog.Logger
}

// openProject resolves the configuration for the project containing dir.
// The audit log falls back to a no-op logger when its database cannot be
// opened.
func openProject(dir string) (*project, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	p := &project{
		cfg:   cfg,
		store: metadata.NewStore(cfg.MetadataPath()),
		audit: auditlog.NopLogger(),
	}
	if path := cfg.AuditDBPath(); path != "" {
		sqlite, err := auditlog.NewSQLiteLogger(path)
		if err != nil {
			log.WarningLog.Printf("audit log disabled: %v", err)
		} else {
			p.audit = sqlite
		}
	}
	return p, nil
}

// loadProject opens the project containing the working directory.
func loadProject() (*project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get cwd: %w", err)
	}
	return openProject(cwd)
}

func (p *project) Close() {
	if err := p.audit.Close(); err != nil {
		log.WarningLog.Printf("close audit log: %v", err)
	}
}

func (p *project) renderOptions() render.Options {
	return render.Options{Prefix: p.cfg.MarkerPrefix}
}

func (p *project) structureOptions() structure.Options {
	return structure.Options{SharedExampleThreshold: p.cfg.SharedExampleThreshold}
}

// architect builds the architect stage from the configuration.
func (p *project) architect() *pipeline.Architect {
	conflict, _ := patch.ParseConflictPolicy(p.cfg.ConflictPolicy)
	return &pipeline.Architect{
		Root:        p.cfg.Root,
		SpecPathFor: p.cfg.SpecPathFor,
		Structure:   p.structureOptions(),
		Render:      p.renderOptions(),
		Conflict:    conflict,
		Verify:      &pipeline.Verifier{Command: p.cfg.VerifyCommand, Dir: p.cfg.Root},
		Audit:       p.audit,
		Project:     p.cfg.ProjectName(),
	}
}

func (p *project) runner() *pipeline.Runner {
	return &pipeline.Runner{
		Store:       p.store,
		Audit:       p.audit,
		Project:     p.cfg.ProjectName(),
		Parallelism: p.cfg.Parallelism,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
