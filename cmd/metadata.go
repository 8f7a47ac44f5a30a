package cmd

import (
	"fmt"
	"strings"

	"github.com/kastheco/specwave/config/auditlog"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/check"
	"github.com/kastheco/specwave/internal/model"
	"github.com/kastheco/specwave/internal/pipeline"
	"github.com/spf13/cobra"
)

// executeMetadataValidate checks the named records, or all of them, and
// returns a report and whether every record is healthy. Terminal flags the
// classifier disagrees with are listed as notes; they never fail validation.
func executeMetadataValidate(store *metadata.Store, slugs []string, cls model.TerminalClassifier) (string, bool, error) {
	records, entries, err := check.AuditRecords(store)
	if err != nil {
		return "", false, err
	}
	want := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		if !hasEntry(entries, s) {
			return "", false, fmt.Errorf("%s: %w", s, metadata.ErrNotFound)
		}
		want[s] = true
	}
	bySlug := make(map[string]*metadata.Record, len(records))
	for _, r := range records {
		bySlug[r.Slug] = r
	}

	var sb strings.Builder
	healthy := true
	seen := 0
	for _, e := range entries {
		if len(want) > 0 && !want[e.Unit] {
			continue
		}
		seen++
		if !e.Status.Healthy() {
			healthy = false
		}
		fmt.Fprintf(&sb, "%s %-40s %s\n", e.Status.Glyph(), e.Unit, e.Status)
		for _, d := range e.Details {
			fmt.Fprintf(&sb, "    %s\n", d)
		}
		if r, ok := bySlug[e.Unit]; ok && cls != nil {
			for _, n := range terminalNotes(r, cls) {
				fmt.Fprintf(&sb, "    note: %s\n", n)
			}
		}
	}
	if seen == 0 {
		sb.WriteString("no records\n")
	}
	return sb.String(), healthy, nil
}

func hasEntry(entries []check.RecordEntry, slug string) bool {
	for _, e := range entries {
		if e.Unit == slug {
			return true
		}
	}
	return false
}

// terminalNotes lists values whose recorded terminal flag contradicts a
// confident classifier verdict.
func terminalNotes(r *metadata.Record, cls model.TerminalClassifier) []string {
	var notes []string
	for _, m := range r.Methods {
		for _, c := range m.Characteristics {
			for _, v := range c.Values {
				verdict := cls.Classify(c, v)
				switch {
				case verdict == model.VerdictTerminal && !v.Terminal:
					notes = append(notes, fmt.Sprintf("%s: %s=%s looks terminal but is recorded as non-terminal", m.Descriptor(), c.Name, v.Value))
				case verdict == model.VerdictNonTerminal && v.Terminal:
					notes = append(notes, fmt.Sprintf("%s: %s=%s looks non-terminal but is recorded as terminal", m.Descriptor(), c.Name, v.Value))
				}
			}
		}
	}
	return notes
}

// executeMetadataComplete sets stage's completion flag on a record after
// gating it. It is how external stages hand their output back.
func executeMetadataComplete(p *project, slug, stageName string) error {
	spec, err := metadata.LookupStage(stageName)
	if err != nil {
		return err
	}
	_, err = p.store.Update(slug, func(r *metadata.Record) error {
		if err := pipeline.Gate(r, spec.Stage); err != nil {
			return err
		}
		r.MarkCompleted(spec.Stage)
		return nil
	})
	if err != nil {
		return err
	}
	p.audit.Emit(auditlog.New(auditlog.EventUnitCompleted, p.cfg.ProjectName(),
		fmt.Sprintf("%s complete", slug),
		auditlog.WithStage(string(spec.Stage)),
		auditlog.WithUnit(slug)))
	return nil
}

// executeMetadataShow returns a record as YAML.
func executeMetadataShow(store *metadata.Store, slug string) (string, error) {
	r, err := store.Load(slug)
	if err != nil {
		return "", err
	}
	data, err := metadata.Encode(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NewMetadataCmd builds the `specwave metadata` command tree.
func NewMetadataCmd() *cobra.Command {
	metaCmd := &cobra.Command{
		Use:   "metadata",
		Short: "inspect, validate and complete metadata records",
	}

	// specwave metadata validate
	metaCmd.AddCommand(&cobra.Command{
		Use:   "validate [units...]",
		Short: "validate records against their schema and stage flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			cls := model.NewKeywordClassifier(p.cfg.TerminalKeywords, p.cfg.SuccessKeywords)
			out, healthy, err := executeMetadataValidate(p.store, args, cls)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			if !healthy {
				return ErrInvalid
			}
			return nil
		},
	})

	// specwave metadata complete
	metaCmd.AddCommand(&cobra.Command{
		Use:   "complete <unit> <stage>",
		Short: "mark a stage complete for a unit after checking its gate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			if err := executeMetadataComplete(p, args[0], args[1]); err != nil {
				return withHint(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s → %s\n", args[0], metadata.Stage(args[1]).Flag())
			return nil
		},
	})

	// specwave metadata show
	metaCmd.AddCommand(&cobra.Command{
		Use:   "show <unit>",
		Short: "print a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			out, err := executeMetadataShow(p.store, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	})

	return metaCmd
}
