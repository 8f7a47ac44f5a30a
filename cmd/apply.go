package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kastheco/specwave/config/auditlog"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/patch"
	"github.com/kastheco/specwave/internal/pipeline"
	"github.com/kastheco/specwave/internal/wave"
	"github.com/kastheco/specwave/log"
	"github.com/spf13/cobra"
)

type applyOptions struct {
	Mode     patch.Mode
	Conflict patch.ConflictPolicy
	// Choose resolves conflicts interactively; nil fails with the
	// conflict's re-run hint.
	Choose ConflictChooser
}

type applyResult struct {
	Applied []string
	// Skipped maps a unit to the reason it was passed over.
	Skipped map[string]string
}

// executeApply runs the architect for the named units, or for every unit
// ready for it when none are named, one unit at a time in wave order. A
// conflict under the error policy is put to opts.Choose when set; the chosen
// policy then holds for the rest of the run.
func executeApply(ctx context.Context, p *project, slugs []string, opts applyOptions) (*applyResult, error) {
	records, err := applyTargets(p.store, slugs)
	if err != nil {
		return nil, err
	}

	res := &applyResult{Skipped: map[string]string{}}
	var ready []*metadata.Record
	var errs []error
	for _, r := range records {
		if !pipeline.Eligible(r) {
			res.Skipped[r.Slug] = "deselected or no selected methods"
			continue
		}
		if err := pipeline.Gate(r, metadata.StageArchitect); err != nil {
			if len(slugs) == 0 {
				res.Skipped[r.Slug] = "not ready for the architect"
				continue
			}
			errs = append(errs, err)
			continue
		}
		ready = append(ready, r)
	}
	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}

	nodes, edges, index := metadata.Graph(ready)
	schedule := wave.Compute(nodes, edges)
	arch := p.architect()
	arch.Mode = opts.Mode
	if opts.Conflict != "" {
		arch.Conflict = opts.Conflict
	}
	for _, w := range schedule.Waves {
		for _, id := range w {
			slug := index[id].Slug
			if err := applyUnit(ctx, p, arch, slug, opts.Choose); err != nil {
				if errors.Is(err, errAborted) {
					return res, err
				}
				errs = append(errs, fmt.Errorf("%s: %w", slug, err))
				continue
			}
			res.Applied = append(res.Applied, slug)
		}
	}
	return res, errors.Join(errs...)
}

func applyTargets(store *metadata.Store, slugs []string) ([]*metadata.Record, error) {
	if len(slugs) == 0 {
		records, failed, err := store.LoadAll()
		if err != nil {
			return nil, err
		}
		for slug, ferr := range failed {
			log.WarningLog.Printf("apply: skipping unreadable record %s: %v", slug, ferr)
		}
		return records, nil
	}
	records := make([]*metadata.Record, 0, len(slugs))
	for _, slug := range slugs {
		r, err := store.Load(slug)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// applyUnit runs arch on one unit under its record lock. A chosen conflict
// policy is stored back into arch.
func applyUnit(ctx context.Context, p *project, arch *pipeline.Architect, slug string, choose ConflictChooser) error {
	_, err := p.store.Update(slug, func(r *metadata.Record) error {
		err := arch.Work(ctx, r)
		var conflict *patch.ConflictError
		if errors.As(err, &conflict) && choose != nil {
			policy, cerr := choose(slug, conflict)
			if cerr != nil {
				return cerr
			}
			p.audit.Emit(auditlog.New(auditlog.EventConflictChosen, p.cfg.ProjectName(),
				fmt.Sprintf("%s: conflict on %s resolved with %s", slug, conflict.MethodID, policy),
				auditlog.WithStage(string(metadata.StageArchitect)),
				auditlog.WithUnit(slug)))
			arch.Conflict = policy
			err = arch.Work(ctx, r)
		}
		if err != nil {
			return err
		}
		r.MarkCompleted(metadata.StageArchitect)
		return nil
	})
	if err != nil && !errors.Is(err, errAborted) {
		if _, uerr := p.store.Update(slug, func(r *metadata.Record) error {
			r.AddError(fmt.Sprintf("%s: %v", metadata.StageArchitect, err))
			return nil
		}); uerr != nil {
			log.WarningLog.Printf("could not record failure on %s: %v", slug, uerr)
		}
	}
	return err
}

func formatApply(res *applyResult) string {
	var sb strings.Builder
	for _, slug := range res.Applied {
		fmt.Fprintf(&sb, "applied  %s\n", slug)
	}
	for _, slug := range sortedKeys(res.Skipped) {
		fmt.Fprintf(&sb, "skipped  %s (%s)\n", slug, res.Skipped[slug])
	}
	if len(res.Applied) == 0 && len(res.Skipped) == 0 {
		sb.WriteString("nothing to apply\n")
	}
	return sb.String()
}

// NewApplyCmd builds `specwave apply`.
func NewApplyCmd() *cobra.Command {
	var modeFlag, conflictFlag string
	cmd := &cobra.Command{
		Use:   "apply [units...]",
		Short: "generate context blocks and patch them into spec files",
		Long: `Runs the architect stage for the named units, or for every unit whose
analysis is complete when none are named. Units are processed in wave order.

When a block already exists under --mode insert and no --conflict policy was
given, an interactive terminal is asked how to resolve it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			mode, err := patch.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			opts := applyOptions{Mode: mode, Choose: chooserFor(cmd.InOrStdin(), cmd.Flags().Changed("conflict"))}
			if cmd.Flags().Changed("conflict") {
				if opts.Conflict, err = patch.ParseConflictPolicy(conflictFlag); err != nil {
					return err
				}
			}
			res, err := executeApply(cmd.Context(), p, args, opts)
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), formatApply(res))
			}
			return withHint(err)
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", string(patch.ModeInsert), "insert, replace or upsert")
	cmd.Flags().StringVar(&conflictFlag, "conflict", "", "insert conflict policy: error, overwrite or skip (default from config)")
	return cmd
}
