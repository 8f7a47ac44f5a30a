package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/pipeline"
	"github.com/kastheco/specwave/internal/wave"
	"github.com/spf13/cobra"
)

// ExternalStageError reports a stage this tool does not run itself.
type ExternalStageError struct {
	Stage metadata.Stage
}

func (e *ExternalStageError) Error() string {
	return fmt.Sprintf("stage %s is carried out by an external agent; write its output into the records, then run specwave metadata complete <unit> %s", e.Stage, e.Stage)
}

// executeRun runs one stage over the project. Discovery reads the change set
// from src; the architect runs wave by wave over every eligible record.
func executeRun(ctx context.Context, p *project, stageName string, src changeSource) (string, pipeline.Status, error) {
	spec, err := metadata.LookupStage(stageName)
	if err != nil {
		return "", pipeline.StatusError, err
	}

	switch spec.Stage {
	case metadata.StageDiscovery:
		res, err := executeDiscover(ctx, p, src)
		if err != nil {
			return "", pipeline.StatusError, err
		}
		ep, _ := wave.CompileEntryPoints(p.cfg.EntryPointPatterns)
		status := pipeline.StatusSuccess
		if len(res.Records) == 0 {
			status = pipeline.StatusSkipped
		}
		return formatDiscover(res, ep), status, nil
	case metadata.StageArchitect:
		rep, err := p.runner().Run(ctx, spec.Stage, p.architect().Work)
		if rep == nil {
			return "", pipeline.StatusError, err
		}
		return formatRunReport(rep), rep.Status, err
	}
	return "", pipeline.StatusError, &ExternalStageError{Stage: spec.Stage}
}

func formatRunReport(rep *pipeline.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s run %s: %s\n", rep.Stage, rep.RunID, rep.Status)
	for i, w := range rep.Waves {
		fmt.Fprintf(&sb, "  wave %d: %s\n", i, strings.Join(w, ", "))
	}
	for _, bc := range rep.BrokenCycles {
		fmt.Fprintf(&sb, "  cycle broken at %s\n", bc)
	}
	if len(rep.Completed) > 0 {
		fmt.Fprintf(&sb, "completed %d unit(s)\n", len(rep.Completed))
	}
	if len(rep.Ineligible) > 0 {
		fmt.Fprintf(&sb, "not selected: %s\n", strings.Join(rep.Ineligible, ", "))
	}
	return sb.String()
}

// NewRunCmd builds `specwave run`.
func NewRunCmd() *cobra.Command {
	var diffFlag string
	cmd := &cobra.Command{
		Use:   "run <stage> [paths...]",
		Short: "run a pipeline stage over the project",
		Long: `Runs a stage over every eligible unit, one dependency wave at a time.

  discovery  find changed units (paths, --diff or the git worktree)
  architect  generate context blocks and patch spec files

The analysis, implementation and polishing stages are carried out by external
agents, which hand back through specwave metadata complete.

Exit status is 0 for success or skipped and 1 for error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			out, status, err := executeRun(cmd.Context(), p, args[0], changeSource{Paths: args[1:], Diff: diffFlag, Stdin: cmd.InOrStdin()})
			fmt.Fprint(cmd.OutOrStdout(), out)
			if err != nil {
				return withHint(err)
			}
			if status.ExitCode() != 0 {
				return ErrInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&diffFlag, "diff", "", "discovery: read the change set from a unified diff file (- for stdin)")
	return cmd
}
