package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/kastheco/specwave/internal/patch"
	"github.com/spf13/cobra"
)

// executePatch applies the marker-delimited blocks of sourcePath to
// targetPath. The target is rewritten only when something changed and
// dryRun is false.
func executePatch(targetPath, sourcePath string, opts patch.Options, dryRun bool) (patch.Report, error) {
	target, err := os.ReadFile(targetPath)
	if err != nil {
		return patch.Report{}, fmt.Errorf("read target: %w", err)
	}
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return patch.Report{}, fmt.Errorf("read source: %w", err)
	}

	out, rep, err := patch.Apply(string(target), string(source), opts)
	if err != nil {
		return rep, err
	}
	if dryRun || !rep.Changed {
		return rep, nil
	}
	info, err := os.Stat(targetPath)
	if err != nil {
		return rep, err
	}
	if err := os.WriteFile(targetPath, []byte(out), info.Mode().Perm()); err != nil {
		return rep, fmt.Errorf("write target: %w", err)
	}
	return rep, nil
}

// formatPatchReport renders one line per block plus a summary.
func formatPatchReport(rep patch.Report, dryRun bool) string {
	var sb strings.Builder
	for _, e := range rep.Entries {
		fmt.Fprintf(&sb, "  %-9s %s (line %d)\n", e.Action, e.MethodID, e.Line)
	}
	summary := fmt.Sprintf("%d inserted, %d replaced, %d skipped",
		rep.Count(patch.ActionInserted), rep.Count(patch.ActionReplaced), rep.Count(patch.ActionSkipped))
	switch {
	case dryRun:
		summary += " (dry run, nothing written)"
	case !rep.Changed:
		summary += " (unchanged)"
	}
	sb.WriteString(summary + "\n")
	return sb.String()
}

// parsePatchFlags validates the mode, conflict and only flags.
func parsePatchFlags(mode, conflict string, only []string, prefix string) (patch.Options, error) {
	m, err := patch.ParseMode(mode)
	if err != nil {
		return patch.Options{}, err
	}
	c, err := patch.ParseConflictPolicy(conflict)
	if err != nil {
		return patch.Options{}, err
	}
	return patch.Options{Mode: m, Conflict: c, Only: only, Prefix: prefix}, nil
}

// NewPatchCmd builds `specwave patch`.
func NewPatchCmd() *cobra.Command {
	var (
		modeFlag     string
		conflictFlag string
		onlyFlag     []string
		dryRunFlag   bool
	)
	cmd := &cobra.Command{
		Use:   "patch <target> <source>",
		Short: "apply marker-delimited blocks from source into target",
		Long: `Applies every block of the source file to the target file, matched by
method_id. Content outside markers is never touched.

  insert   add blocks the target lacks (--conflict decides existing ones)
  replace  replace blocks the target has; fail on a missing one
  upsert   replace existing blocks and insert new ones`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			if !cmd.Flags().Changed("conflict") {
				conflictFlag = p.cfg.ConflictPolicy
			}
			opts, err := parsePatchFlags(modeFlag, conflictFlag, onlyFlag, p.cfg.MarkerPrefix)
			if err != nil {
				return err
			}
			rep, err := executePatch(args[0], args[1], opts, dryRunFlag)
			if err != nil {
				return withHint(err)
			}
			fmt.Fprint(cmd.OutOrStdout(), formatPatchReport(rep, dryRunFlag))
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", string(patch.ModeUpsert), "insert, replace or upsert")
	cmd.Flags().StringVar(&conflictFlag, "conflict", string(patch.ConflictAbort), "insert conflict policy: error, overwrite or skip")
	cmd.Flags().StringSliceVar(&onlyFlag, "only", nil, "restrict to these method ids")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "report what would change without writing")
	return cmd
}
