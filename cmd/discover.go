package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kastheco/specwave/internal/discover"
	"github.com/kastheco/specwave/internal/wave"
	"github.com/spf13/cobra"
)

// changeSource says where discover reads the change set from. Paths win over
// a diff; with neither, the git worktree is used.
type changeSource struct {
	Paths []string
	// Diff is a unified diff file, or "-" for stdin.
	Diff  string
	Stdin io.Reader
}

// collectChanges resolves src into changes relative to root.
func collectChanges(root string, src changeSource) ([]discover.Change, error) {
	switch {
	case len(src.Paths) > 0:
		return discover.FromPaths(root, src.Paths)
	case src.Diff == "-":
		return discover.FromDiff(src.Stdin)
	case src.Diff != "":
		f, err := os.Open(src.Diff)
		if err != nil {
			return nil, fmt.Errorf("open diff: %w", err)
		}
		defer f.Close()
		return discover.FromDiff(f)
	}
	changes, gitRoot, err := discover.FromWorktree(root)
	if err != nil {
		return nil, err
	}
	return rebaseChanges(changes, gitRoot, root), nil
}

// rebaseChanges makes paths relative to root instead of the repository
// root, dropping files outside root.
func rebaseChanges(changes []discover.Change, gitRoot, root string) []discover.Change {
	if filepath.Clean(gitRoot) == filepath.Clean(root) {
		return changes
	}
	var out []discover.Change
	for _, c := range changes {
		rel, err := filepath.Rel(root, filepath.Join(gitRoot, filepath.FromSlash(c.Path)))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		c.Path = filepath.ToSlash(rel)
		out = append(out, c)
	}
	return out
}

// executeDiscover runs discovery over the change set src describes.
func executeDiscover(ctx context.Context, p *project, src changeSource) (*discover.Result, error) {
	changes, err := collectChanges(p.cfg.Root, src)
	if err != nil {
		return nil, err
	}
	ep, err := wave.CompileEntryPoints(p.cfg.EntryPointPatterns)
	if err != nil {
		return nil, err
	}
	return discover.Discover(ctx, changes, discover.Options{
		Root:        p.cfg.Root,
		Store:       p.store,
		SourceDirs:  p.cfg.SourceDirs,
		SpecPathFor: p.cfg.SpecPathFor,
		EntryPoints: ep,
		Parallelism: p.cfg.Parallelism,
		Audit:       p.audit,
		Project:     p.cfg.ProjectName(),
		RunID:       uuid.NewString(),
	})
}

// formatDiscover renders a discovery result for the terminal.
func formatDiscover(res *discover.Result, ep wave.EntryPoints) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "discovered %d unit(s) in %d wave(s)\n", len(res.Records), res.Schedule.Len())
	for i, w := range res.Schedule.Waves {
		fmt.Fprintf(&sb, "  %s: %s\n", res.Schedule.Label(i, ep), strings.Join(w, ", "))
	}
	for _, bc := range res.Schedule.BrokenCycles {
		fmt.Fprintf(&sb, "  cycle broken at %s\n", bc)
	}
	if len(res.Reused) > 0 {
		fmt.Fprintf(&sb, "reused %d unchanged record(s): %s\n", len(res.Reused), strings.Join(res.Reused, ", "))
	}
	if len(res.Skipped) > 0 {
		sb.WriteString("skipped:\n")
		for _, s := range res.Skipped {
			fmt.Fprintf(&sb, "  %s (%s)\n", s.Path, s.Reason)
		}
	}
	return sb.String()
}

// NewDiscoverCmd builds `specwave discover`.
func NewDiscoverCmd() *cobra.Command {
	var diffFlag string
	cmd := &cobra.Command{
		Use:   "discover [paths...]",
		Short: "find changed units, schedule them into waves and write their records",
		Long: `Discovers the Ruby units a change touches and writes one metadata record per
unit with its wave, dependencies and methods.

The change set comes from the given paths (every method counts as modified),
from a unified diff (--diff file, or --diff - for stdin), or by default from
the git worktree against HEAD.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := executeDiscover(cmd.Context(), p, changeSource{Paths: args, Diff: diffFlag, Stdin: cmd.InOrStdin()})
			if err != nil {
				return err
			}
			ep, _ := wave.CompileEntryPoints(p.cfg.EntryPointPatterns)
			fmt.Fprint(cmd.OutOrStdout(), formatDiscover(res, ep))
			return nil
		},
	}
	cmd.Flags().StringVar(&diffFlag, "diff", "", "read the change set from a unified diff file (- for stdin)")
	return cmd
}
