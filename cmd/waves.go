package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/wave"
	"github.com/spf13/cobra"
)

// executeWaves recomputes the wave schedule from the stored records and
// renders it. Records that fail to load are listed and left out.
func executeWaves(store *metadata.Store, ep wave.EntryPoints) (string, error) {
	records, failed, err := store.LoadAll()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if len(records) == 0 && len(failed) == 0 {
		sb.WriteString("no records; run specwave discover first\n")
		return sb.String(), nil
	}

	nodes, edges, index := metadata.Graph(records)
	schedule := wave.Compute(nodes, edges)
	for i, w := range schedule.Waves {
		fmt.Fprintf(&sb, "%s:\n", schedule.Label(i, ep))
		for _, id := range w {
			r := index[id]
			line := fmt.Sprintf("  %-40s %s", r.Slug, r.ClassName)
			if r.Wave != i {
				line += fmt.Sprintf("  (recorded wave %d)", r.Wave)
			}
			if !r.IsSelected() {
				line += "  (deselected)"
			}
			sb.WriteString(line + "\n")
		}
	}
	for _, bc := range schedule.BrokenCycles {
		fmt.Fprintf(&sb, "cycle broken at %s\n", bc)
	}
	if len(failed) > 0 {
		slugs := make([]string, 0, len(failed))
		for slug := range failed {
			slugs = append(slugs, slug)
		}
		sort.Strings(slugs)
		sb.WriteString("unreadable:\n")
		for _, slug := range slugs {
			fmt.Fprintf(&sb, "  %s: %v\n", slug, failed[slug])
		}
	}
	return sb.String(), nil
}

// NewWavesCmd builds `specwave waves`.
func NewWavesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "waves",
		Short: "show the dependency waves of the recorded units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			ep, err := wave.CompileEntryPoints(p.cfg.EntryPointPatterns)
			if err != nil {
				return err
			}
			out, err := executeWaves(p.store, ep)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
