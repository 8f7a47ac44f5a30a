package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/pipeline"
	"github.com/kastheco/specwave/internal/render"
	"github.com/kastheco/specwave/internal/structure"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats of `specwave structure`.
const (
	formatOutline = "outline"
	formatYAML    = "yaml"
	formatJSON    = "json"
	formatRSpec   = "rspec"
)

type structureOptions struct {
	// Method limits output to one method, by name or descriptor.
	Method    string
	Format    string
	Structure structure.Options
	Render    render.Options
	Styles    render.Styles
}

// executeStructure generates the context trees of a unit's selected methods
// and renders them in the requested format. The record is not modified. A
// deselected unit, or one without selected methods, is skipped; any other
// unit must pass the architect gate.
func executeStructure(store *metadata.Store, slug string, opts structureOptions) (string, pipeline.Status, error) {
	r, err := store.Load(slug)
	if err != nil {
		return "", pipeline.StatusError, err
	}
	if !pipeline.Eligible(r) {
		return "", pipeline.StatusSkipped, nil
	}
	if err := pipeline.Gate(r, metadata.StageArchitect); err != nil {
		return "", pipeline.StatusError, err
	}
	bank, err := r.Bank()
	if err != nil {
		return "", pipeline.StatusError, fmt.Errorf("behavior bank: %w", err)
	}

	var trees []*structure.Tree
	for _, m := range r.SelectedMethods() {
		if opts.Method != "" && opts.Method != m.Name && opts.Method != m.Descriptor() {
			continue
		}
		tree, err := structure.Generate(m, bank, opts.Structure)
		if err != nil {
			return "", pipeline.StatusError, fmt.Errorf("method %s: %w", m.Descriptor(), err)
		}
		trees = append(trees, tree)
	}
	if len(trees) == 0 {
		return "", pipeline.StatusError, fmt.Errorf("%s has no selected method %q", slug, opts.Method)
	}

	out, err := formatTrees(trees, opts)
	if err != nil {
		return "", pipeline.StatusError, err
	}
	return out, pipeline.StatusSuccess, nil
}

func formatTrees(trees []*structure.Tree, opts structureOptions) (string, error) {
	switch opts.Format {
	case "", formatOutline:
		parts := make([]string, len(trees))
		for i, t := range trees {
			parts[i] = render.Outline(t, opts.Styles)
		}
		return strings.Join(parts, "\n"), nil
	case formatYAML:
		out, err := yaml.Marshal(trees)
		if err != nil {
			return "", fmt.Errorf("encode trees: %w", err)
		}
		return string(out), nil
	case formatJSON:
		out, err := json.MarshalIndent(trees, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode trees: %w", err)
		}
		return string(out) + "\n", nil
	case formatRSpec:
		return render.Blocks(trees, opts.Render), nil
	}
	return "", fmt.Errorf("unknown format %q (want outline, yaml, json or rspec)", opts.Format)
}

// NewStructureCmd builds `specwave structure`.
func NewStructureCmd() *cobra.Command {
	opts := structureOptions{}
	var plain bool
	cmd := &cobra.Command{
		Use:   "structure <unit>",
		Short: "print the context tree generated for a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject()
			if err != nil {
				return err
			}
			defer p.Close()

			opts.Structure = p.structureOptions()
			opts.Render = p.renderOptions()
			if !plain && isTerminal(cmd.OutOrStdout()) {
				opts.Styles = render.DefaultStyles()
			}
			out, status, err := executeStructure(p.store, args[0], opts)
			if err != nil {
				return err
			}
			if status == pipeline.StatusSkipped {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped (deselected or no selected methods)\n", args[0])
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Method, "method", "", "only this method (name or descriptor such as #call or .build)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", formatOutline, "output format: outline, yaml, json or rspec")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable colours in the outline")
	return cmd
}
