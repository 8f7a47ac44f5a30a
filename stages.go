package main

import (
	"fmt"
	"strings"

	"github.com/kastheco/specwave/config/metadata"
	"github.com/spf13/cobra"
)

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages and what each one needs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), formatStages(metadata.Stages))
		},
	}
}

func formatStages(stages []metadata.StageSpec) string {
	var b strings.Builder
	for i, s := range stages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s\n", s.Stage)
		fmt.Fprintf(&b, "  %s\n", s.Description)
		requires := "-"
		if len(s.Requires) > 0 {
			flags := make([]string, len(s.Requires))
			for j, r := range s.Requires {
				flags[j] = r.Flag()
			}
			requires = strings.Join(flags, ", ")
		}
		fmt.Fprintf(&b, "  requires: %s\n", requires)
		fmt.Fprintf(&b, "  reads:    %s\n", strings.Join(s.Fields, ", "))
		fmt.Fprintf(&b, "  produces: %s\n", s.Produces)
		fmt.Fprintf(&b, "  sets:     %s\n", s.Stage.Flag())
	}
	return b.String()
}
