package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kastheco/specwave/config"
	"github.com/kastheco/specwave/config/metadata"
	"github.com/kastheco/specwave/internal/check"
	"github.com/spf13/cobra"
)

// errUnhealthy is returned when health < 100% to signal exit code 1 without printing a message.
var errUnhealthy = errors.New("unhealthy")

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Audit records, source files and spec files of the current project",
		Long: `Audits the three layers specwave writes to and reports their health:

  1. Records  (schema, characteristic invariants, stage flags)
  2. Sources  (source files still exist and match the recorded hash)
  3. Specs    (generated blocks are balanced and cover the selected methods)

Exit code 0 if 100% healthy, exit code 1 otherwise.`,
		RunE: runCheck,
		// Suppress usage on error: health failures are not usage errors.
		SilenceUsage: true,
		// Suppress cobra's "Error: ..." line for the unhealthy sentinel.
		SilenceErrors: true,
	}
	cmd.Flags().BoolP("verbose", "v", false, "show details for every entry")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working dir: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}

	store := metadata.NewStore(cfg.MetadataPath())
	result, err := check.Audit(store, check.Options{Root: cfg.Root, Prefix: cfg.MarkerPrefix})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	renderRecords(out, result.Records, verbose)
	renderEntries(out, "Sources", result.Sources, verbose)
	renderEntries(out, "Specs", result.Specs, verbose)

	ok, total := result.Summary()
	pct := 100
	if total > 0 {
		pct = ok * 100 / total
	}

	fmt.Fprintf(out, "\nHealth: %d/%d OK (%d%%)\n", ok, total, pct)

	if pct < 100 {
		return errUnhealthy
	}
	return nil
}

func renderRecords(out io.Writer, entries []check.RecordEntry, verbose bool) {
	fmt.Fprintf(out, "\nRecords:\n")
	if len(entries) == 0 {
		fmt.Fprintf(out, "  (no records)\n")
		return
	}

	for _, e := range entries {
		stages := "-"
		if len(e.Stages) > 0 {
			stages = strings.Join(e.Stages, ",")
		}
		fmt.Fprintf(out, "  %s %-40s wave %-3d %s\n", e.Status.Glyph(), e.Unit, e.Wave, stages)
		renderDetails(out, e.Entry, verbose)
	}
}

func renderEntries(out io.Writer, title string, entries []check.Entry, verbose bool) {
	fmt.Fprintf(out, "\n%s:\n", title)
	if len(entries) == 0 {
		fmt.Fprintf(out, "  (nothing to check)\n")
		return
	}

	for _, e := range entries {
		fmt.Fprintf(out, "  %s %-40s %s\n", e.Status.Glyph(), e.Unit, e.Status)
		renderDetails(out, e, verbose)
	}
}

// renderDetails prints entry details. Unhealthy entries always show them.
func renderDetails(out io.Writer, e check.Entry, verbose bool) {
	if !verbose && e.Status.Healthy() {
		return
	}
	for _, d := range e.Details {
		fmt.Fprintf(out, "      %s\n", d)
	}
}
