package initcmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/kastheco/specwave/config"
	"github.com/kastheco/specwave/internal/patch"
)

// Ask lets the user review the detected settings. It returns false when the
// user declines to write them.
func Ask(cfg *config.Config) (bool, error) {
	sourceDirs := strings.Join(cfg.SourceDirs, ", ")
	parallelism := strconv.Itoa(cfg.Parallelism)
	confirm := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("specwave init").
				Description("Settings are written to "+config.ProjectFileName+" in the project root."),
			huh.NewInput().
				Title("Source roots").
				Description("comma-separated; stripped when deriving spec paths").
				Value(&sourceDirs).
				Validate(func(s string) error {
					if len(splitList(s)) == 0 {
						return fmt.Errorf("at least one source root is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Spec directory").
				Value(&cfg.SpecDir),
			huh.NewSelect[string]().
				Title("When a generated block was edited by hand").
				Options(
					huh.NewOption("stop and report", string(patch.ConflictAbort)),
					huh.NewOption("overwrite it", string(patch.ConflictOverwrite)),
					huh.NewOption("keep it", string(patch.ConflictSkip)),
				).
				Value(&cfg.ConflictPolicy),
			huh.NewInput().
				Title("Parallelism").
				Value(&parallelism).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 {
						return fmt.Errorf("must be a positive number")
					}
					return nil
				}),
			huh.NewInput().
				Title("Verify command").
				Description("run after each patched spec file; {spec_file} is replaced, empty disables").
				Value(&cfg.VerifyCommand),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write " + config.ProjectFileName + "?").
				Value(&confirm),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		return false, err
	}

	cfg.SourceDirs = splitList(sourceDirs)
	n, _ := strconv.Atoi(parallelism)
	cfg.Parallelism = n
	return confirm, nil
}

// splitList splits a comma-separated answer, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
