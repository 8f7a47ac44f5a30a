package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/kastheco/specwave/internal/patch"
)

const hintWidth = 80

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// wrapHint word-wraps a remediation message to the terminal width, or to
// hintWidth when the width is unknown.
func wrapHint(msg string) string {
	width := hintWidth
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 && w < width {
		width = w
	}
	return wordwrap.String(msg, width)
}

// hintError wraps an error whose message is a remediation hint so that it
// prints wrapped.
type hintError struct{ err error }

func (e *hintError) Error() string { return wrapHint(e.err.Error()) }
func (e *hintError) Unwrap() error { return e.err }

func withHint(err error) error {
	if err == nil {
		return nil
	}
	return &hintError{err: err}
}

// errAborted is returned when the operator aborts at the conflict prompt.
var errAborted = errors.New("aborted")

// ConflictChooser asks how to resolve a block conflict. It returns the
// policy to retry with, or errAborted.
type ConflictChooser func(unit string, conflict *patch.ConflictError) (patch.ConflictPolicy, error)

const choiceAbort = "abort"

// promptConflict is the interactive ConflictChooser.
func promptConflict(unit string, conflict *patch.ConflictError) (patch.ConflictPolicy, error) {
	choice := string(patch.ConflictSkip)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("%s: block %q already exists", unit, conflict.MethodID)).
				Description(fmt.Sprintf("The spec file already holds this block at line %d.", conflict.Line)),
			huh.NewSelect[string]().
				Title("What should happen to existing blocks?").
				Options(
					huh.NewOption("overwrite with the generated block", string(patch.ConflictOverwrite)),
					huh.NewOption("skip and keep the existing block", string(patch.ConflictSkip)),
					huh.NewOption("abort", choiceAbort),
				).
				Value(&choice),
		),
	).WithTheme(huh.ThemeCharm())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errAborted
		}
		return "", fmt.Errorf("conflict prompt: %w", err)
	}
	if choice == choiceAbort {
		return "", errAborted
	}
	return patch.ParseConflictPolicy(choice)
}

// chooserFor returns the interactive chooser when in is a terminal and the
// policy was not given explicitly, nil otherwise.
func chooserFor(in io.Reader, explicit bool) ConflictChooser {
	if explicit || !isTerminal(in) {
		return nil
	}
	return promptConflict
}
