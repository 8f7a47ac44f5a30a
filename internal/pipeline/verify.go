package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// SpecFilePlaceholder is replaced by the spec file path in verify commands.
const SpecFilePlaceholder = "{spec_file}"

// maxVerifyOutput bounds the command output kept in a VerifyError.
const maxVerifyOutput = 2000

// VerifyError reports a verify command that did not exit cleanly.
type VerifyError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *VerifyError) Error() string {
	msg := fmt.Sprintf("verify command %q: expected exit status 0, found %d; fix the spec file and re-run the architect stage", e.Command, e.ExitCode)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

// Verifier runs a shell command against a freshly patched spec file.
type Verifier struct {
	Command string
	// Dir is the working directory; empty means the current one.
	Dir string
}

// Enabled reports whether there is a command to run.
func (v *Verifier) Enabled() bool {
	return v != nil && strings.TrimSpace(v.Command) != ""
}

// Run executes the command through sh -c with the placeholder replaced by
// the shell-quoted specFile.
func (v *Verifier) Run(ctx context.Context, specFile string) error {
	if !v.Enabled() {
		return nil
	}
	command := strings.ReplaceAll(v.Command, SpecFilePlaceholder, shellQuote(specFile))
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = v.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("run verify command %q: %w", command, err)
	}
	return &VerifyError{
		Command:  command,
		ExitCode: exitErr.ExitCode(),
		Output:   tail(out.String(), maxVerifyOutput),
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
