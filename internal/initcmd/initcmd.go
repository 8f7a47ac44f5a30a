package initcmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kastheco/specwave/config"
)

// Options holds the CLI flags for specwave init.
type Options struct {
	Force       bool // overwrite an existing project file
	Clean       bool // ignore existing config, start with factory defaults
	Interactive bool // ask before writing
}

// WriteResult tracks scaffold output for summary display.
type WriteResult struct {
	Path    string
	Created bool // true=written, false=skipped (already existed)
}

// candidateSourceDirs are the Ruby source roots probed by Detect, in the
// order they are written.
var candidateSourceDirs = []string{"app", "lib", "engines", "packs"}

// Detect derives project settings from the layout of dir: the source roots
// that exist, and a test/ spec directory when there is no spec/ one.
func Detect(dir string, base *config.Config) *config.Config {
	cfg := *base
	var found []string
	for _, d := range candidateSourceDirs {
		if fi, err := os.Stat(filepath.Join(dir, d)); err == nil && fi.IsDir() {
			found = append(found, d)
		}
	}
	if len(found) > 0 {
		cfg.SourceDirs = found
	}
	if !isDir(filepath.Join(dir, cfg.SpecDir)) && isDir(filepath.Join(dir, "test")) {
		cfg.SpecDir = "test"
	}
	return &cfg
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// Scaffold writes the project file and creates the metadata directory.
func Scaffold(dir string, cfg *config.Config, force bool) ([]WriteResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# specwave project settings. Keys left out fall back to ~/.config/specwave/config.toml.\n")
	if err := cfg.WriteTOML(&buf); err != nil {
		return nil, err
	}

	var results []WriteResult
	projectFile := filepath.Join(dir, config.ProjectFileName)
	created, err := writeFile(projectFile, buf.Bytes(), force)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", config.ProjectFileName, err)
	}
	results = append(results, WriteResult{Path: config.ProjectFileName, Created: created})

	metaDir := filepath.Join(dir, filepath.FromSlash(cfg.MetadataDir))
	if filepath.IsAbs(cfg.MetadataDir) {
		metaDir = cfg.MetadataDir
	}
	// Under force an existing directory counts as written, like the project file.
	created = force || !isDir(metaDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	results = append(results, WriteResult{Path: cfg.MetadataDir, Created: created})
	return results, nil
}

// writeFile writes content to path. If force is false and the file exists, skip.
// Returns true if the file was actually written, false if skipped.
func writeFile(path string, content []byte, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil // skip existing
		}
	}
	return true, os.WriteFile(path, content, 0o644)
}

// Run executes the specwave init workflow in dir.
func Run(dir string, opts Options, out io.Writer) error {
	base := config.DefaultConfig()
	if !opts.Clean {
		existing, err := config.Load(dir)
		if err != nil {
			fmt.Fprintf(out, "Warning: could not load existing config: %v\n", err)
		} else {
			base = existing
		}
	}
	cfg := Detect(dir, base)

	if opts.Interactive {
		ok, err := Ask(cfg)
		if err != nil {
			return fmt.Errorf("wizard: %w", err)
		}
		if !ok {
			fmt.Fprintln(out, "Nothing written.")
			return nil
		}
	}

	fmt.Fprintf(out, "Scaffolding project: %s\n", dir)
	results, err := Scaffold(dir, cfg, opts.Force)
	if err != nil {
		return fmt.Errorf("scaffold: %w", err)
	}
	for _, r := range results {
		status := "OK"
		if !r.Created {
			status = "SKIP (exists)"
		}
		fmt.Fprintf(out, "  %-40s %s\n", r.Path, status)
	}

	fmt.Fprintf(out, "\nSource roots: %s\n", strings.Join(cfg.SourceDirs, ", "))
	fmt.Fprintln(out, "Done! Run 'specwave discover' to find changed units.")
	return nil
}
