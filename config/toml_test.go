package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFrom(t *testing.T) {
	t.Run("parses every key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, `
metadata_dir = "meta"
spec_dir = "test/specs"
source_dirs = ["app"]
shared_example_threshold = 0
conflict_policy = "skip"
marker_prefix = "gen"
parallelism = 8
verify_command = "bundle exec rspec {spec_file}"
entry_point_patterns = ["Worker$"]
terminal_keywords = ["halt"]
success_keywords = ["done"]
audit_db = "off"
telemetry_enabled = false
sentry_dsn = "https://key@example.invalid/1"
`)

		cfg, err := LoadFrom(path)
		require.NoError(t, err)

		assert.Equal(t, "meta", cfg.MetadataDir)
		assert.Equal(t, "test/specs", cfg.SpecDir)
		assert.Equal(t, []string{"app"}, cfg.SourceDirs)
		assert.Equal(t, 0, cfg.SharedExampleThreshold)
		assert.Equal(t, "skip", cfg.ConflictPolicy)
		assert.Equal(t, "gen", cfg.MarkerPrefix)
		assert.Equal(t, 8, cfg.Parallelism)
		assert.Equal(t, "bundle exec rspec {spec_file}", cfg.VerifyCommand)
		assert.Equal(t, []string{"Worker$"}, cfg.EntryPointPatterns)
		assert.Equal(t, []string{"halt"}, cfg.TerminalKeywords)
		assert.Equal(t, []string{"done"}, cfg.SuccessKeywords)
		assert.Equal(t, "off", cfg.AuditDB)
		assert.False(t, cfg.IsTelemetryEnabled())
		assert.Equal(t, "https://key@example.invalid/1", cfg.SentryDSN)
		assert.Equal(t, []string{path}, cfg.Sources)
	})

	t.Run("later files override earlier ones key by key", func(t *testing.T) {
		dir := t.TempDir()
		global := filepath.Join(dir, "global.toml")
		project := filepath.Join(dir, "project.toml")
		writeFile(t, global, "parallelism = 2\nconflict_policy = \"overwrite\"\n")
		writeFile(t, project, "parallelism = 6\n")

		cfg, err := LoadFrom(global, project)
		require.NoError(t, err)
		assert.Equal(t, 6, cfg.Parallelism)
		assert.Equal(t, "overwrite", cfg.ConflictPolicy)
		assert.Equal(t, "spec", cfg.SpecDir)
	})

	t.Run("skips missing files", func(t *testing.T) {
		cfg, err := LoadFrom("/nonexistent/config.toml")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Parallelism, cfg.Parallelism)
		assert.Empty(t, cfg.Sources)
	})

	t.Run("returns error on invalid TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, "[invalid toml\n")

		_, err := LoadFrom(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file 1 of 1")
	})

	t.Run("environment overrides files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		writeFile(t, path, "parallelism = 2\n")
		t.Setenv("SPECWAVE_PARALLELISM", "9")
		t.Setenv("SPECWAVE_TELEMETRY", "false")

		cfg, err := LoadFrom(path)
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Parallelism)
		assert.False(t, cfg.IsTelemetryEnabled())
	})
}

func TestLoad_ProjectOverlaysGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, ".config", "specwave", ConfigFileName), "parallelism = 3\nspec_dir = \"specs\"\n")

	project := t.TempDir()
	writeFile(t, filepath.Join(project, ProjectFileName), "parallelism = 1\n")
	nested := filepath.Join(project, "app")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := Load(nested)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Parallelism)
	assert.Equal(t, "specs", cfg.SpecDir)
	assert.Equal(t, project, cfg.Root)
	assert.Len(t, cfg.Sources, 2)
}

func TestSaveTo_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	off := false
	original := DefaultConfig()
	original.Parallelism = 7
	original.VerifyCommand = "rspec {spec_file}"
	original.TelemetryEnabled = &off

	require.NoError(t, original.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Parallelism)
	assert.Equal(t, "rspec {spec_file}", loaded.VerifyCommand)
	assert.False(t, loaded.IsTelemetryEnabled())
	assert.Equal(t, original.EntryPointPatterns, loaded.EntryPointPatterns)
}

func TestWriteTOML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DefaultConfig().WriteTOML(&buf))
	assert.Contains(t, buf.String(), `conflict_policy = "error"`)
	assert.NotContains(t, buf.String(), "Root")
}
